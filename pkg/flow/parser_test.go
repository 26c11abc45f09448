package flow

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		link LinkType
		id   ID
	}{
		{"eth_ipv4_tcp", Ethernet, NewID(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2"), 40000, 443, 6)},
		{"eth_ipv4_udp", Ethernet, NewID(netip.MustParseAddr("172.16.0.9"), netip.MustParseAddr("1.1.1.1"), 5353, 53, 17)},
		{"eth_ipv6_tcp", Ethernet, NewID(netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("2001:db8::2"), 1000, 22, 6)},
		{"raw_ipv4_udp", RawIP, NewID(netip.MustParseAddr("192.168.0.1"), netip.MustParseAddr("192.168.0.2"), 9, 10, 17)},
		{"raw_ipv6_udp", RawIP, NewID(netip.MustParseAddr("fe80::1"), netip.MustParseAddr("fe80::2"), 546, 547, 17)},
		{"eth_ipv4_icmp", Ethernet, NewID(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2"), 0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := require.New(t)
			pkt, err := NewBuilder(tt.link).Build(tt.id, []byte("payload"))
			assert.NoError(err)

			id, err := NewParser(tt.link).Parse(pkt)
			assert.NoError(err)
			assert.Equal(tt.id, id)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	assert := require.New(t)
	p := NewParser(Ethernet)

	_, err := p.Parse(nil)
	assert.ErrorIs(err, ErrMalformed)

	_, err = p.Parse([]byte{1, 2, 3})
	assert.ErrorIs(err, ErrMalformed)

	// An ARP frame has no IP header
	arp := gopacket.NewSerializeBuffer()
	assert.NoError(gopacket.SerializeLayers(arp, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{SrcMAC: defaultSrcMAC, DstMAC: defaultDstMAC, EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   defaultSrcMAC,
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{10, 0, 0, 2},
		}))
	_, err = p.Parse(arp.Bytes())
	assert.ErrorIs(err, ErrMalformed)

	// Truncated IPv4 header
	pkt, err := NewBuilder(Ethernet).Build(NewID(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2"), 1, 2, 6), nil)
	assert.NoError(err)
	_, err = p.Parse(pkt[:20])
	assert.ErrorIs(err, ErrMalformed)
}

func TestParseFragment(t *testing.T) {
	assert := require.New(t)

	buf := gopacket.NewSerializeBuffer()
	ip := &layers.IPv4{
		Version:    4,
		IHL:        5,
		TTL:        64,
		Protocol:   layers.IPProtocolUDP,
		Flags:      0,
		FragOffset: 100,
		SrcIP:      []byte{10, 0, 0, 1},
		DstIP:      []byte{10, 0, 0, 2},
	}
	assert.NoError(gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip, gopacket.Payload([]byte("fragment data, not a udp header"))))

	id, err := NewParser(RawIP).Parse(buf.Bytes())
	assert.NoError(err)
	assert.Equal(uint16(0), id.SrcPort)
	assert.Equal(uint16(0), id.DstPort)
	assert.Equal(uint8(17), id.Proto)
	assert.Equal("10.0.0.1", id.SrcAddr().String())
}

func TestParseVLAN(t *testing.T) {
	assert := require.New(t)

	buf := gopacket.NewSerializeBuffer()
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: []byte{10, 0, 0, 1}, DstIP: []byte{10, 0, 0, 2}}
	udp := &layers.UDP{SrcPort: 1111, DstPort: 2222}
	assert.NoError(udp.SetNetworkLayerForChecksum(ip))
	assert.NoError(gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&layers.Ethernet{SrcMAC: defaultSrcMAC, DstMAC: defaultDstMAC, EthernetType: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 42, Type: layers.EthernetTypeIPv4},
		ip, udp, gopacket.Payload([]byte("x"))))

	id, err := NewParser(Ethernet).Parse(buf.Bytes())
	assert.NoError(err)
	assert.Equal(uint16(1111), id.SrcPort)
	assert.Equal(uint16(2222), id.DstPort)
}

func BenchmarkParse(b *testing.B) {
	pkt, err := NewBuilder(Ethernet).Build(NewID(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2"), 40000, 443, 6), make([]byte, 64))
	if err != nil {
		b.Fatal(err)
	}
	p := NewParser(Ethernet)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Parse(pkt); err != nil {
			b.Fatal(err)
		}
	}
}
