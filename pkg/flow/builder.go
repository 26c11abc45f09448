package flow

//
//Copyright 2019 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	defaultSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	defaultDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Builder serializes packets for a flow identity. It is used by the traffic
// generator and in tests. The type is not thread safe.
type Builder struct {
	link LinkType
	buf  gopacket.SerializeBuffer
	opts gopacket.SerializeOptions
}

// NewBuilder creates a packet builder for the link type
func NewBuilder(link LinkType) *Builder {
	return &Builder{
		link: link,
		buf:  gopacket.NewSerializeBuffer(),
		opts: gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
	}
}

// Build returns a new packet with the headers for the flow and the payload.
func (b *Builder) Build(id ID, payload []byte) ([]byte, error) {
	src, dst := id.SrcAddr(), id.DstAddr()
	if src.Is4() != dst.Is4() {
		return nil, errors.New("source and destination address families differ")
	}

	var stack []gopacket.SerializableLayer
	var network gopacket.NetworkLayer
	var ethType layers.EthernetType
	if src.Is4() {
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocol(id.Proto),
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		}
		network, ethType = ip, layers.EthernetTypeIPv4
		stack = append(stack, ip)
	} else {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocol(id.Proto),
			SrcIP:      net.IP(src.AsSlice()),
			DstIP:      net.IP(dst.AsSlice()),
		}
		network, ethType = ip, layers.EthernetTypeIPv6
		stack = append(stack, ip)
	}

	switch layers.IPProtocol(id.Proto) {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(id.SrcPort),
			DstPort: layers.TCPPort(id.DstPort),
			ACK:     true,
			Window:  65535,
		}
		if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		stack = append(stack, tcp)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(id.SrcPort),
			DstPort: layers.UDPPort(id.DstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		stack = append(stack, udp)
	}
	stack = append(stack, gopacket.Payload(payload))

	if b.link == Ethernet {
		eth := &layers.Ethernet{
			SrcMAC:       defaultSrcMAC,
			DstMAC:       defaultDstMAC,
			EthernetType: ethType,
		}
		stack = append([]gopacket.SerializableLayer{eth}, stack...)
	}

	if err := gopacket.SerializeLayers(b.buf, b.opts, stack...); err != nil {
		return nil, err
	}
	ret := make([]byte, len(b.buf.Bytes()))
	copy(ret, b.buf.Bytes())
	return ret, nil
}
