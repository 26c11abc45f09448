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
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrMalformed is returned when a packet does not yield a flow identity
var ErrMalformed = errors.New("malformed packet: no flow identity")

// LinkType is the framing of the buffers handed to the parser
type LinkType int

// Supported link types
const (
	Ethernet LinkType = iota // Ethernet II frames, optionally 802.1Q tagged
	RawIP                    // IPv4 or IPv6 packets without a link header
)

// ParseLinkType converts a configuration string into a link type
func ParseLinkType(s string) (LinkType, error) {
	switch s {
	case "ethernet", "":
		return Ethernet, nil
	case "ip":
		return RawIP, nil
	default:
		return Ethernet, fmt.Errorf("unknown link type: %q", s)
	}
}

// Parser extracts flow identities from raw packets. The parser keeps its
// decoding state between calls and must not be shared between goroutines;
// create one per worker.
type Parser struct {
	link    LinkType
	eth     *gopacket.DecodingLayerParser
	ip4     *gopacket.DecodingLayerParser
	ip6     *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	ethLayer layers.Ethernet
	dot1q    layers.Dot1Q
	ipv4     layers.IPv4
	ipv6     layers.IPv6
	tcp      layers.TCP
	udp      layers.UDP
}

// NewParser creates a parser for the link type
func NewParser(link LinkType) *Parser {
	p := &Parser{
		link:    link,
		decoded: make([]gopacket.LayerType, 0, 8),
	}
	decoders := []gopacket.DecodingLayer{&p.ethLayer, &p.dot1q, &p.ipv4, &p.ipv6, &p.tcp, &p.udp}
	p.eth = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, decoders...)
	p.ip4 = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, decoders...)
	p.ip6 = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv6, decoders...)
	// Anything past the transport header (and ICMP, fragments, unknown
	// extension headers) ends decoding without an error.
	p.eth.IgnoreUnsupported = true
	p.ip4.IgnoreUnsupported = true
	p.ip6.IgnoreUnsupported = true
	return p
}

func (p *Parser) parserFor(data []byte) *gopacket.DecodingLayerParser {
	if p.link == Ethernet {
		return p.eth
	}
	if len(data) > 0 && data[0]>>4 == 6 {
		return p.ip6
	}
	return p.ip4
}

// Parse returns the identity of the packet. Packets without an IP header
// return ErrMalformed. Fragmented IPv4 datagrams and protocols without ports
// get zero ports so every packet of the datagram maps to the same identity.
func (p *Parser) Parse(data []byte) (ID, error) {
	var id ID
	if len(data) == 0 {
		return id, ErrMalformed
	}
	p.decoded = p.decoded[:0]
	if err := p.parserFor(data).DecodeLayers(data, &p.decoded); err != nil {
		return id, ErrMalformed
	}

	haveIP := false
	for _, lt := range p.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			if len(p.ipv4.SrcIP) != 4 || len(p.ipv4.DstIP) != 4 {
				return id, ErrMalformed
			}
			id = ID{Proto: uint8(p.ipv4.Protocol)}
			mapIPv4(&id.Src, p.ipv4.SrcIP)
			mapIPv4(&id.Dst, p.ipv4.DstIP)
			haveIP = true
		case layers.LayerTypeIPv6:
			if len(p.ipv6.SrcIP) != 16 || len(p.ipv6.DstIP) != 16 {
				return id, ErrMalformed
			}
			id = ID{Proto: uint8(p.ipv6.NextHeader)}
			copy(id.Src[:], p.ipv6.SrcIP)
			copy(id.Dst[:], p.ipv6.DstIP)
			haveIP = true
		case layers.LayerTypeTCP:
			id.SrcPort = uint16(p.tcp.SrcPort)
			id.DstPort = uint16(p.tcp.DstPort)
			id.Proto = uint8(layers.IPProtocolTCP)
		case layers.LayerTypeUDP:
			id.SrcPort = uint16(p.udp.SrcPort)
			id.DstPort = uint16(p.udp.DstPort)
			id.Proto = uint8(layers.IPProtocolUDP)
		}
	}
	if !haveIP {
		return id, ErrMalformed
	}
	return id, nil
}

func mapIPv4(dst *[16]byte, ip []byte) {
	dst[10] = 0xff
	dst[11] = 0xff
	copy(dst[12:], ip)
}
