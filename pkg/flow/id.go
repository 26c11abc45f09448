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
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"net/netip"
)

// ID is the 5-tuple identity of a flow. Addresses are kept in their 16 byte
// form. IPv4 addresses are stored as IPv4-mapped IPv6 addresses so the type is
// comparable and can be used directly as a map key.
type ID struct {
	Src     [16]byte
	Dst     [16]byte
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

// NewID creates a flow identity from its parts
func NewID(src, dst netip.Addr, srcPort, dstPort uint16, proto uint8) ID {
	return ID{
		Src:     src.As16(),
		Dst:     dst.As16(),
		SrcPort: srcPort,
		DstPort: dstPort,
		Proto:   proto,
	}
}

// SrcAddr returns the source address
func (id ID) SrcAddr() netip.Addr {
	return netip.AddrFrom16(id.Src).Unmap()
}

// DstAddr returns the destination address
func (id ID) DstAddr() netip.Addr {
	return netip.AddrFrom16(id.Dst).Unmap()
}

// Reverse returns the identity of the opposite direction
func (id ID) Reverse() ID {
	return ID{
		Src:     id.Dst,
		Dst:     id.Src,
		SrcPort: id.DstPort,
		DstPort: id.SrcPort,
		Proto:   id.Proto,
	}
}

// Canonical orders the two endpoints so that an identity and its reverse
// yield the same value.
func (id ID) Canonical() ID {
	c := bytes.Compare(id.Src[:], id.Dst[:])
	if c > 0 || (c == 0 && id.SrcPort > id.DstPort) {
		return id.Reverse()
	}
	return id
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%s -> %s",
		id.Proto,
		netip.AddrPortFrom(id.SrcAddr(), id.SrcPort),
		netip.AddrPortFrom(id.DstAddr(), id.DstPort))
}

var crc64table = crc64.MakeTable(crc64.ISO)

// Hash returns a 64-bit hash of the identity. The hash is stable across
// processes so it can be used to derive flow groups.
func (id ID) Hash() uint64 {
	var buf [37]byte
	copy(buf[0:16], id.Src[:])
	copy(buf[16:32], id.Dst[:])
	binary.BigEndian.PutUint16(buf[32:], id.SrcPort)
	binary.BigEndian.PutUint16(buf[34:], id.DstPort)
	buf[36] = id.Proto
	return crc64.Checksum(buf[:], crc64table)
}

// Mode is the normalization applied to identities before they are used as
// table keys.
type Mode int

// Normalization modes
const (
	// Directional keeps the identity as seen on the wire; the two directions
	// of a connection are two different flows.
	Directional Mode = iota
	// Symmetric maps both directions of a connection to the same identity.
	Symmetric
)

// Normalize applies the mode to the identity
func (m Mode) Normalize(id ID) ID {
	if m == Symmetric {
		return id.Canonical()
	}
	return id
}

func (m Mode) String() string {
	switch m {
	case Directional:
		return "directional"
	case Symmetric:
		return "symmetric"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
