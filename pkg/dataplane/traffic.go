package dataplane

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
	"math/rand"
	"net/netip"

	"github.com/lab5e/flowfunk/pkg/affinity"
	"github.com/lab5e/flowfunk/pkg/flow"
)

// TrafficGenerator produces batches of synthetic packets. The packets for
// every flow (both directions) are built up front; a batch is a random pick
// of those. The type is not thread safe, every worker has its own generator.
type TrafficGenerator struct {
	packets   [][]byte
	malformed []byte
	ratio     float64
	rnd       *rand.Rand
}

// syntheticFlow returns flow number n. Flows alternate between TCP and UDP
// and every eighth flow is IPv6.
func syntheticFlow(n int) flow.ID {
	proto := uint8(6)
	if n%2 == 1 {
		proto = 17
	}
	sport := uint16(1024 + n%60000)
	dport := uint16(80 + n%7)
	if n%8 == 7 {
		var src, dst [16]byte
		src[0], src[1], dst[0], dst[1] = 0x20, 0x01, 0x20, 0x01
		src[12], src[13], src[14], src[15] = byte(n>>24), byte(n>>16), byte(n>>8), byte(n)
		dst[15] = 1
		return flow.NewID(netip.AddrFrom16(src), netip.AddrFrom16(dst), sport, dport, proto)
	}
	src := netip.AddrFrom4([4]byte{10, byte(n >> 16), byte(n >> 8), byte(n)})
	dst := netip.AddrFrom4([4]byte{172, 16, byte(n % 4), 1})
	return flow.NewID(src, dst, sport, dport, proto)
}

// NewTrafficGenerator creates a generator for a number of flows. The ratio is
// the fraction of packets that are malformed.
func NewTrafficGenerator(link flow.LinkType, flows int, ratio float64, seed int64) (*TrafficGenerator, error) {
	builder := flow.NewBuilder(link)
	payload := []byte("flowfunk synthetic payload")
	ret := &TrafficGenerator{
		packets:   make([][]byte, 0, flows*2),
		malformed: []byte{0xff, 0xff, 0xff},
		ratio:     ratio,
		rnd:       rand.New(rand.NewSource(seed)),
	}
	for i := 0; i < flows; i++ {
		id := syntheticFlow(i)
		for _, dir := range []flow.ID{id, id.Reverse()} {
			pkt, err := builder.Build(dir, payload)
			if err != nil {
				return nil, err
			}
			ret.packets = append(ret.packets, pkt)
		}
	}
	return ret, nil
}

// Next returns a new batch with the given size. The packet buffers are
// shared between batches and must not be modified.
func (t *TrafficGenerator) Next(size int) affinity.Batch {
	batch := make(affinity.Batch, size)
	for i := range batch {
		if t.ratio > 0 && t.rnd.Float64() < t.ratio {
			batch[i] = t.malformed
			continue
		}
		batch[i] = t.packets[t.rnd.Intn(len(t.packets))]
	}
	return batch
}
