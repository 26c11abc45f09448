package affinity

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
	"sync/atomic"

	"google.golang.org/protobuf/encoding/protowire"
)

// Plan is the assignment plan. It maps flow groups to the core that owns
// flows in the group that haven't been seen yet. Every entry is replaced
// atomically so readers of one group never block and never observe a
// partially written value. The number of groups is fixed when the plan is
// created.
type Plan struct {
	cores   int
	entries []atomic.Int32
}

func newPlan(cores int, assignment []int) (*Plan, error) {
	if cores < 1 {
		return nil, fmt.Errorf("%w: need at least one core, got %d", ErrInvalidCore, cores)
	}
	if len(assignment) == 0 {
		return nil, fmt.Errorf("%w: plan has no groups", ErrUnknownGroup)
	}
	p := &Plan{
		cores:   cores,
		entries: make([]atomic.Int32, len(assignment)),
	}
	for group, core := range assignment {
		if core < 0 || core >= cores {
			return nil, fmt.Errorf("%w: group %d is assigned to core %d", ErrInvalidCore, group, core)
		}
		p.entries[group].Store(int32(core))
	}
	return p, nil
}

// Groups returns the number of flow groups in the plan
func (p *Plan) Groups() int {
	return len(p.entries)
}

// Cores returns the number of cores the plan distributes over
func (p *Plan) Cores() int {
	return p.cores
}

// CoreForGroup returns the core a group is assigned to or -1 if the group is
// outside the plan.
func (p *Plan) CoreForGroup(group uint32) int {
	if int(group) >= len(p.entries) {
		return -1
	}
	return int(p.entries[group].Load())
}

// Install assigns a group to a core. Readers of other groups are unaffected.
func (p *Plan) Install(group uint32, core int) error {
	if int(group) >= len(p.entries) {
		return fmt.Errorf("%w: %d (plan has %d groups)", ErrUnknownGroup, group, len(p.entries))
	}
	if core < 0 || core >= p.cores {
		return fmt.Errorf("%w: %d", ErrInvalidCore, core)
	}
	p.entries[group].Store(int32(core))
	return nil
}

// Snapshot returns a copy of the plan, indexed by group
func (p *Plan) Snapshot() []int {
	ret := make([]int, len(p.entries))
	for i := range p.entries {
		ret[i] = int(p.entries[i].Load())
	}
	return ret
}

// GroupsForCore returns the groups currently assigned to a core
func (p *Plan) GroupsForCore(core int) []uint32 {
	var ret []uint32
	for i := range p.entries {
		if int(p.entries[i].Load()) == core {
			ret = append(ret, uint32(i))
		}
	}
	return ret
}

const (
	planCoresField   protowire.Number = 1
	planEntriesField protowire.Number = 2
)

// MarshalBinary encodes the plan in protobuf wire format: field 1 is the core
// count, field 2 the packed list of cores indexed by group.
func (p *Plan) MarshalBinary() ([]byte, error) {
	snapshot := p.Snapshot()
	var packed []byte
	for _, core := range snapshot {
		packed = protowire.AppendVarint(packed, uint64(core))
	}
	buf := protowire.AppendTag(nil, planCoresField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(p.cores))
	buf = protowire.AppendTag(buf, planEntriesField, protowire.BytesType)
	buf = protowire.AppendBytes(buf, packed)
	return buf, nil
}

// UnmarshalBinary decodes a plan written by MarshalBinary. This replaces the
// entries and must only be used on a plan that isn't shared yet.
func (p *Plan) UnmarshalBinary(buf []byte) error {
	cores := 0
	var assignment []int
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return protowire.ParseError(n)
		}
		buf = buf[n:]
		switch {
		case num == planCoresField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			cores = int(v)
			buf = buf[n:]
		case num == planEntriesField && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return protowire.ParseError(m)
				}
				assignment = append(assignment, int(v))
				packed = packed[m:]
			}
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
		}
	}
	if cores == 0 {
		return errors.New("plan does not contain a core count")
	}
	np, err := newPlan(cores, assignment)
	if err != nil {
		return err
	}
	p.cores = np.cores
	p.entries = np.entries
	return nil
}
