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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/flow"
)

const cacheLineSize = 64

// ownerRecord is the value stored per flow. The owner is replaced with a
// single atomic store so readers see either the old or the new owner. The
// epoch is the generation the owner was last written in.
type ownerRecord struct {
	id    flow.ID
	group uint32
	index int // position in segment.groups[group], guarded by the segment mutex
	owner atomic.Int32
	epoch atomic.Uint64
}

// segment is one independently locked part of the table. Lookups take the
// read lock, inserts and removals the write lock. Owners are changed under
// the read lock since the record itself isn't modified structurally.
type segment struct {
	mutex   sync.RWMutex
	records map[flow.ID]*ownerRecord
	groups  map[uint32][]*ownerRecord
	limit   int // 0 is unbounded
	_       [cacheLineSize]byte
}

// OwnerTable maps flow identities to the core owning them. The table is split
// into segments selected by the flow hash so lookups on unrelated flows from
// different workers don't contend. Records are created on the first lookup of
// a flow and are never removed by the table itself.
type OwnerTable struct {
	ctx      *Context
	plan     *Plan
	mode     flow.Mode
	segments []*segment
	size     atomic.Int64
	metrics  metrics.Sink
}

// NewOwnerTable creates a new owner table. The context must have an
// initialized plan.
func NewOwnerTable(ctx *Context, params Parameters, sink metrics.Sink) (*OwnerTable, error) {
	plan := ctx.Plan()
	if plan == nil {
		return nil, ErrNotInitialized
	}
	params.Final()
	if sink == nil {
		sink = metrics.NewBlackHoleSink()
	}
	t := &OwnerTable{
		ctx:      ctx,
		plan:     plan,
		mode:     params.Mode(),
		segments: make([]*segment, params.Segments),
		metrics:  sink,
	}
	// The capacity is split over the segments so the limits add up to the
	// capacity. Final keeps the segment count at or below the capacity.
	for i := range t.segments {
		limit := 0
		if params.Capacity > 0 {
			limit = params.Capacity / params.Segments
			if i < params.Capacity%params.Segments {
				limit++
			}
		}
		t.segments[i] = &segment{
			records: make(map[flow.ID]*ownerRecord, limit),
			groups:  make(map[uint32][]*ownerRecord),
			limit:   limit,
		}
	}
	return t, nil
}

// locate normalizes the identity and returns the key, the segment and the
// flow group. The segment uses the upper half of the hash and the group the
// lower half so a group's records are spread over all segments.
func (t *OwnerTable) locate(id flow.ID) (flow.ID, *segment, uint32) {
	key := t.mode.Normalize(id)
	hash := key.Hash()
	seg := t.segments[(hash>>32)%uint64(len(t.segments))]
	group := uint32((hash & 0xffffffff) % uint64(t.plan.Groups()))
	return key, seg, group
}

// GroupOf returns the flow group for an identity
func (t *OwnerTable) GroupOf(id flow.ID) uint32 {
	_, _, group := t.locate(id)
	return group
}

// Mode returns the normalization mode used for keys
func (t *OwnerTable) Mode() flow.Mode {
	return t.mode
}

// LookupOrAssign returns the core owning the flow. Flows seen for the first
// time are assigned to the core the plan has for their group and a record is
// created. If the table is full the plan's core is returned without creating
// a record. This never fails.
func (t *OwnerTable) LookupOrAssign(id flow.ID) int {
	key, seg, group := t.locate(id)

	seg.mutex.RLock()
	rec, ok := seg.records[key]
	seg.mutex.RUnlock()
	if ok {
		return int(rec.owner.Load())
	}

	core, err := t.insert(seg, key, group)
	if err != nil {
		t.metrics.CapacityExceeded()
	}
	return core
}

func (t *OwnerTable) insert(seg *segment, key flow.ID, group uint32) (int, error) {
	seg.mutex.Lock()
	defer seg.mutex.Unlock()

	// Another worker might have inserted it while we waited for the lock.
	if rec, ok := seg.records[key]; ok {
		return int(rec.owner.Load()), nil
	}

	// The plan is read while holding the segment lock. A migration installs
	// the new plan entry before it scans the segments, so a record created
	// with the old owner here is always visible to that scan.
	core := t.plan.CoreForGroup(group)
	if seg.limit > 0 && len(seg.records) >= seg.limit {
		return core, ErrCapacityExceeded
	}

	rec := &ownerRecord{id: key, group: group, index: len(seg.groups[group])}
	rec.owner.Store(int32(core))
	rec.epoch.Store(t.ctx.Generation())
	seg.records[key] = rec
	seg.groups[group] = append(seg.groups[group], rec)
	t.size.Add(1)
	t.metrics.FlowInserted()
	return core, nil
}

// Lookup returns the owner of a flow without creating a record
func (t *OwnerTable) Lookup(id flow.ID) (int, bool) {
	key, seg, _ := t.locate(id)
	seg.mutex.RLock()
	defer seg.mutex.RUnlock()
	rec, ok := seg.records[key]
	if !ok {
		return -1, false
	}
	return int(rec.owner.Load()), true
}

// Epoch returns the generation the flow's owner was last written in
func (t *OwnerTable) Epoch(id flow.ID) (uint64, bool) {
	key, seg, _ := t.locate(id)
	seg.mutex.RLock()
	defer seg.mutex.RUnlock()
	rec, ok := seg.records[key]
	if !ok {
		return 0, false
	}
	return rec.epoch.Load(), true
}

// Reassign changes the owner of an existing record. This is used by the
// migration controller. Concurrent readers see either the old or the new
// owner.
func (t *OwnerTable) Reassign(id flow.ID, newOwner int) error {
	if !t.ctx.validCore(newOwner) {
		return fmt.Errorf("%w: %d", ErrInvalidCore, newOwner)
	}
	key, seg, _ := t.locate(id)
	seg.mutex.RLock()
	defer seg.mutex.RUnlock()
	rec, ok := seg.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlow, id)
	}
	rec.owner.Store(int32(newOwner))
	rec.epoch.Store(t.ctx.Generation())
	return nil
}

// ForEachInGroup calls fn for every flow in the group owned by the core. Each
// segment is copied under its lock before fn is called so fn can use the
// table. A record inserted concurrently is either included with a complete
// state or not at all.
func (t *OwnerTable) ForEachInGroup(group uint32, owner int, fn func(id flow.ID)) {
	var ids []flow.ID
	for _, seg := range t.segments {
		ids = ids[:0]
		seg.mutex.RLock()
		for _, rec := range seg.groups[group] {
			if int(rec.owner.Load()) == owner {
				ids = append(ids, rec.id)
			}
		}
		seg.mutex.RUnlock()
		for _, id := range ids {
			fn(id)
		}
	}
}

// Remove deletes the record for a flow. The table never calls this itself;
// it's for an external expiry policy. It returns false if there's no record.
func (t *OwnerTable) Remove(id flow.ID) bool {
	key, seg, _ := t.locate(id)
	seg.mutex.Lock()
	defer seg.mutex.Unlock()
	rec, ok := seg.records[key]
	if !ok {
		return false
	}
	delete(seg.records, key)

	list := seg.groups[rec.group]
	last := len(list) - 1
	list[rec.index] = list[last]
	list[rec.index].index = rec.index
	list[last] = nil
	if last == 0 {
		delete(seg.groups, rec.group)
	} else {
		seg.groups[rec.group] = list[:last]
	}
	t.size.Add(-1)
	t.metrics.FlowRemoved()
	return true
}

// Len returns the number of flow records
func (t *OwnerTable) Len() int {
	return int(t.size.Load())
}

// Segments returns the number of segments
func (t *OwnerTable) Segments() int {
	return len(t.segments)
}

// CountByCore returns the number of flow records owned by each core. Not
// performance critical; this is used for diagnostics.
func (t *OwnerTable) CountByCore() []int {
	ret := make([]int, t.ctx.Cores())
	for _, seg := range t.segments {
		seg.mutex.RLock()
		for _, rec := range seg.records {
			ret[rec.owner.Load()]++
		}
		seg.mutex.RUnlock()
	}
	return ret
}
