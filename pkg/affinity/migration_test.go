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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/flow"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, cores int, assignment []int) (*Context, *OwnerTable, *MigrationController) {
	return newTestControllerWithSink(t, cores, assignment, metrics.NewBlackHoleSink())
}

func newTestControllerWithSink(t *testing.T, cores int, assignment []int, sink metrics.Sink) (*Context, *OwnerTable, *MigrationController) {
	ctx, table := newTestTable(t, cores, assignment, DefaultParameters())
	mc, err := NewMigrationController(ctx, table, sink)
	require.NoError(t, err)
	return ctx, table, mc
}

func countInGroup(table *OwnerTable, group uint32, owner int) int {
	n := 0
	table.ForEachInGroup(group, owner, func(flow.ID) { n++ })
	return n
}

func TestMigrationStateString(t *testing.T) {
	assert := require.New(t)
	assert.Equal("Stable", Stable.String())
	assert.Equal("Draining", Draining.String())
	assert.Equal("MigrationState(9)", MigrationState(9).String())
}

func TestMigrationControllerNotInitialized(t *testing.T) {
	_, err := NewMigrationController(NewContext(2), nil, nil)
	require.ErrorIs(t, err, ErrNotInitialized)
}

// A flow in group 1 starts on core 1 and moves to core 0
func TestMigrateGroup(t *testing.T) {
	assert := require.New(t)
	ctx, table, mc := newTestController(t, 2, []int{0, 1, 0})

	id := flowInGroup(t, table, 1, 0)
	assert.Equal(1, table.LookupOrAssign(id))
	for i := 1; i < 20; i++ {
		table.LookupOrAssign(flowInGroup(t, table, 1, i))
	}
	unrelated := flowInGroup(t, table, 0, 0)
	assert.Equal(0, table.LookupOrAssign(unrelated))
	assert.Equal(20, countInGroup(table, 1, 1))

	status, err := mc.PreMigrate(1, []Move{{Group: 1, To: 0}})
	assert.NoError(err)
	assert.Equal(1, status.Source)
	assert.Equal(uint64(1), status.Epoch)
	assert.Equal(20, status.Moved)
	assert.Equal(Draining, status.State)
	assert.Equal(uint64(1), ctx.Generation())

	assert.Equal(0, ctx.Plan().CoreForGroup(1))
	assert.Zero(countInGroup(table, 1, 1))
	assert.Equal(20, countInGroup(table, 1, 0))
	assert.Equal(0, table.LookupOrAssign(id))
	epoch, _ := table.Epoch(id)
	assert.Equal(uint64(1), epoch)
	epoch, _ = table.Epoch(unrelated)
	assert.Equal(uint64(0), epoch, "Unrelated flows are not touched")

	assert.Equal(Draining, mc.State(1))
	assert.Equal(Stable, mc.State(0))
	assert.True(mc.IsDraining(1))
	assert.False(mc.IsDraining(0))
	assert.False(mc.IsDraining(100))
	assert.Len(mc.Pending(), 1)

	status, err = mc.PostMigrate(1)
	assert.NoError(err)
	assert.Equal(Stable, status.State)
	assert.Equal(uint64(1), status.Epoch)
	assert.Equal(Stable, mc.State(1))
	assert.False(mc.IsDraining(1))
	assert.Empty(mc.Pending())

	// The next packet of the flow goes to core 0, as do new flows in the group
	assert.Equal(0, table.LookupOrAssign(id))
	assert.Equal(0, table.LookupOrAssign(flowInGroup(t, table, 1, 500)))
	assert.Equal(0, ctx.Plan().CoreForGroup(1))
}

func TestPreMigrateRejected(t *testing.T) {
	_, table, mc := newTestController(t, 3, []int{0, 1, 2, 1})
	for i := 0; i < 200; i++ {
		table.LookupOrAssign(testFlow(i))
	}

	tests := []struct {
		name   string
		source int
		moves  []Move
		err    error
	}{
		{"source out of range", 3, []Move{{Group: 0, To: 1}}, ErrInvalidCore},
		{"negative source", -1, []Move{{Group: 0, To: 1}}, ErrInvalidCore},
		{"no moves", 1, nil, ErrProtocolMisuse},
		{"unknown group", 1, []Move{{Group: 4, To: 0}}, ErrUnknownGroup},
		{"destination out of range", 1, []Move{{Group: 1, To: 3}}, ErrInvalidCore},
		{"destination is source", 1, []Move{{Group: 1, To: 1}}, ErrInvalidCore},
		{"duplicate group", 1, []Move{{Group: 1, To: 0}, {Group: 1, To: 2}}, ErrProtocolMisuse},
		{"second move invalid", 1, []Move{{Group: 1, To: 0}, {Group: 3, To: 5}}, ErrInvalidCore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := require.New(t)
			before := table.CountByCore()
			plan := table.plan.Snapshot()
			_, err := mc.PreMigrate(tt.source, tt.moves)
			assert.ErrorIs(err, tt.err)
			assert.Equal(before, table.CountByCore(), "Rejected migration should not change the table")
			assert.Equal(plan, table.plan.Snapshot(), "Rejected migration should not change the plan")
			assert.Empty(mc.Pending())
			assert.Equal(uint64(0), table.ctx.Generation())
		})
	}
}

// Overlapping pre-migrations without a post-migration are rejected
func TestNoDoubleDrain(t *testing.T) {
	assert := require.New(t)
	ctx, table, mc := newTestController(t, 3, []int{0, 1, 2, 1})
	for i := 0; i < 200; i++ {
		table.LookupOrAssign(testFlow(i))
	}

	_, err := mc.PreMigrate(1, []Move{{Group: 1, To: 0}})
	assert.NoError(err)
	before := table.CountByCore()
	plan := ctx.Plan().Snapshot()

	// Same source
	_, err = mc.PreMigrate(1, []Move{{Group: 3, To: 2}})
	assert.ErrorIs(err, ErrProtocolMisuse)

	// Group still draining, now planned to core 0
	_, err = mc.PreMigrate(0, []Move{{Group: 1, To: 2}})
	assert.ErrorIs(err, ErrProtocolMisuse)

	assert.Equal(before, table.CountByCore())
	assert.Equal(plan, ctx.Plan().Snapshot())
	assert.Equal(uint64(1), ctx.Generation())

	// Other sources are independent
	_, err = mc.PreMigrate(2, []Move{{Group: 2, To: 0}})
	assert.NoError(err)
	assert.Len(mc.Pending(), 2)
	assert.Equal(uint64(2), ctx.Generation())

	_, err = mc.PostMigrate(1)
	assert.NoError(err)
	_, err = mc.PreMigrate(0, []Move{{Group: 1, To: 2}})
	assert.NoError(err, "Group can move again after post-migration")
	assert.Equal(2, ctx.Plan().CoreForGroup(1))
}

// Post-migration without a pre-migration is rejected
func TestPostMigrateWithoutPreMigrate(t *testing.T) {
	assert := require.New(t)
	sink := newCountingSink()
	ctx, table, mc := newTestControllerWithSink(t, 3, []int{0, 1, 2}, sink)
	for i := 0; i < 50; i++ {
		table.LookupOrAssign(testFlow(i))
	}
	before := table.CountByCore()

	_, err := mc.PostMigrate(2)
	assert.ErrorIs(err, ErrProtocolMisuse)
	assert.Equal(1, sink.RejectedCount("misuse"))
	_, err = mc.PostMigrate(7)
	assert.ErrorIs(err, ErrInvalidCore)
	assert.Equal(1, sink.RejectedCount("invalidCore"))

	assert.Equal(before, table.CountByCore())
	assert.Equal([]int{0, 1, 2}, ctx.Plan().Snapshot())
	assert.Equal(uint64(0), ctx.Generation())
	assert.Equal(Stable, mc.State(2))

	// Completing twice is also misuse
	_, err = mc.PreMigrate(2, []Move{{Group: 2, To: 0}})
	assert.NoError(err)
	_, err = mc.PostMigrate(2)
	assert.NoError(err)
	assert.Equal(1, sink.RejectedCount("misuse"))
	_, err = mc.PostMigrate(2)
	assert.ErrorIs(err, ErrProtocolMisuse)
	assert.Equal(2, sink.RejectedCount("misuse"))
}

// A record that was handed to another core than the plan says moves with
// that core; records still on the planned core stay where they are.
func TestMigrateRecordOutsidePlan(t *testing.T) {
	assert := require.New(t)
	ctx, table, mc := newTestController(t, 3, []int{0, 1, 2})

	moved := flowInGroup(t, table, 0, 0)
	stays := flowInGroup(t, table, 0, 1)
	assert.Equal(0, table.LookupOrAssign(moved))
	assert.Equal(0, table.LookupOrAssign(stays))
	assert.NoError(table.Reassign(moved, 1))

	status, err := mc.PreMigrate(1, []Move{{Group: 0, To: 2}})
	assert.NoError(err)
	assert.Equal(1, status.Moved)
	assert.Equal(2, table.LookupOrAssign(moved))
	assert.Equal(0, table.LookupOrAssign(stays))
	assert.Equal(2, ctx.Plan().CoreForGroup(0))
	assert.Equal(2, table.LookupOrAssign(flowInGroup(t, table, 0, 2)), "New flows follow the plan")

	_, err = mc.PostMigrate(1)
	assert.NoError(err)
}

// Workers keep reading flows in the group while it moves. Every read returns
// either the old or the new owner.
func TestMigrateWithConcurrentReaders(t *testing.T) {
	assert := require.New(t)
	const from, to = 1, 3
	_, table, mc := newTestController(t, 4, []int{0, 1, 2, 3})

	var ids []flow.ID
	for i := 0; i < 512; i++ {
		id := flowInGroup(t, table, 1, i)
		assert.Equal(from, table.LookupOrAssign(id))
		ids = append(ids, id)
	}

	var bad atomic.Int64
	var reads atomic.Int64
	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for n := offset; ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				if owner := table.LookupOrAssign(ids[n%len(ids)]); owner != from && owner != to {
					bad.Add(1)
				}
				reads.Add(1)
			}
		}(w * 128)
	}

	for reads.Load() < 1000 {
		// let the readers start
	}
	status, err := mc.PreMigrate(from, []Move{{Group: 1, To: to}})
	assert.NoError(err)
	assert.Equal(len(ids), status.Moved)
	close(stop)
	wg.Wait()

	assert.Zero(bad.Load())
	for _, id := range ids {
		assert.Equal(to, table.LookupOrAssign(id))
	}
	assert.Equal(len(ids), table.Len())
}

func TestMigrateMultipleGroups(t *testing.T) {
	assert := require.New(t)
	ctx, table, mc := newTestController(t, 4, []int{0, 0, 0, 1, 2, 3})
	for i := 0; i < 1000; i++ {
		table.LookupOrAssign(testFlow(i))
	}
	expected := countInGroup(table, 0, 0) + countInGroup(table, 2, 0)

	status, err := mc.PreMigrate(0, []Move{{Group: 0, To: 1}, {Group: 2, To: 3}})
	assert.NoError(err)
	assert.Equal(expected, status.Moved)
	assert.Zero(countInGroup(table, 0, 0))
	assert.Zero(countInGroup(table, 2, 0))
	assert.Equal([]int{1, 0, 3, 1, 2, 3}, ctx.Plan().Snapshot())
	assert.NotZero(countInGroup(table, 1, 0), "Group 1 stays on core 0")
}

// New flows keep arriving while the migration runs. No flow in the moved
// group may be left on the source core.
func TestMigrateWithConcurrentInserts(t *testing.T) {
	assert := require.New(t)
	ctx, table, mc := newTestController(t, 4, []int{0, 1, 2, 3})

	var next atomic.Int64
	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				table.LookupOrAssign(testFlow(int(next.Add(1))))
			}
		}()
	}

	for next.Load() < 2000 {
		// wait for some records
	}
	_, err := mc.PreMigrate(1, []Move{{Group: 1, To: 3}})
	assert.NoError(err)
	assert.Zero(countInGroup(table, 1, 1))
	close(stop)
	wg.Wait()

	assert.Zero(countInGroup(table, 1, 1))
	assert.Equal(3, ctx.Plan().CoreForGroup(1))
	assert.Zero(table.CountByCore()[1])
}
