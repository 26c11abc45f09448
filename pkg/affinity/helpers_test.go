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
	"net/netip"
	"sync"
	"testing"

	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/flow"
	"github.com/stretchr/testify/require"
)

// testFlow returns a distinct TCP flow for each n
func testFlow(n int) flow.ID {
	src := netip.AddrFrom4([4]byte{10, byte(n >> 16), byte(n >> 8), byte(n)})
	return flow.NewID(src, netip.MustParseAddr("192.168.1.1"), uint16(1024+n%50000), 80, 6)
}

// flowInGroup searches for a flow that maps to the group
func flowInGroup(t *testing.T, table *OwnerTable, group uint32, skip int) flow.ID {
	for i := 0; i < 100000; i++ {
		id := testFlow(i)
		if table.GroupOf(id) != group {
			continue
		}
		if skip == 0 {
			return id
		}
		skip--
	}
	require.FailNow(t, "No flow found for group", "group=%d", group)
	return flow.ID{}
}

func newTestTable(t *testing.T, cores int, assignment []int, params Parameters) (*Context, *OwnerTable) {
	assert := require.New(t)
	ctx := NewContext(cores)
	assert.NoError(ctx.InitAssignment(assignment))
	table, err := NewOwnerTable(ctx, params, nil)
	assert.NoError(err)
	return ctx, table
}

// countingSink counts the events the table and the controller report
type countingSink struct {
	metrics.Sink
	mutex    sync.Mutex
	capacity int
	rejected map[string]int
}

func newCountingSink() *countingSink {
	return &countingSink{Sink: metrics.NewBlackHoleSink(), rejected: make(map[string]int)}
}

func (c *countingSink) CapacityExceeded() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.capacity++
}

func (c *countingSink) MigrationRejected(reason string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.rejected[reason]++
}

func (c *countingSink) CapacityCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.capacity
}

func (c *countingSink) RejectedCount(reason string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.rejected[reason]
}
