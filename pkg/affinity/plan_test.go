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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	assert := require.New(t)

	p, err := newPlan(3, []int{0, 1, 2, 0, 1})
	assert.NoError(err)
	assert.Equal(5, p.Groups())
	assert.Equal(3, p.Cores())

	assert.Equal(1, p.CoreForGroup(1))
	assert.Equal(-1, p.CoreForGroup(5))
	assert.Equal([]uint32{0, 3}, p.GroupsForCore(0))
	assert.Empty(p.GroupsForCore(4))

	assert.NoError(p.Install(3, 2))
	assert.Equal(2, p.CoreForGroup(3))
	assert.ErrorIs(p.Install(5, 0), ErrUnknownGroup)
	assert.ErrorIs(p.Install(0, 3), ErrInvalidCore)
	assert.ErrorIs(p.Install(0, -1), ErrInvalidCore)
	assert.Equal([]int{0, 1, 2, 2, 1}, p.Snapshot())

	snapshot := p.Snapshot()
	snapshot[0] = 2
	assert.Equal(0, p.CoreForGroup(0), "Snapshot should be a copy")
}

func TestPlanMarshal(t *testing.T) {
	assert := require.New(t)

	p, err := newPlan(200, []int{0, 199, 150, 3})
	assert.NoError(err)
	buf, err := p.MarshalBinary()
	assert.NoError(err)

	var q Plan
	assert.NoError(q.UnmarshalBinary(buf))
	assert.Equal(p.Cores(), q.Cores())
	assert.Equal(p.Snapshot(), q.Snapshot())

	assert.Error(q.UnmarshalBinary(buf[:len(buf)-1]), "Truncated buffer should fail")
	assert.Error(q.UnmarshalBinary(nil), "Empty buffer has no core count")
	assert.Equal(p.Snapshot(), q.Snapshot(), "Failed unmarshal should not change the plan")
}
