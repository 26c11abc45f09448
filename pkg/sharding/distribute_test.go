package sharding

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

	"github.com/lab5e/flowfunk/pkg/affinity"
	"github.com/stretchr/testify/require"
)

// verifyDistribution ensures that every group is assigned and that the
// weight per core is within the given delta of the average.
func verifyDistribution(t *testing.T, plan []int, weights []int, cores int, delta float64) {
	assert := require.New(t)

	perCore := make([]int, cores)
	totalWeight := 0
	for g, core := range plan {
		assert.True(core >= 0 && core < cores, "Group %d is assigned to core %d", g, core)
		w := 1
		if weights != nil {
			w = weights[g]
		}
		perCore[core] += w
		totalWeight += w
	}

	weightPerCore := float64(totalWeight) / float64(cores)
	for core, w := range perCore {
		t.Logf("  core: %d w: %d", core, w)
		assert.InDelta(weightPerCore, w, delta*weightPerCore, "Distribution is incorrect for core %d", core)
	}
}

func TestDistribute(t *testing.T) {
	assert := require.New(t)

	_, err := Distribute(0, nil, 1)
	assert.Error(err)
	_, err = Distribute(10, nil, 0)
	assert.ErrorIs(err, affinity.ErrInvalidCore)
	_, err = Distribute(10, []int{1, 2}, 2)
	assert.Error(err)
	_, err = Distribute(2, []int{1, 0}, 2)
	assert.Error(err)

	plan, err := Distribute(5, nil, 1)
	assert.NoError(err)
	assert.Equal([]int{0, 0, 0, 0, 0}, plan)

	plan, err = Distribute(8, nil, 3)
	assert.NoError(err)
	verifyDistribution(t, plan, nil, 3, 0.3)

	plan, err = Distribute(1024, nil, 7)
	assert.NoError(err)
	verifyDistribution(t, plan, nil, 7, 0.05)

	weights := make([]int, 1000)
	for i := range weights {
		weights[i] = 1 + i%3
	}
	plan, err = Distribute(len(weights), weights, 9)
	assert.NoError(err)
	verifyDistribution(t, plan, weights, 9, 0.1)

	// More cores than groups leaves cores without groups but assigns all
	plan, err = Distribute(3, nil, 8)
	assert.NoError(err)
	assert.Len(plan, 3)

	ctx := affinity.NewContext(7)
	plan, err = Distribute(1024, nil, 7)
	assert.NoError(err)
	assert.NoError(ctx.InitAssignment(plan))
}

func TestDistributeStable(t *testing.T) {
	assert := require.New(t)

	// Adding a core moves roughly one core's share of groups
	before, err := Distribute(1000, nil, 4)
	assert.NoError(err)
	after, err := Distribute(1000, nil, 5)
	assert.NoError(err)

	moved := 0
	for g := range before {
		if before[g] != after[g] {
			moved++
			assert.Equal(4, after[g], "Groups only move to the new core")
		}
	}
	assert.InDelta(200, moved, 10)
}

func BenchmarkDistribute(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := Distribute(4096, nil, 16); err != nil {
			b.Fatal(err)
		}
	}
}
