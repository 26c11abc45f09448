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
	"errors"
	"fmt"

	"github.com/lab5e/flowfunk/pkg/affinity"
)

type group struct {
	id     int
	weight int
}

// coreData holds the groups assigned to a single core
type coreData struct {
	core        int
	totalWeight int
	groups      []group
}

func (cd *coreData) addGroup(g group) {
	cd.totalWeight += g.weight
	cd.groups = append(cd.groups, g)
}

// removeGroup removes the first group that fits into the preferred weight.
// If none of the groups fit the first group is removed.
func (cd *coreData) removeGroup(preferredWeight int) group {
	for i, g := range cd.groups {
		if g.weight <= preferredWeight {
			cd.groups = append(cd.groups[:i], cd.groups[i+1:]...)
			cd.totalWeight -= g.weight
			return g
		}
	}
	ret := cd.groups[0]
	cd.groups = cd.groups[1:]
	cd.totalWeight -= ret.weight
	return ret
}

// Distribute assigns groups to cores. The weights are optional; when set
// there must be one weight per group and every weight must be positive.
// Cores are added one by one and each new core takes groups from the cores
// above the target weight, so growing the core count moves as few groups as
// possible.
func Distribute(groups int, weights []int, cores int) ([]int, error) {
	if groups < 1 {
		return nil, errors.New("groups must be > 0")
	}
	if cores < 1 {
		return nil, fmt.Errorf("%w: need at least one core", affinity.ErrInvalidCore)
	}
	if weights != nil && len(weights) != groups {
		return nil, errors.New("groups and len(weights) must be the same")
	}

	totalWeight := 0
	first := &coreData{core: 0}
	for i := 0; i < groups; i++ {
		weight := 1
		if weights != nil {
			weight = weights[i]
		}
		if weight < 1 {
			return nil, fmt.Errorf("can't use weight = %d for group %d", weight, i)
		}
		totalWeight += weight
		first.addGroup(group{id: i, weight: weight})
	}

	assigned := []*coreData{first}
	for core := 1; core < cores; core++ {
		newCore := &coreData{core: core}
		// The existing cores keep at most the rounded up share
		limit := (totalWeight + len(assigned)) / (len(assigned) + 1)
		for _, cd := range assigned {
			for cd.totalWeight > limit && len(cd.groups) > 1 {
				newCore.addGroup(cd.removeGroup(cd.totalWeight - limit))
			}
		}
		assigned = append(assigned, newCore)
	}

	ret := make([]int, groups)
	for _, cd := range assigned {
		for _, g := range cd.groups {
			ret[g.id] = cd.core
		}
	}
	return ret, nil
}
