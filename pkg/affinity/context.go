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

	log "github.com/sirupsen/logrus"
)

// Context is the process-wide assignment state shared by every table,
// classifier and migration controller: the number of cores, the assignment
// plan and the migration generation. Create one and pass it to the
// components; there is no teardown.
type Context struct {
	cores      int
	mutex      *sync.Mutex
	plan       atomic.Pointer[Plan]
	generation atomic.Uint64
}

// NewContext creates a new context for a number of worker cores. The plan
// must be initialized with InitAssignment before the context is used.
func NewContext(cores int) *Context {
	return &Context{
		cores: cores,
		mutex: &sync.Mutex{},
	}
}

// InitAssignment loads the initial plan. The position in the list is the
// group ID and the value the owning core. This can be called one and only
// once.
func (c *Context) InitAssignment(assignment []int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.plan.Load() != nil {
		return ErrAlreadyInitialized
	}
	p, err := newPlan(c.cores, assignment)
	if err != nil {
		return err
	}
	c.plan.Store(p)
	log.WithFields(log.Fields{
		"cores":  c.cores,
		"groups": p.Groups(),
	}).Info("Assignment plan initialized")
	return nil
}

// Cores returns the number of worker cores
func (c *Context) Cores() int {
	return c.cores
}

// Plan returns the assignment plan or nil if it isn't initialized.
func (c *Context) Plan() *Plan {
	return c.plan.Load()
}

// Generation returns the current migration generation. It increases by one
// for every accepted pre-migration.
func (c *Context) Generation() uint64 {
	return c.generation.Load()
}

func (c *Context) nextGeneration() uint64 {
	return c.generation.Add(1)
}

func (c *Context) validCore(core int) bool {
	return core >= 0 && core < c.cores
}
