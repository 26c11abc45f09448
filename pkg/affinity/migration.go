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
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/flow"
	"github.com/lab5e/flowfunk/pkg/toolbox/fsmtool"
	log "github.com/sirupsen/logrus"
)

// MigrationState is the state of a migration for a source core
type MigrationState int

// Migration states
const (
	Stable   MigrationState = iota // no migration in progress
	Draining                       // ownership is flipped, waiting for post-migration
)

func (m MigrationState) String() string {
	switch m {
	case Stable:
		return "Stable"
	case Draining:
		return "Draining"
	default:
		return fmt.Sprintf("MigrationState(%d)", int(m))
	}
}

// Move moves a flow group to a destination core
type Move struct {
	Group uint32
	To    int
}

// MigrationStatus describes a migration
type MigrationStatus struct {
	Source  int
	Moves   []Move
	Epoch   uint64
	Moved   int // number of flow records reassigned
	State   MigrationState
	Started time.Time
}

// migration is the state machine for one in-flight migration. There is at
// most one per source core.
type migration struct {
	source  int
	moves   []Move
	epoch   uint64
	moved   int
	started time.Time
	fsm     *fsmtool.StateTransitionTable[MigrationState]
}

func newMigration(source int, moves []Move, epoch uint64) *migration {
	fsm := fsmtool.NewStateTransitionTable(Stable)
	fsm.AddTransitions(
		Stable, Draining,
		Draining, Stable)
	fsm.LogOnError = true
	fsm.LogTransitions = true
	return &migration{
		source:  source,
		moves:   moves,
		epoch:   epoch,
		started: time.Now(),
		fsm:     fsm,
	}
}

func (m *migration) status() MigrationStatus {
	return MigrationStatus{
		Source:  m.source,
		Moves:   append([]Move{}, m.moves...),
		Epoch:   m.epoch,
		Moved:   m.moved,
		State:   m.fsm.CurrentState,
		Started: m.started,
	}
}

// MigrationController moves ownership of flow groups from one core to
// another while the workers keep classifying. A migration is two calls:
// PreMigrate flips ownership in the plan and the owner table and
// PostMigrate releases the migration once the surrounding pipeline has
// drained the source core.
type MigrationController struct {
	ctx     *Context
	plan    *Plan
	table   *OwnerTable
	metrics metrics.Sink

	mutex   *sync.Mutex
	pending map[int]*migration
	// draining holds the epoch of the migration draining each group, or 0.
	// It is read without the mutex.
	draining []atomic.Uint64
}

// NewMigrationController creates a migration controller for the table.
func NewMigrationController(ctx *Context, table *OwnerTable, sink metrics.Sink) (*MigrationController, error) {
	plan := ctx.Plan()
	if plan == nil {
		return nil, ErrNotInitialized
	}
	if sink == nil {
		sink = metrics.NewBlackHoleSink()
	}
	return &MigrationController{
		ctx:      ctx,
		plan:     plan,
		table:    table,
		metrics:  sink,
		mutex:    &sync.Mutex{},
		pending:  make(map[int]*migration),
		draining: make([]atomic.Uint64, plan.Groups()),
	}, nil
}

func (m *MigrationController) reject(reason string, err error) error {
	m.metrics.MigrationRejected(reason)
	log.WithError(err).Warning("Migration rejected")
	return err
}

// validate checks the request against the current state. It must be called
// with the mutex held. Nothing is modified.
func (m *MigrationController) validate(source int, moves []Move) error {
	if !m.ctx.validCore(source) {
		return m.reject("invalidCore", fmt.Errorf("%w: source core %d", ErrInvalidCore, source))
	}
	if len(moves) == 0 {
		return m.reject("misuse", fmt.Errorf("%w: no groups to migrate from core %d", ErrProtocolMisuse, source))
	}
	if existing, ok := m.pending[source]; ok {
		return m.reject("misuse", fmt.Errorf("%w: core %d is already draining (epoch %d)", ErrProtocolMisuse, source, existing.epoch))
	}
	seen := make(map[uint32]bool, len(moves))
	for _, mv := range moves {
		if int(mv.Group) >= m.plan.Groups() {
			return m.reject("unknownGroup", fmt.Errorf("%w: %d (plan has %d groups)", ErrUnknownGroup, mv.Group, m.plan.Groups()))
		}
		if !m.ctx.validCore(mv.To) {
			return m.reject("invalidCore", fmt.Errorf("%w: destination core %d for group %d", ErrInvalidCore, mv.To, mv.Group))
		}
		if mv.To == source {
			return m.reject("invalidCore", fmt.Errorf("%w: group %d would move from core %d to itself", ErrInvalidCore, mv.Group, source))
		}
		if seen[mv.Group] {
			return m.reject("misuse", fmt.Errorf("%w: group %d is listed twice", ErrProtocolMisuse, mv.Group))
		}
		seen[mv.Group] = true
		if epoch := m.draining[mv.Group].Load(); epoch != 0 {
			return m.reject("misuse", fmt.Errorf("%w: group %d is draining (epoch %d)", ErrProtocolMisuse, mv.Group, epoch))
		}
	}
	return nil
}

// PreMigrate moves the groups from the source core to their destinations.
// The request is validated before anything is changed; a rejected request
// leaves the plan and the table as they were. When this returns successfully
// every record in the groups that was owned by the source core and the plan
// entries for the groups point to the destination cores, and the source core
// is draining until PostMigrate is called for it.
//
// The plan entry for a group doesn't have to point to the source core. Only
// records owned by the source core move; records in the group owned by other
// cores keep their owner while the plan entry is rewritten.
func (m *MigrationController) PreMigrate(source int, moves []Move) (MigrationStatus, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.validate(source, moves); err != nil {
		return MigrationStatus{}, err
	}

	epoch := m.ctx.nextGeneration()
	mig := newMigration(source, append([]Move{}, moves...), epoch)
	for _, mv := range mig.moves {
		m.draining[mv.Group].Store(epoch)
	}

	mig.fsm.Apply(Draining, func(*fsmtool.StateTransitionTable[MigrationState]) {
		for _, mv := range mig.moves {
			// The plan entry goes first so flows showing up during the scan
			// are created with the new owner. Records created before the
			// install are found by the scan below.
			if err := m.plan.Install(mv.Group, mv.To); err != nil {
				// Validated above, this would be a bug
				panic(err)
			}
			m.table.ForEachInGroup(mv.Group, source, func(id flow.ID) {
				if err := m.table.Reassign(id, mv.To); err != nil {
					// Removed by the expiry policy since the scan
					log.WithError(err).Debug("Record disappeared during migration")
					return
				}
				mig.moved++
			})
		}
	})
	m.pending[source] = mig

	m.metrics.SetGeneration(epoch)
	m.metrics.MigrationStarted(source, mig.moved)
	log.WithFields(log.Fields{
		"source":  source,
		"groups":  len(mig.moves),
		"records": mig.moved,
		"epoch":   epoch,
	}).Info("Pre-migration complete, source core is draining")
	return mig.status(), nil
}

// PostMigrate releases the draining migration for the source core. Calling
// this for a core without a pending migration is a protocol error and
// changes nothing.
func (m *MigrationController) PostMigrate(source int) (MigrationStatus, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.ctx.validCore(source) {
		return MigrationStatus{}, m.reject("invalidCore", fmt.Errorf("%w: source core %d", ErrInvalidCore, source))
	}
	mig, ok := m.pending[source]
	if !ok {
		return MigrationStatus{}, m.reject("misuse", fmt.Errorf("%w: no pending migration for core %d", ErrProtocolMisuse, source))
	}

	mig.fsm.Apply(Stable, func(*fsmtool.StateTransitionTable[MigrationState]) {
		for _, mv := range mig.moves {
			m.draining[mv.Group].Store(0)
		}
		delete(m.pending, source)
	})

	m.metrics.MigrationCompleted(source)
	log.WithFields(log.Fields{
		"source":   source,
		"epoch":    mig.epoch,
		"duration": time.Since(mig.started).String(),
	}).Info("Post-migration complete")
	return mig.status(), nil
}

// State returns the migration state for a source core
func (m *MigrationController) State(source int) MigrationState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if mig, ok := m.pending[source]; ok {
		return mig.fsm.CurrentState
	}
	return Stable
}

// IsDraining returns true if a migration for the group is waiting for
// post-migration. This doesn't lock.
func (m *MigrationController) IsDraining(group uint32) bool {
	if int(group) >= len(m.draining) {
		return false
	}
	return m.draining[group].Load() != 0
}

// Pending returns the migrations waiting for post-migration, ordered by
// source core.
func (m *MigrationController) Pending() []MigrationStatus {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ret := make([]MigrationStatus, 0, len(m.pending))
	for _, mig := range m.pending {
		ret = append(ret, mig.status())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Source < ret[j].Source })
	return ret
}
