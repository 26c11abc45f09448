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
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lab5e/flowfunk/pkg/affinity"
	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/flow"
	log "github.com/sirupsen/logrus"
)

// consumer is the per-core receiver of sub-batches. It stands in for the
// core's packet processing and counts what it gets.
type consumer struct {
	core      int
	queue     chan affinity.Batch
	packets   atomic.Uint64
	batches   atomic.Uint64
	inFlight  atomic.Int64
	processFn func(core int, batch affinity.Batch)
}

func (c *consumer) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for batch := range c.queue {
		if c.processFn != nil {
			c.processFn(c.core, batch)
		}
		c.packets.Add(uint64(len(batch)))
		c.batches.Add(1)
		c.inFlight.Add(-1)
	}
}

// batchCounter counts the batches a worker has started and finished
// classifying.
type batchCounter struct {
	started  atomic.Uint64
	finished atomic.Uint64
}

// Dataplane is a set of workers and consumers sharing one owner table.
type Dataplane struct {
	config     Parameters
	ctx        *affinity.Context
	table      *affinity.OwnerTable
	controller *affinity.MigrationController
	metrics    metrics.Sink
	consumers  []*consumer
	batches    []*batchCounter
	cancel     context.CancelFunc
	workers    *sync.WaitGroup
	consumerWg *sync.WaitGroup
	generated  atomic.Uint64
	stopped    bool
}

// New creates a dataplane with an initialized plan, owner table and
// migration controller. Call Start to launch the workers.
func New(config Parameters, sink metrics.Sink) (*Dataplane, error) {
	if err := config.Final(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NewBlackHoleSink()
	}
	assignment, err := config.Assignment()
	if err != nil {
		return nil, err
	}
	ctx := affinity.NewContext(config.Cores)
	if err := ctx.InitAssignment(assignment); err != nil {
		return nil, err
	}
	table, err := affinity.NewOwnerTable(ctx, config.Table, sink)
	if err != nil {
		return nil, err
	}
	controller, err := affinity.NewMigrationController(ctx, table, sink)
	if err != nil {
		return nil, err
	}
	ret := &Dataplane{
		config:     config,
		ctx:        ctx,
		table:      table,
		controller: controller,
		metrics:    sink,
		consumers:  make([]*consumer, config.Cores),
		batches:    make([]*batchCounter, config.Cores),
		workers:    &sync.WaitGroup{},
		consumerWg: &sync.WaitGroup{},
	}
	for i := range ret.consumers {
		ret.consumers[i] = &consumer{core: i, queue: make(chan affinity.Batch, config.QueueLength)}
		ret.batches[i] = &batchCounter{}
	}
	return ret, nil
}

// Context returns the affinity context
func (d *Dataplane) Context() *affinity.Context {
	return d.ctx
}

// Table returns the owner table
func (d *Dataplane) Table() *affinity.OwnerTable {
	return d.table
}

// Controller returns the migration controller
func (d *Dataplane) Controller() *affinity.MigrationController {
	return d.controller
}

// OnBatch sets a function called by the consumer for every sub-batch. It
// must be set before Start.
func (d *Dataplane) OnBatch(fn func(core int, batch affinity.Batch)) {
	for _, c := range d.consumers {
		c.processFn = fn
	}
}

// Deliver queues a sub-batch for a core. This blocks when the queue is full.
func (d *Dataplane) Deliver(core int, batch affinity.Batch) {
	c := d.consumers[core]
	c.inFlight.Add(1)
	c.queue <- batch
}

// Pending returns the number of sub-batches queued or being processed by the core
func (d *Dataplane) Pending(core int) int {
	return int(d.consumers[core].inFlight.Load())
}

// Processed returns the number of packets processed by the core
func (d *Dataplane) Processed(core int) uint64 {
	return d.consumers[core].packets.Load()
}

// Generated returns the number of packets generated by the workers
func (d *Dataplane) Generated() uint64 {
	return d.generated.Load()
}

// Start launches the consumers, one worker per core and the drain watcher if
// automatic post-migration is enabled.
func (d *Dataplane) Start() error {
	if d.cancel != nil || d.stopped {
		return errors.New("dataplane is already started")
	}
	link, err := flow.ParseLinkType(d.config.Table.LinkType)
	if err != nil {
		return err
	}
	for _, c := range d.consumers {
		d.consumerWg.Add(1)
		go c.run(d.consumerWg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for core := 0; core < d.config.Cores; core++ {
		gen, err := NewTrafficGenerator(link, d.config.Flows, d.config.MalformedRatio, int64(core)+1)
		if err != nil {
			d.Stop()
			return err
		}
		classifier, err := affinity.NewClassifier(d.table, d.config.Table, d, d.metrics)
		if err != nil {
			d.Stop()
			return err
		}
		d.workers.Add(1)
		go d.worker(ctx, core, gen, classifier)
	}
	if d.config.AutoFinish {
		d.workers.Add(1)
		go d.drainWatcher(ctx)
	}
	log.WithFields(log.Fields{
		"cores":  d.config.Cores,
		"groups": d.ctx.Plan().Groups(),
		"flows":  d.config.Flows,
	}).Info("Dataplane started")
	return nil
}

func (d *Dataplane) worker(ctx context.Context, core int, gen *TrafficGenerator, classifier *affinity.Classifier) {
	defer d.workers.Done()
	var tick <-chan time.Time
	if d.config.BatchInterval > 0 {
		ticker := time.NewTicker(d.config.BatchInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
		counter := d.batches[core]
		counter.started.Add(1)
		classifier.Classify(gen.Next(d.config.BatchSize))
		counter.finished.Add(1)
		d.generated.Add(uint64(d.config.BatchSize))
	}
}

// batchMark returns the number of batches each worker has started
func (d *Dataplane) batchMark() []uint64 {
	ret := make([]uint64, len(d.batches))
	for i, c := range d.batches {
		ret[i] = c.started.Load()
	}
	return ret
}

// drained reports if the source core has settled since the mark was taken.
// Every batch started before the mark must be classified, which means all of
// its sub-batches are delivered, and the source core's queue must be empty.
func (d *Dataplane) drained(source int, mark []uint64) bool {
	for i, c := range d.batches {
		if c.finished.Load() < mark[i] {
			return false
		}
	}
	return d.Pending(source) == 0
}

// drainWatcher completes pending migrations once the source core has
// settled. The mark for a migration is taken the first time it is seen,
// after the ownership flip, so batches started later can't route packets of
// the moved groups to the source core.
func (d *Dataplane) drainWatcher(ctx context.Context) {
	defer d.workers.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	marks := make(map[uint64][]uint64)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		current := make(map[uint64][]uint64)
		for _, m := range d.controller.Pending() {
			mark, ok := marks[m.Epoch]
			if !ok {
				mark = d.batchMark()
			}
			if !d.drained(m.Source, mark) {
				current[m.Epoch] = mark
				continue
			}
			if _, err := d.controller.PostMigrate(m.Source); err != nil {
				// Completed by someone else in the meantime
				log.WithError(err).WithField("source", m.Source).Debug("Automatic post-migration failed")
			}
		}
		marks = current
	}
}

// Stop stops the workers and waits for the consumers to empty their queues.
func (d *Dataplane) Stop() {
	if d.cancel == nil || d.stopped {
		return
	}
	d.stopped = true
	d.cancel()
	d.workers.Wait()
	for _, c := range d.consumers {
		close(c.queue)
	}
	d.consumerWg.Wait()
	log.WithField("packets", d.Generated()).Info("Dataplane stopped")
}
