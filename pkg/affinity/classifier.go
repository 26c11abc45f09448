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

	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/flow"
)

// Batch is an ordered sequence of raw packets
type Batch [][]byte

// BatchSink receives the sub-batches produced by a classifier. The sink owns
// the batch once Deliver is called.
type BatchSink interface {
	Deliver(core int, batch Batch)
}

// BatchSinkFunc is a function implementing BatchSink
type BatchSinkFunc func(core int, batch Batch)

// Deliver calls the function
func (f BatchSinkFunc) Deliver(core int, batch Batch) {
	f(core, batch)
}

const subBatchHint = 32

// Classifier splits inbound batches into one sub-batch per owning core.
// Each worker has its own classifier; the type is not thread safe but any
// number of classifiers can share the owner table.
type Classifier struct {
	table       *OwnerTable
	parser      *flow.Parser
	policy      MalformedPolicy
	defaultCore int
	out         BatchSink
	metrics     metrics.Sink
	pending     []Batch
	order       []int
}

// NewClassifier creates a classifier delivering sub-batches to out.
func NewClassifier(table *OwnerTable, params Parameters, out BatchSink, sink metrics.Sink) (*Classifier, error) {
	params.Final()
	policy, err := params.MalformedPolicy()
	if err != nil {
		return nil, err
	}
	link, err := flow.ParseLinkType(params.LinkType)
	if err != nil {
		return nil, err
	}
	if policy == DefaultMalformed && !table.ctx.validCore(params.DefaultCore) {
		return nil, fmt.Errorf("%w: default core %d", ErrInvalidCore, params.DefaultCore)
	}
	if out == nil {
		return nil, errors.New("no batch sink for classifier")
	}
	if sink == nil {
		sink = metrics.NewBlackHoleSink()
	}
	return &Classifier{
		table:       table,
		parser:      flow.NewParser(link),
		policy:      policy,
		defaultCore: params.DefaultCore,
		out:         out,
		metrics:     sink,
		pending:     make([]Batch, table.ctx.Cores()),
		order:       make([]int, 0, table.ctx.Cores()),
	}, nil
}

// Resolve returns the core that should process the packet. The second return
// value is false when the packet should be dropped.
func (c *Classifier) Resolve(pkt []byte) (int, bool) {
	id, err := c.parser.Parse(pkt)
	if err != nil {
		if c.policy == DefaultMalformed {
			c.metrics.PacketMalformed(false)
			return c.defaultCore, true
		}
		c.metrics.PacketMalformed(true)
		return -1, false
	}
	return c.table.LookupOrAssign(id), true
}

// Classify consumes one inbound batch. Every packet is appended to the
// sub-batch of its owning core and when the batch is consumed the sub-batches
// are delivered in the order they were first populated. Packets going to the
// same core keep their relative order.
func (c *Classifier) Classify(batch Batch) {
	hint := subBatchHint
	if len(batch) < hint {
		hint = len(batch)
	}
	for _, pkt := range batch {
		core, ok := c.Resolve(pkt)
		if !ok {
			continue
		}
		if c.pending[core] == nil {
			c.pending[core] = make(Batch, 0, hint)
			c.order = append(c.order, core)
		}
		c.pending[core] = append(c.pending[core], pkt)
	}
	c.flush()
}

func (c *Classifier) flush() {
	for _, core := range c.order {
		sub := c.pending[core]
		c.pending[core] = nil
		c.metrics.PacketsClassified(core, len(sub))
		c.out.Deliver(core, sub)
	}
	c.order = c.order[:0]
}
