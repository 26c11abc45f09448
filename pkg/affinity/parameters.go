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

	"github.com/lab5e/flowfunk/pkg/flow"
)

// MalformedPolicy decides what happens to packets that don't yield a flow
// identity.
type MalformedPolicy int

// Policies for malformed packets
const (
	DropMalformed    MalformedPolicy = iota // discard the packet
	DefaultMalformed                        // send the packet to the default core
)

func (m MalformedPolicy) String() string {
	switch m {
	case DropMalformed:
		return "drop"
	case DefaultMalformed:
		return "default"
	default:
		return fmt.Sprintf("policy(%d)", int(m))
	}
}

// Parameters is the configuration for the owner table and the classifiers.
// The struct uses annotations from Kong (https://github.com/alecthomas/kong)
type Parameters struct {
	Segments    int    `kong:"help='Number of owner table segments',default='64'"`
	Capacity    int    `kong:"help='Maximum number of flow records (0 is unbounded)',default='0'"`
	Symmetric   bool   `kong:"help='Map both directions of a connection to the same flow',default='true'"`
	Malformed   string `kong:"help='Policy for packets without a flow identity',enum='drop,default',default='drop'"`
	DefaultCore int    `kong:"help='Core receiving malformed packets with the default policy',default='0'"`
	LinkType    string `kong:"help='Framing of received buffers',enum='ethernet,ip',default='ethernet'"`
}

// DefaultParameters returns the parameters with the same defaults as the
// command line.
func DefaultParameters() Parameters {
	return Parameters{
		Segments:    64,
		Capacity:    0,
		Symmetric:   true,
		Malformed:   "drop",
		DefaultCore: 0,
		LinkType:    "ethernet",
	}
}

// Mode returns the flow normalization mode
func (p Parameters) Mode() flow.Mode {
	if p.Symmetric {
		return flow.Symmetric
	}
	return flow.Directional
}

// MalformedPolicy returns the policy for malformed packets
func (p Parameters) MalformedPolicy() (MalformedPolicy, error) {
	switch p.Malformed {
	case "drop", "":
		return DropMalformed, nil
	case "default":
		return DefaultMalformed, nil
	default:
		return DropMalformed, fmt.Errorf("unknown malformed packet policy: %q", p.Malformed)
	}
}

// Final sets defaults for values that are zero or out of range.
func (p *Parameters) Final() {
	if p.Segments < 1 {
		p.Segments = 64
	}
	if p.Capacity < 0 {
		p.Capacity = 0
	}
	if p.Capacity > 0 && p.Segments > p.Capacity {
		p.Segments = p.Capacity
	}
	if p.Malformed == "" {
		p.Malformed = "drop"
	}
	if p.LinkType == "" {
		p.LinkType = "ethernet"
	}
}
