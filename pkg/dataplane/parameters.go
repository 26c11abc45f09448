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
	"errors"
	"fmt"
	"time"

	"github.com/lab5e/flowfunk/pkg/affinity"
	"github.com/lab5e/flowfunk/pkg/management"
	"github.com/lab5e/flowfunk/pkg/sharding"
	gotoolbox "github.com/lab5e/gotoolbox/toolbox"
)

// Parameters is the configuration for the daemon
// The struct uses annotations from Kong (https://github.com/alecthomas/kong)
type Parameters struct {
	Name            string                      `kong:"help='Deployment name used for zeroconf',default='flowfunk'"`
	InstanceID      string                      `kong:"help='Instance ID, random if not set'"`
	Cores           int                         `kong:"help='Number of worker cores',default='4'"`
	Groups          int                         `kong:"help='Number of flow groups',default='256'"`
	Plan            []int                       `kong:"help='Explicit assignment plan, one core per group'"`
	Weights         []int                       `kong:"help='Group weights for the seed plan'"`
	Flows           int                         `kong:"help='Number of synthetic flows',default='10000'"`
	BatchSize       int                         `kong:"help='Packets per batch',default='32'"`
	BatchInterval   time.Duration               `kong:"help='Interval between batches per worker (0 is no delay)',default='1ms'"`
	MalformedRatio  float64                     `kong:"help='Fraction of generated packets without a flow identity',default='0'"`
	QueueLength     int                         `kong:"help='Sub-batch queue length per core',default='64'"`
	AutoFinish      bool                        `kong:"help='Complete migrations automatically when the source queue is empty',default='false'"`
	ZeroConf        bool                        `kong:"help='Announce the management endpoint via zeroconf',default='true'"`
	Metrics         string                      `kong:"help='Metrics sink to use',enum='blackhole,prometheus',default='prometheus'"`
	MetricsEndpoint string                      `kong:"help='Endpoint for the Prometheus /metrics handler (empty disables)',default='localhost:9100'"`
	Table           affinity.Parameters         `kong:"embed,prefix='table-'"`
	Management      management.ServerParameters `kong:"embed,prefix='management-'"`
	Log             gotoolbox.LogParameters     `kong:"embed,prefix='log-'"`
}

// DefaultParameters returns parameters with the command line defaults
func DefaultParameters() Parameters {
	return Parameters{
		Name:          "flowfunk",
		Cores:         4,
		Groups:        256,
		Flows:         10000,
		BatchSize:     32,
		BatchInterval: time.Millisecond,
		QueueLength:   64,
		Metrics:       "prometheus",
		Table:         affinity.DefaultParameters(),
		Management:    management.ServerParameters{Endpoint: "localhost:0"},
	}
}

// Final checks the parameters and sets defaults for values that can't be
// expressed as tag defaults.
func (p *Parameters) Final() error {
	if p.Cores < 1 {
		return fmt.Errorf("%w: need at least one core", affinity.ErrInvalidCore)
	}
	if len(p.Plan) > 0 {
		p.Groups = len(p.Plan)
	}
	if p.Groups < 1 {
		return errors.New("need at least one flow group")
	}
	if p.Flows < 1 {
		p.Flows = 1
	}
	if p.BatchSize < 1 {
		p.BatchSize = 1
	}
	if p.QueueLength < 1 {
		p.QueueLength = 1
	}
	if p.MalformedRatio < 0 || p.MalformedRatio > 1 {
		return fmt.Errorf("malformed ratio must be in [0,1], not %v", p.MalformedRatio)
	}
	p.Table.Final()
	return nil
}

// Assignment returns the explicit plan or a seed plan distributing the
// groups over the cores.
func (p *Parameters) Assignment() ([]int, error) {
	if len(p.Plan) > 0 {
		return append([]int{}, p.Plan...), nil
	}
	var weights []int
	if len(p.Weights) > 0 {
		weights = p.Weights
	}
	return sharding.Distribute(p.Groups, weights, p.Cores)
}
