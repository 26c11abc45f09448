package toolbox

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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// Flowd instances announce their management endpoints via mDNS so flowctl
// can find them without an explicit endpoint. This only works on networks
// that pass multicast UDP and the registered address is the host's external
// address, not loopback.

// ErrNotFound is returned when no matching service is announced
var ErrNotFound = errors.New("no matching zeroconf entry")

const serviceString = "_flowfunk._tcp"

const defaultDomain = "local."

var txtRecords = []string{"txtv=0", "name=flowfunk dataplane"}

// ZeroconfRegistry announces endpoints for one named deployment until
// Shutdown is called and resolves endpoints announced by others.
type ZeroconfRegistry struct {
	mutex   *sync.Mutex
	servers map[string]*zeroconf.Server
	Name    string
}

// NewZeroconfRegistry creates a new registry for the deployment name
func NewZeroconfRegistry(name string) *ZeroconfRegistry {
	return &ZeroconfRegistry{
		mutex:   &sync.Mutex{},
		servers: make(map[string]*zeroconf.Server),
		Name:    name,
	}
}

func (zr *ZeroconfRegistry) instance(kind, id string) string {
	return fmt.Sprintf("%s_%s_%s", zr.Name, kind, id)
}

// Register announces an endpoint of a kind. The ID must be unique for the kind.
func (zr *ZeroconfRegistry) Register(kind string, id string, port int) error {
	zr.mutex.Lock()
	defer zr.mutex.Unlock()
	entry := zr.instance(kind, id)
	if _, ok := zr.servers[entry]; ok {
		return fmt.Errorf("%s is already registered", entry)
	}
	server, err := zeroconf.Register(entry, serviceString, defaultDomain, port, txtRecords, nil)
	if err != nil {
		return err
	}
	zr.servers[entry] = server
	return nil
}

// Shutdown stops announcing all endpoints
func (zr *ZeroconfRegistry) Shutdown() {
	zr.mutex.Lock()
	defer zr.mutex.Unlock()
	for k, v := range zr.servers {
		v.Shutdown()
		delete(zr.servers, k)
	}
}

// browse sends the endpoints of the kind to fn until the wait time is up or
// fn returns false.
func (zr *ZeroconfRegistry) browse(kind string, waitTime time.Duration, fn func(endpoint string) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTime)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, serviceString, defaultDomain, entries); err != nil {
		return err
	}

	prefix := fmt.Sprintf("%s_%s_", zr.Name, kind)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(entry.Instance, prefix) {
				continue
			}
			for _, ip := range entry.AddrIPv4 {
				if !fn(fmt.Sprintf("%s:%d", ip, entry.Port)) {
					return nil
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Resolve returns all endpoints of a kind announced within the wait time
func (zr *ZeroconfRegistry) Resolve(kind string, waitTime time.Duration) ([]string, error) {
	var ret []string
	err := zr.browse(kind, waitTime, func(ep string) bool {
		ret = append(ret, ep)
		return true
	})
	return ret, err
}

// ResolveFirst returns the first endpoint of a kind
func (zr *ZeroconfRegistry) ResolveFirst(kind string, waitTime time.Duration) (string, error) {
	ret := ""
	err := zr.browse(kind, waitTime, func(ep string) bool {
		ret = ep
		return false
	})
	if err != nil {
		return "", err
	}
	if ret == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, zr.Name, kind)
	}
	return ret, nil
}
