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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	prand "math/rand"
)

// RandomID returns a random 16 character hex ID
func RandomID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// fall back to pseudorandom value
		return fmt.Sprintf("%016x", prand.Uint64())
	}
	return hex.EncodeToString(buf)
}

// InstanceName returns a name for a process instance, f.e. "flowd-3fa1b2c49d0e7a11"
func InstanceName(prefix string) string {
	return prefix + "-" + RandomID()
}
