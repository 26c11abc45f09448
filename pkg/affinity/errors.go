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

	"github.com/lab5e/flowfunk/pkg/flow"
)

// Errors returned by the table and the migration controller. Control path
// errors wrap one of these so callers can use errors.Is.
var (
	// ErrCapacityExceeded is returned when a segment of the owner table is
	// full. Lookups recover by assigning from the plan without caching.
	ErrCapacityExceeded = errors.New("owner table capacity exceeded")

	// ErrProtocolMisuse is returned when the migration calls are made out of
	// order, f.e. post-migrate without a pending migration or a pre-migrate
	// overlapping a draining migration. Nothing is changed when this is
	// returned.
	ErrProtocolMisuse = errors.New("migration protocol misuse")

	// ErrUnknownGroup is returned when a group is outside the plan's range
	ErrUnknownGroup = errors.New("unknown flow group")

	// ErrInvalidCore is returned when a core index is outside 0..cores-1
	ErrInvalidCore = errors.New("invalid core index")

	// ErrNotInitialized is returned when the assignment plan hasn't been
	// initialized
	ErrNotInitialized = errors.New("assignment plan is not initialized")

	// ErrAlreadyInitialized is returned when the assignment plan is
	// initialized twice
	ErrAlreadyInitialized = errors.New("assignment plan is already initialized")

	// ErrUnknownFlow is returned when reassigning a flow without a record
	ErrUnknownFlow = errors.New("unknown flow")

	// ErrMalformedFlow is the parser error for packets without a flow
	// identity. It never leaves the classifier.
	ErrMalformedFlow = flow.ErrMalformed
)
