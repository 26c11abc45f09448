package fsmtool

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
	"io"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// StateTransitionTable is a tool to manage state transitions. The table is
// not thread safe; guard it with the same lock as the state it describes.
type StateTransitionTable[S comparable] struct {
	CurrentState     S
	LogOnError       bool
	PanicOnError     bool
	LogTransitions   bool
	AllowInvalid     bool
	ValidTransitions map[S][]S
}

// NewStateTransitionTable creates a new state transition table.
func NewStateTransitionTable[S comparable](initialState S) *StateTransitionTable[S] {
	return &StateTransitionTable[S]{
		CurrentState:     initialState,
		ValidTransitions: make(map[S][]S),
	}
}

// AddTransitions adds state transitions to the table. The states are pairs of
// (from, to). It returns false if the list has an odd length or a transition
// is already in the table.
func (s *StateTransitionTable[S]) AddTransitions(states ...S) bool {
	if len(states)%2 != 0 {
		return false
	}
	for i := 0; i < len(states); i += 2 {
		from := states[i]
		to := states[i+1]
		existing := s.ValidTransitions[from]
		for _, v := range existing {
			if v == to {
				return false
			}
		}
		s.ValidTransitions[from] = append(existing, to)
	}
	return true
}

// CanTransition returns true if the current state can move to the new state
func (s *StateTransitionTable[S]) CanTransition(state S) bool {
	if s.AllowInvalid {
		return true
	}
	for _, v := range s.ValidTransitions[s.CurrentState] {
		if v == state {
			return true
		}
	}
	return false
}

// SetState sets a new state if it is valid. It panics if the current state
// is a dead end, ie there are no transitions out of it.
func (s *StateTransitionTable[S]) SetState(state S) bool {
	if _, ok := s.ValidTransitions[s.CurrentState]; !ok && !s.AllowInvalid {
		panic(fmt.Sprintf("I'm in an invalid state. There is no transitions from %v to another state (or %v)", s.CurrentState, state))
	}
	if !s.CanTransition(state) {
		return false
	}
	s.CurrentState = state
	return true
}

// Apply applies the state transition, runs the code and logs debug
// information
func (s *StateTransitionTable[S]) Apply(newState S, code func(stt *StateTransitionTable[S])) bool {
	oldState := s.CurrentState
	if !s.SetState(newState) {
		if s.LogOnError {
			log.WithFields(log.Fields{
				"current": fmt.Sprintf("%v", oldState),
				"invalid": fmt.Sprintf("%v", newState),
			}).Error("Invalid state assignment")
		}
		if s.PanicOnError {
			panic(fmt.Sprintf("Invalid state assignment: Current state = %v, invalid state = %v", oldState, newState))
		}
		return false
	}
	start := time.Now()
	code(s)
	if s.LogTransitions {
		log.WithFields(log.Fields{
			"from": fmt.Sprintf("%v", oldState),
			"to":   fmt.Sprintf("%v", newState),
		}).Debugf("State transition took %f ms", float64(time.Since(start))/float64(time.Millisecond))
	}
	return true
}

// DumpTransitions dumps the transitions in a dot-compatible format
func (s *StateTransitionTable[S]) DumpTransitions(writer io.Writer) {
	var lines []string
	for k, v := range s.ValidTransitions {
		for _, to := range v {
			lines = append(lines, fmt.Sprintf("    %v -> %v;\n", k, to))
		}
	}
	sort.Strings(lines)
	fmt.Fprintf(writer, "digraph StateTransitions {\n")
	for _, l := range lines {
		fmt.Fprint(writer, l)
	}
	fmt.Fprintf(writer, "}\n")
}
