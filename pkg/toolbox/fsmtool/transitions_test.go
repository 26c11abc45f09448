package fsmtool

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type state int

const (
	initialState state = iota
	oneState
	twoState
	threeState
	fourState
	fourOneState
	fourTwoState
	deadEndState
)

func (s state) String() string {
	switch s {
	case initialState:
		return "initialState"
	case oneState:
		return "oneState"
	case twoState:
		return "twoState"
	case threeState:
		return "threeState"
	case fourState:
		return "fourState"
	case fourOneState:
		return "fourOneState"
	case fourTwoState:
		return "fourTwoState"
	case deadEndState:
		return "deadEndState"
	default:
		panic(fmt.Sprintf("Don't know how to state %d", s))
	}
}

func TestTransitionTable(t *testing.T) {
	assert := require.New(t)

	fsm := NewStateTransitionTable(initialState)
	assert.NotNil(fsm)

	assert.True(
		fsm.AddTransitions(
			initialState, oneState,
			oneState, twoState,
			twoState, threeState,
			threeState, fourState,
			fourState, fourOneState,
			fourState, fourTwoState,
			fourOneState, oneState,
			fourTwoState, twoState,
		))

	assert.True(fsm.SetState(oneState))
	assert.True(fsm.SetState(twoState))
	assert.True(fsm.SetState(threeState))
	assert.True(fsm.SetState(fourState))
	assert.True(fsm.SetState(fourOneState))
	assert.True(fsm.SetState(oneState))

	assert.False(fsm.SetState(threeState)) // Should be illegal
	assert.True(fsm.SetState(twoState))
	assert.False(fsm.SetState(twoState)) // Should not have own transition

	assert.True(fsm.SetState(threeState))
	assert.True(fsm.SetState(fourState))
	assert.True(fsm.SetState(fourTwoState))
	assert.False(fsm.CanTransition(fourOneState))

	fsm.AllowInvalid = true
	assert.True(fsm.SetState(fourOneState))
	fsm.AllowInvalid = false

	assert.Panics(func() {
		fsm.CurrentState = deadEndState
		fsm.SetState(oneState)
	})
}

func TestInvalidTransitions(t *testing.T) {
	assert := require.New(t)

	fsm := NewStateTransitionTable(initialState)
	assert.True(fsm.AddTransitions(
		oneState, oneState,
		oneState, twoState,
	))

	assert.False(fsm.AddTransitions(oneState, twoState))
	assert.False(fsm.AddTransitions(fourState))
	assert.False(fsm.AddTransitions(fourState, twoState, threeState))
}

func TestApply(t *testing.T) {
	assert := require.New(t)

	fsm := NewStateTransitionTable(initialState)
	fsm.LogOnError = true
	fsm.LogTransitions = true
	assert.True(fsm.AddTransitions(
		initialState, oneState,
		oneState, twoState,
		twoState, oneState,
	))

	called := 0
	assert.True(fsm.Apply(oneState, func(stt *StateTransitionTable[state]) {
		called++
		assert.Equal(oneState, stt.CurrentState)
	}))
	assert.False(fsm.Apply(threeState, func(stt *StateTransitionTable[state]) { called++ }))
	assert.Equal(1, called)
	assert.Equal(oneState, fsm.CurrentState)

	fsm.PanicOnError = true
	assert.Panics(func() {
		fsm.Apply(fourState, func(stt *StateTransitionTable[state]) {})
	})
}

func TestDump(t *testing.T) {
	assert := require.New(t)

	fsm := NewStateTransitionTable(initialState)
	assert.True(fsm.AddTransitions(
		oneState, twoState,
		twoState, oneState,
	))

	buf := &bytes.Buffer{}
	fsm.DumpTransitions(buf)
	assert.Equal("digraph StateTransitions {\n    oneState -> twoState;\n    twoState -> oneState;\n}\n", buf.String())
}
