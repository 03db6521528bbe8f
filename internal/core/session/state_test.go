package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_Transitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		bad  State
	}{
		{"skip authenticating", []State{}, StateActive},
		{"back to connecting", []State{StateAuthenticating}, StateConnecting},
		{"active twice", []State{StateAuthenticating, StateActive}, StateActive},
		{"closing before active", []State{StateAuthenticating}, StateClosing},
		{"leave closed", []State{StateClosed}, StateActive},
		{"closed twice", []State{StateAuthenticating, StateClosed}, StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Machine
			for _, s := range tt.path {
				require.NoError(t, m.Transition(s))
			}
			before := m.State()
			err := m.Transition(tt.bad)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before, m.State())
		})
	}
}

func TestMachine_FullLifecycle(t *testing.T) {
	var m Machine
	assert.Equal(t, StateConnecting, m.State())
	for _, s := range []State{StateAuthenticating, StateActive, StateClosing, StateClosed} {
		require.NoError(t, m.Transition(s))
		assert.Equal(t, s, m.State())
	}
}

func TestMachine_ClosedFromAnyState(t *testing.T) {
	for _, path := range [][]State{
		{},
		{StateAuthenticating},
		{StateAuthenticating, StateActive},
		{StateAuthenticating, StateActive, StateClosing},
	} {
		var m Machine
		for _, s := range path {
			require.NoError(t, m.Transition(s))
		}
		assert.NoError(t, m.Transition(StateClosed))
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "state(42)", State(42).String())
}
