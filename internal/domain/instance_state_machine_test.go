package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceStateMachine_ValidTransitions(t *testing.T) {
	sm := NewInstanceStateMachine()

	tests := []struct {
		name        string
		from        InstanceState
		action      InstanceTransition
		expectedTo  InstanceState
		shouldError bool
	}{
		// Valid transitions
		{"Pending -> InProgress via StartStep", InstancePending, TransitionStartStep, InstanceInProgress, false},
		{"Pending -> Cancelled via Cancel", InstancePending, TransitionCancel, InstanceCancelled, false},
		{"InProgress -> Approved via Approve", InstanceInProgress, TransitionApprove, InstanceApproved, false},
		{"InProgress -> Rejected via Reject", InstanceInProgress, TransitionReject, InstanceRejected, false},
		{"InProgress -> Cancelled via Cancel", InstanceInProgress, TransitionCancel, InstanceCancelled, false},

		// Invalid transitions
		{"Pending -> Approved (invalid)", InstancePending, TransitionApprove, InstancePending, true},
		{"Pending -> Rejected (invalid)", InstancePending, TransitionReject, InstancePending, true},
		{"Approved -> InProgress (terminal)", InstanceApproved, TransitionStartStep, InstanceApproved, true},
		{"Rejected -> Cancelled (terminal)", InstanceRejected, TransitionCancel, InstanceRejected, true},
		{"Cancelled -> InProgress (terminal)", InstanceCancelled, TransitionStartStep, InstanceCancelled, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			newState, err := sm.Transition(tc.from, tc.action)

			if tc.shouldError {
				assert.Error(t, err)
				assert.Equal(t, tc.from, newState, "State should not change on invalid transition")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedTo, newState)
			}
		})
	}
}

func TestInstanceStateMachine_CanTransition(t *testing.T) {
	sm := NewInstanceStateMachine()

	assert.True(t, sm.CanTransition(InstancePending, TransitionStartStep))
	assert.True(t, sm.CanTransition(InstanceInProgress, TransitionApprove))
	assert.True(t, sm.CanTransition(InstanceInProgress, TransitionCancel))
	assert.False(t, sm.CanTransition(InstanceApproved, TransitionCancel))
	assert.False(t, sm.CanTransition(InstanceCancelled, TransitionApprove))
}

func TestInstanceStateMachine_ValidTransitionsFromState(t *testing.T) {
	sm := NewInstanceStateMachine()

	pendingTransitions := sm.ValidTransitions(InstancePending)
	assert.Len(t, pendingTransitions, 2) // StartStep, Cancel

	inProgressTransitions := sm.ValidTransitions(InstanceInProgress)
	assert.Len(t, inProgressTransitions, 3) // Approve, Reject, Cancel

	approvedTransitions := sm.ValidTransitions(InstanceApproved)
	assert.Len(t, approvedTransitions, 0) // Terminal state
}

func TestInstanceStateMachine_IsTerminal(t *testing.T) {
	sm := NewInstanceStateMachine()

	assert.False(t, sm.IsTerminal(InstancePending))
	assert.False(t, sm.IsTerminal(InstanceInProgress))
	assert.True(t, sm.IsTerminal(InstanceApproved))
	assert.True(t, sm.IsTerminal(InstanceRejected))
	assert.True(t, sm.IsTerminal(InstanceCancelled))
}
