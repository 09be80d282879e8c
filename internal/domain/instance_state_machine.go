package domain

import (
	"fmt"

	"github.com/docuflow/backend/internal/domain/models"
)

// InstanceState represents the current state of a workflow instance
type InstanceState string

const (
	// InstancePending indicates the instance exists but no step has started
	InstancePending InstanceState = models.InstanceStatusPending
	// InstanceInProgress indicates a step is actively being worked
	InstanceInProgress InstanceState = models.InstanceStatusInProgress
	// InstanceApproved indicates every step completed successfully
	InstanceApproved InstanceState = models.InstanceStatusApproved
	// InstanceRejected indicates a step was rejected
	InstanceRejected InstanceState = models.InstanceStatusRejected
	// InstanceCancelled indicates the run was cancelled before completion
	InstanceCancelled InstanceState = models.InstanceStatusCancelled
)

// InstanceTransition represents an action that can change instance state
type InstanceTransition string

const (
	// TransitionStartStep activates the first step of a pending instance
	TransitionStartStep InstanceTransition = "StartStep"
	// TransitionApprove completes the final step
	TransitionApprove InstanceTransition = "Approve"
	// TransitionReject rejects the in-progress step
	TransitionReject InstanceTransition = "Reject"
	// TransitionCancel cancels a non-terminal instance
	TransitionCancel InstanceTransition = "Cancel"
)

// InstanceStateMachine enforces valid state transitions for workflow
// instances. Invalid transitions return an error (fail-fast approach).
type InstanceStateMachine struct {
	// transitions maps (current state, transition) -> next state
	transitions map[stateTransitionKey]InstanceState
}

type stateTransitionKey struct {
	state      InstanceState
	transition InstanceTransition
}

// NewInstanceStateMachine creates a new state machine with the instance
// lifecycle rules.
// State diagram:
//
//	      StartStep
//	[Pending] ──────► [InProgress] ──Approve──► [Approved]
//	    │                  │ \
//	 Cancel            Cancel Reject
//	    │                  │     \
//	    ▼                  ▼      ▼
//	[Cancelled]     [Cancelled] [Rejected]
//
// Approved, Rejected and Cancelled are terminal; no transition leaves them.
func NewInstanceStateMachine() *InstanceStateMachine {
	sm := &InstanceStateMachine{
		transitions: make(map[stateTransitionKey]InstanceState),
	}

	sm.addTransition(InstancePending, TransitionStartStep, InstanceInProgress)
	sm.addTransition(InstancePending, TransitionCancel, InstanceCancelled)
	sm.addTransition(InstanceInProgress, TransitionApprove, InstanceApproved)
	sm.addTransition(InstanceInProgress, TransitionReject, InstanceRejected)
	sm.addTransition(InstanceInProgress, TransitionCancel, InstanceCancelled)

	return sm
}

func (sm *InstanceStateMachine) addTransition(from InstanceState, via InstanceTransition, to InstanceState) {
	key := stateTransitionKey{state: from, transition: via}
	sm.transitions[key] = to
}

// Transition attempts to transition from the current state using the given
// action. Returns the new state or an error if the transition is invalid.
func (sm *InstanceStateMachine) Transition(current InstanceState, action InstanceTransition) (InstanceState, error) {
	key := stateTransitionKey{state: current, transition: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, fmt.Errorf("invalid state transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *InstanceStateMachine) CanTransition(current InstanceState, action InstanceTransition) bool {
	key := stateTransitionKey{state: current, transition: action}
	_, ok := sm.transitions[key]
	return ok
}

// ValidTransitions returns all valid transitions from the given state.
func (sm *InstanceStateMachine) ValidTransitions(state InstanceState) []InstanceTransition {
	var result []InstanceTransition
	for key := range sm.transitions {
		if key.state == state {
			result = append(result, key.transition)
		}
	}
	return result
}

// IsTerminal returns true if the state is a terminal state (no further
// transitions).
func (sm *InstanceStateMachine) IsTerminal(state InstanceState) bool {
	return state == InstanceApproved || state == InstanceRejected || state == InstanceCancelled
}
