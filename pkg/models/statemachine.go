package models

import (
	"errors"
	"fmt"
	"slices"
)

// StateTransitionError reports a control or execution operation attempted
// from a status that does not permit it. It is returned to the caller and
// never applied silently.
type StateTransitionError struct {
	Op   string
	From OrderStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot %s an order in status %q", e.Op, e.From)
}

// Transition operations. Each op has a fixed set of legal source statuses
// and exactly one target status.
const (
	OpApprove        = "approve"
	OpPause          = "pause"
	OpResume         = "resume"
	OpStop           = "stop"
	OpMarkTimingTask = "mark-timing-task"
	OpFire           = "fire"
)

var transitionSources = map[string][]OrderStatus{
	OpApprove:        {StatusManualReviewing},
	OpPause:          {StatusReviewPass, StatusExecuting, StatusFinish},
	OpResume:         {StatusPause},
	OpStop:           {StatusFinish, StatusReviewPass, StatusException, StatusPause},
	OpMarkTimingTask: {StatusReviewPass},
	OpFire:           {StatusTimingTask},
}

var transitionTargets = map[string]OrderStatus{
	OpApprove:        StatusReviewPass,
	OpPause:          StatusPause,
	OpResume:         StatusReviewPass,
	OpStop:           StatusStop,
	OpMarkTimingTask: StatusTimingTask,
	OpFire:           StatusExecuting,
}

// TransitionSources returns the legal source statuses for op.
func TransitionSources(op string) []OrderStatus {
	return slices.Clone(transitionSources[op])
}

// TransitionTarget returns the target status for op.
func TransitionTarget(op string) OrderStatus {
	return transitionTargets[op]
}

// GuardTransition validates that op may be applied to an order currently in
// from, returning the target status on success.
func GuardTransition(op string, from OrderStatus) (OrderStatus, error) {
	sources, ok := transitionSources[op]
	if !ok {
		return "", fmt.Errorf("unknown transition operation %q", op)
	}

	if !slices.Contains(sources, from) {
		return "", &StateTransitionError{Op: op, From: from}
	}

	return transitionTargets[op], nil
}

// IsIllegalTransition checks whether err is a transition guard rejection.
func IsIllegalTransition(err error) bool {
	var ste *StateTransitionError

	return errors.As(err, &ste)
}
