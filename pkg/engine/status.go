package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the lifecycle status of an orchestrated run.
//
// The state machine is queued -> running -> {succeeded, failed}, with an
// additional compensating state reachable only from the durable execution
// path while registered compensators are rolled back, before the run settles
// on failed. Succeeded and failed are terminal. There is no cancelled state;
// a submitted run always reaches a terminal status or stays where its last
// persisted transition left it.
type RunStatus string

const (
	// StatusQueued indicates the run is admitted but not yet picked up.
	// It is the only initial state, set at admission time.
	StatusQueued RunStatus = "queued"

	// StatusRunning indicates the run is executing its skill chain.
	StatusRunning RunStatus = "running"

	// StatusSucceeded indicates all skills completed successfully.
	StatusSucceeded RunStatus = "succeeded"

	// StatusFailed indicates a skill failed and the run halted.
	StatusFailed RunStatus = "failed"

	// StatusCompensating indicates the durable path is rolling back
	// completed skills after a terminal failure. The lightweight
	// in-process path never enters this state.
	StatusCompensating RunStatus = "compensating"
)

// IsTerminal returns true if the status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// IsActive returns true if the run has not reached a terminal state.
func (s RunStatus) IsActive() bool {
	return s == StatusQueued || s == StatusRunning || s == StatusCompensating
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed || next == StatusCompensating
	case StatusCompensating:
		return next == StatusFailed
	default:
		return false
	}
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCompensating:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}
