package models

import (
	"fmt"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusProcessing: {
		JobStatusPaused:    true, // Processing → Paused (operator pause request observed)
		JobStatusCompleted: true, // Processing → Completed (every row has a Result)
		JobStatusFailed:    true, // Processing → Failed (error outside row-level handling)
	},
	JobStatusPaused: {
		JobStatusProcessing: true, // Paused → Processing (operator resume)
	},
	// Terminal states (no transitions allowed)
	JobStatusCompleted: {},
	JobStatusFailed:    {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalState returns true if the state is terminal (no further transitions)
func IsTerminalState(state JobStatus) bool {
	return state == JobStatusCompleted || state == JobStatusFailed
}
