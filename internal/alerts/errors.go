package alerts

import "errors"

var (
	// ErrAlertTerminal is returned when a transition is requested on an
	// alert already in a terminal state
	ErrAlertTerminal = errors.New("alert is in a terminal state")

	// ErrSweepInProgress is returned when a scheduled-action sweep is
	// already running
	ErrSweepInProgress = errors.New("scheduled action sweep already in progress")
)
