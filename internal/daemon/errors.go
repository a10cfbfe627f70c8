package daemon

import "errors"

var (
	// ErrManagerNotStarted is returned when Shutdown is called before Start.
	ErrManagerNotStarted = errors.New("manager not started")
	// ErrMissingManager is returned when App runs without a manager.
	ErrMissingManager = errors.New("app requires a manager")
)
