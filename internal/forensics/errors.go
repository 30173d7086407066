package forensics

import "errors"

var (
	// ErrToolAlreadyRegistered is returned when registering a tool whose
	// name is taken.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrToolNameEmpty is returned for a tool without a name.
	ErrToolNameEmpty = errors.New("tool name is empty")

	// ErrToolRunNil is returned for a tool without a run function.
	ErrToolRunNil = errors.New("tool run function is nil")
)
