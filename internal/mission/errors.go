package mission

import "errors"

var (
	// ErrDuplicateID is returned when a spec reuses an existing mission id.
	ErrDuplicateID = errors.New("duplicate mission id")

	// ErrUnknownCategory is returned for a spec with an unrecognized
	// threat category.
	ErrUnknownCategory = errors.New("unknown threat category")

	// ErrEmptyID is returned for a spec without an id.
	ErrEmptyID = errors.New("empty mission id")

	// ErrUnknownMission is returned when an operation references a
	// mission the registry has never seen.
	ErrUnknownMission = errors.New("unknown mission")

	// ErrAlreadyTerminal is returned when recording a report for a
	// mission that already holds a terminal status.
	ErrAlreadyTerminal = errors.New("mission already terminal")

	// ErrNotTerminal is returned when a report carries a non-terminal
	// final status.
	ErrNotTerminal = errors.New("report status is not terminal")
)
