package shared

import "errors"

var (
	// ErrNotFound indicates a referenced group, capability or relation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a group name uniqueness violation.
	ErrDuplicateName = errors.New("duplicate group name")
	// ErrDuplicateLabel indicates a capability label uniqueness violation.
	ErrDuplicateLabel = errors.New("duplicate capability label")
	// ErrInvalidParent indicates the proposed parent group does not exist.
	ErrInvalidParent = errors.New("invalid parent group")
	// ErrCycle indicates a parent change that would make a group its own ancestor.
	ErrCycle = errors.New("hierarchy cycle")
	// ErrReserved indicates an attempted mutation of a system-reserved entity.
	ErrReserved = errors.New("reserved entity")
	// ErrValidation indicates malformed input from a caller.
	ErrValidation = errors.New("validation failed")
)
