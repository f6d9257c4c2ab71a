package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is wrapped by denials that had no usable context.
	ErrUnauthenticated = errors.New("permission.unauthenticated")

	// ErrForbidden is wrapped by every other denial.
	ErrForbidden = errors.New("permission.forbidden")

	ErrUnknownRole      = errors.New("permission.unknown_role")
	ErrUnknownModule    = errors.New("permission.unknown_module")
	ErrUnknownOperation = errors.New("permission.unknown_operation")

	// ErrIncompleteMatrix is returned by NewMatrix when the table has holes.
	ErrIncompleteMatrix = errors.New("permission.incomplete_matrix")
)

// DeniedError carries the reason of a denied check.
type DeniedError struct {
	Module    Module
	Operation Operation
	Kind      Kind
	Reason    string
}

func (e *DeniedError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("access denied: %s", e.Reason)
	}
	return fmt.Sprintf("access denied for %s:%s: %s", e.Module, e.Operation, e.Reason)
}

// Unwrap lets errors.Is match ErrUnauthenticated or ErrForbidden.
func (e *DeniedError) Unwrap() error {
	if e.Kind == KindUnauthenticated {
		return ErrUnauthenticated
	}
	return ErrForbidden
}

func deniedError(module Module, op Operation, d Decision) error {
	return &DeniedError{Module: module, Operation: op, Kind: d.Kind, Reason: d.Reason}
}
