package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyBound means a bind would map an entity or a handle twice.
	ErrAlreadyBound = errors.New("already bound")
	// ErrAlreadyTracked means the entity already has a mirror entry.
	ErrAlreadyTracked = errors.New("already tracked")
	// ErrInvalidHandle means the host object behind a handle no longer exists.
	ErrInvalidHandle = errors.New("invalid host handle")
	// ErrSpawnRejected is returned by a Host that refuses an object. It is
	// retried with backoff like any spawn failure, but the warning emitted after
	// the last attempt names the rejection.
	ErrSpawnRejected = errors.New("spawn rejected")
	// ErrMappingInconsistency means the two directions of the mirror disagree.
	ErrMappingInconsistency = errors.New("mirror mapping inconsistency")
	// ErrUnknownEntity is returned by a World for entities it no longer holds.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrBridgeHalted is returned by Advance after a fatal error.
	ErrBridgeHalted = errors.New("bridge halted")
)

// EntityError attaches the failing operation and the pair involved to an error.
type EntityError struct {
	Op     string
	Entity Entity
	Handle Handle
	Err    error
}

func (e *EntityError) Error() string {
	switch {
	case e.Entity != 0 && e.Handle != 0:
		return fmt.Sprintf("%s [entity=%d handle=%d]: %v", e.Op, e.Entity, e.Handle, e.Err)
	case e.Entity != 0:
		return fmt.Sprintf("%s [entity=%d]: %v", e.Op, e.Entity, e.Err)
	case e.Handle != 0:
		return fmt.Sprintf("%s [handle=%d]: %v", e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error breaks a mirror invariant.
func (e *EntityError) Fatal() bool {
	return IsFatal(e.Err)
}

// Retryable reports whether the operation may succeed on a later tick.
func (e *EntityError) Retryable() bool {
	return IsRetryable(e.Err)
}

func entityErr(op string, entity Entity, handle Handle, err error) error {
	return &EntityError{Op: op, Entity: entity, Handle: handle, Err: err}
}

// IsFatal reports whether err must halt the bridge.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMappingInconsistency) || errors.Is(err, ErrAlreadyBound)
}

// IsRetryable reports whether err is a per-entity failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	return !errors.Is(err, ErrInvalidHandle) &&
		!errors.Is(err, ErrUnknownEntity) &&
		!errors.Is(err, ErrBridgeHalted)
}
