package pca9641

import (
	"errors"
	"fmt"
)

var (
	ErrReadOnlyRegister = errors.New("register is read-only")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrIdentityMismatch = errors.New("identity mismatch")
	ErrBusInitFail      = errors.New("bus init fail")
	ErrNoInterruptPin   = errors.New("no interrupt pin configured")
	ErrClosed           = errors.New("device closed")
)

// IdentityError is returned when the ID register does not hold ExpectedID
type IdentityError struct {
	Got uint8
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity mismatch: ID register holds 0x%02x, expected 0x%02x", e.Got, ExpectedID)
}

func (e *IdentityError) Is(target error) bool {
	return target == ErrIdentityMismatch
}

// BusInitError is the terminal outcome of a downstream bus request that did not connect.
// The whole request may be retried after AbandonDownstreamBus.
type BusInitError struct {
	Attempts int
	Reason   string
}

func (e *BusInitError) Error() string {
	return fmt.Sprintf("bus init fail after %d attempts: %s", e.Attempts, e.Reason)
}

func (e *BusInitError) Is(target error) bool {
	return target == ErrBusInitFail
}
