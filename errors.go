package fetcher

import (
	"errors"
	"fmt"
)

// Construction errors. New, NewMapped, NewKeyed and NewKeyedMapped panic with
// one of these when handed a nil collaborator.
var (
	// ErrNilOperation is raised when the wrapped operation is nil.
	ErrNilOperation = errors.New("fetcher: nil operation")
	// ErrNilRequestKey is raised when a keyed fetcher has no request-key function.
	ErrNilRequestKey = errors.New("fetcher: nil request key function")
	// ErrNilMapError is raised when an explicit error mapper is nil.
	ErrNilMapError = errors.New("fetcher: nil error mapper")
)

// PanicError is the failure recorded when the wrapped operation panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fetcher: operation panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
