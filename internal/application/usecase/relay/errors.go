package relay

import (
	"errors"
	"fmt"

	"rtdrelay/internal/domain"
)

// ErrShuttingDown marks an operation absorbed because the client was already
// tearing down. Callers treat it as a silent no-op, shutdown races are
// expected.
var ErrShuttingDown = errors.New("client is shutting down")

// ConnectionError reports a handshake rejection or an operation attempted in
// a state that does not permit it.
type ConnectionError struct {
	Op       string
	Expected []domain.ConnState
	Actual   domain.ConnState
	Err      error
}

func (e *ConnectionError) Error() string {
	if len(e.Expected) > 0 {
		return fmt.Sprintf("%s: invalid state: expected %v, was %s", e.Op, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func newStateError(op string, actual domain.ConnState, expected ...domain.ConnState) *ConnectionError {
	return &ConnectionError{Op: op, Expected: expected, Actual: actual}
}

// ClientError reports a subscribe or unsubscribe failure for one topic.
type ClientError struct {
	Op     string
	Symbol string
	Field  domain.FieldKind
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Symbol, e.Field, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// HeartbeatError reports a failed liveness probe, distinct from generic
// connection errors so callers can react to a dying provider specifically.
type HeartbeatError struct {
	Err error
}

func (e *HeartbeatError) Error() string { return fmt.Sprintf("heartbeat: %v", e.Err) }

func (e *HeartbeatError) Unwrap() error { return e.Err }

// UpdateError reports a notification or refresh failure.
type UpdateError struct {
	Op  string
	Err error
}

func (e *UpdateError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *UpdateError) Unwrap() error { return e.Err }
