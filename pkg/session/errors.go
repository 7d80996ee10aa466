package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is matched by every InvalidStateError.
	ErrInvalidState = errors.New("session: invalid state")

	// ErrSendOnDisconnected is logged when Send is called on a handle that is
	// not connected. It is never returned to callers.
	ErrSendOnDisconnected = errors.New("session: send on disconnected session")

	// ErrConnectionClosed is the fault reported when the remote side closes
	// the connection without an error.
	ErrConnectionClosed = errors.New("session: connection closed by remote")

	// ErrDisconnected is the cause of a ConnectionError when Disconnect was
	// called while the connection attempt was in flight.
	ErrDisconnected = errors.New("session: disconnected while connecting")
)

// InvalidStateError reports an operation attempted in a state that forbids it.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session: cannot %s while %s", e.Op, e.State)
}

// Is makes errors.Is(err, ErrInvalidState) true.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ConnectionError reports a failed connect or handshake.
type ConnectionError struct {
	Agent string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connect %s: %v", e.Agent, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransportFault reports an unrecoverable fault on an established connection.
type TransportFault struct {
	Agent string
	Err   error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("session: transport fault on %s: %v", e.Agent, e.Err)
}

func (e *TransportFault) Unwrap() error {
	return e.Err
}
