package transport

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("control channel closed")
	ErrQueueFull        = errors.New("outbound queue full")
	ErrPeerUnresponsive = errors.New("peer unresponsive")
)

// TransportError is a failure of the underlying connection
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err came from the connection itself
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
