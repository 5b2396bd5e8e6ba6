package session

import (
	"errors"
	"fmt"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrHandshakeTimeout = errors.New("handshake timeout")
	ErrDatagramTooLarge = errors.New("datagram too large")
	ErrKicked           = errors.New("session kicked")
)

// ProtocolViolation is a message received in a state that does not permit it
type ProtocolViolation struct {
	State State
	Type  protocol.MessageType
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s not permitted in state %s", e.Type, e.State)
}

// AuthRejected is an authentication verdict. Authenticators return it to
// refuse a client; the session sends Reject with Reason and closes.
type AuthRejected struct {
	Reason  protocol.RejectType
	Message string
	Err     error
}

// Reject builds an AuthRejected verdict
func Reject(reason protocol.RejectType, format string, args ...any) *AuthRejected {
	return &AuthRejected{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (e *AuthRejected) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication rejected (%s): %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("authentication rejected (%s): %s", e.Reason, e.Message)
}

func (e *AuthRejected) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must end the session. Decrypt failures,
// dropped messages and handler errors are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var pv *ProtocolViolation
	var ar *AuthRejected
	var fe *protocol.FramingError
	switch {
	case errors.As(err, &pv), errors.As(err, &ar):
		return true
	case errors.As(err, &fe):
		return fe.Fatal()
	case transport.IsTransportError(err):
		return true
	case errors.Is(err, transport.ErrClosed),
		errors.Is(err, transport.ErrPeerUnresponsive),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, ErrHandshakeTimeout),
		errors.Is(err, ErrKicked):
		return true
	}
	return false
}

// IsProtocolViolation reports whether err is a ProtocolViolation
func IsProtocolViolation(err error) bool {
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}
