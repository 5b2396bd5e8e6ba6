package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHeader  = errors.New("invalid header")
	ErrNeedMoreData   = errors.New("need more data")
	ErrUnknownType    = errors.New("unknown message type")
	ErrMalformed      = errors.New("malformed payload")
	ErrOversized      = errors.New("message exceeds maximum size")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidUDPType = errors.New("invalid udp message type")
)

// FramingErrorKind classifies a control channel decoding failure
type FramingErrorKind int

const (
	// UnknownType: the header names a type outside the known set; the
	// payload was consumed and the stream is still aligned
	UnknownType FramingErrorKind = iota
	// MalformedPayload: the payload is not a valid encoding of its type
	MalformedPayload
	// Oversized: the declared length exceeds the configured maximum
	Oversized
	// Truncated: the stream ended inside a frame
	Truncated
)

func (k FramingErrorKind) String() string {
	switch k {
	case UnknownType:
		return "unknown type"
	case MalformedPayload:
		return "malformed payload"
	case Oversized:
		return "oversized"
	case Truncated:
		return "truncated"
	default:
		return fmt.Sprintf("FramingErrorKind(%d)", int(k))
	}
}

// FramingError reports a failure to decode a control frame
type FramingError struct {
	Kind   FramingErrorKind
	Type   MessageType
	Length uint32
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing: %s (type %s, length %d): %v", e.Kind, e.Type, e.Length, e.Err)
	}
	return fmt.Sprintf("framing: %s (type %s, length %d)", e.Kind, e.Type, e.Length)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *FramingError) Is(target error) bool {
	switch target {
	case ErrUnknownType:
		return e.Kind == UnknownType
	case ErrMalformed:
		return e.Kind == MalformedPayload
	case ErrOversized:
		return e.Kind == Oversized
	}
	return false
}

// Fatal reports whether the stream can no longer be trusted after this error
func (e *FramingError) Fatal() bool {
	return e.Kind != UnknownType
}

// IsUnknownType reports whether err is a skippable unknown-type framing error
func IsUnknownType(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe) && fe.Kind == UnknownType
}

func malformed(t MessageType, length int, err error) error {
	return &FramingError{Kind: MalformedPayload, Type: t, Length: uint32(length), Err: err}
}
