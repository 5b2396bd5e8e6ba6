package crypto

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidNonce   = errors.New("invalid nonce")
	ErrUnknownMode    = errors.New("unknown crypto mode")
	ErrPacketTooShort = errors.New("packet too short")

	ErrMacMismatch = errors.New("mac mismatch")
	ErrReplayed    = errors.New("replayed packet")
	ErrTooFarAhead = errors.New("packet too far ahead")
	ErrDesynced    = errors.New("crypt state desynchronized")
)

// FailureKind classifies a rejected datagram
type FailureKind int

const (
	MacMismatch FailureKind = iota
	Replayed
	TooFarAhead
	Desynced
)

func (k FailureKind) String() string {
	switch k {
	case MacMismatch:
		return "mac_mismatch"
	case Replayed:
		return "replayed"
	case TooFarAhead:
		return "too_far_ahead"
	case Desynced:
		return "desynced"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case Replayed:
		return ErrReplayed
	case TooFarAhead:
		return ErrTooFarAhead
	case Desynced:
		return ErrDesynced
	default:
		return ErrMacMismatch
	}
}

// DecryptError reports why a datagram was rejected. Cause carries the
// underlying reason when Kind was escalated to Desynced.
type DecryptError struct {
	Kind  FailureKind
	Cause error
}

func (e *DecryptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decrypt: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("decrypt: %s", e.Kind)
}

func (e *DecryptError) Unwrap() error { return e.Cause }

// Is matches the sentinel for the error's kind
func (e *DecryptError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NeedsResync reports whether err calls for a fresh CryptSetup
func NeedsResync(err error) bool {
	var de *DecryptError
	if !errors.As(err, &de) {
		return false
	}
	return de.Kind == TooFarAhead || de.Kind == Desynced
}
