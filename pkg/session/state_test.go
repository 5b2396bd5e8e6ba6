package session

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

func TestPermitted(t *testing.T) {
	handshake := map[protocol.MessageType]bool{
		protocol.MessageTypeVersion:      true,
		protocol.MessageTypeAuthenticate: true,
		protocol.MessageTypePing:         true,
	}

	for _, mt := range protocol.MessageTypes() {
		assert.Equal(t, handshake[mt], Permitted(Connected, mt), "Connected %s", mt)
		assert.Equal(t, handshake[mt], Permitted(VersionExchanged, mt), "VersionExchanged %s", mt)
		assert.Equal(t, mt == protocol.MessageTypePing, Permitted(Authenticating, mt), "Authenticating %s", mt)
		assert.Equal(t, mt == protocol.MessageTypePing || mt == protocol.MessageTypeCryptSetup,
			Permitted(CryptoPending, mt), "CryptoPending %s", mt)
		assert.True(t, Permitted(Synced, mt), "Synced %s", mt)
		assert.False(t, Permitted(Closed, mt), "Closed %s", mt)
	}

	assert.False(t, Permitted(Synced, protocol.MessageType(99)))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CryptoPending", CryptoPending.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"violation", &ProtocolViolation{State: Connected, Type: protocol.MessageTypeACL}, true},
		{"rejected", Reject(protocol.RejectServerFull, "full"), true},
		{"wrapped rejected", fmt.Errorf("auth: %w", Reject(protocol.RejectWrongUserPW, "no")), true},
		{"transport", &transport.TransportError{Op: "read", Err: io.EOF}, true},
		{"closed", transport.ErrClosed, true},
		{"unresponsive", transport.ErrPeerUnresponsive, true},
		{"session closed", ErrSessionClosed, true},
		{"handshake timeout", ErrHandshakeTimeout, true},
		{"kicked", ErrKicked, true},
		{"queue full", transport.ErrQueueFull, false},
		{"decrypt", &crypto.DecryptError{Kind: crypto.MacMismatch}, false},
		{"datagram too large", ErrDatagramTooLarge, false},
		{"handler", errors.New("channel not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestAuthRejectedError(t *testing.T) {
	err := Reject(protocol.RejectUsernameInUse, "%s is taken", "alice")
	assert.Equal(t, "alice is taken", err.Message)
	assert.Contains(t, err.Error(), "alice is taken")
	assert.Nil(t, errors.Unwrap(err))

	cause := errors.New("boom")
	wrapped := &AuthRejected{Reason: protocol.RejectAuthenticatorFail, Message: "failure", Err: cause}
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, IsProtocolViolation(wrapped))
	assert.True(t, IsProtocolViolation(fmt.Errorf("x: %w", &ProtocolViolation{})))
}
