package session

import (
	"fmt"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

// State is the handshake progress of a session
type State int32

const (
	// Connected: control channel accepted, server Version sent
	Connected State = iota
	// VersionExchanged: client Version received
	VersionExchanged
	// Authenticating: credentials are being verified
	Authenticating
	// CryptoPending: CryptSetup sent, server state being sent
	CryptoPending
	// Synced: ServerSync sent, every message type is routed
	Synced
	// Closed is terminal
	Closed
)

var stateNames = [...]string{
	Connected:        "Connected",
	VersionExchanged: "VersionExchanged",
	Authenticating:   "Authenticating",
	CryptoPending:    "CryptoPending",
	Synced:           "Synced",
	Closed:           "Closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Permitted reports whether a client may send t in state s. Anything not
// permitted before authentication is a protocol violation.
func Permitted(s State, t protocol.MessageType) bool {
	switch s {
	case Connected, VersionExchanged:
		return t == protocol.MessageTypeVersion ||
			t == protocol.MessageTypeAuthenticate ||
			t == protocol.MessageTypePing
	case Authenticating:
		return t == protocol.MessageTypePing
	case CryptoPending:
		return t == protocol.MessageTypePing || t == protocol.MessageTypeCryptSetup
	case Synced:
		return t.Known()
	}
	return false
}
