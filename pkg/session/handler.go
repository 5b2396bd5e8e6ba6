package session

import (
	"context"
	"net/netip"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

// AuthRequest carries what a client presented in Authenticate
type AuthRequest struct {
	Session  uint32
	Username string
	Password string
	Tokens   []string
	CertHash string
	Version  protocol.ProtocolVersion
	Remote   netip.Addr
}

// AuthResult is an accepted authentication
type AuthResult struct {
	// UserID is the registered user id, or -1 for unregistered users
	UserID int64
	// Name is the canonical username; empty keeps the requested one
	Name string
}

// Authenticator verifies credentials. Returning *AuthRejected refuses the
// client with its reason; any other error is reported as AuthenticatorFail.
type Authenticator interface {
	Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, req AuthRequest) (*AuthResult, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error) {
	return f(ctx, req)
}

// SyncInfo is what the handler returns from Synchronize
type SyncInfo struct {
	MaxBandwidth *uint32
	WelcomeText  *string
	Permissions  *uint64
	// Config, when set, is sent right after ServerSync
	Config *protocol.ServerConfig
}

// Handler owns server state. Methods are called from the session's reader
// goroutine once the session is synced, except Synchronize, which runs while
// the session is in CryptoPending, and SessionClosed.
type Handler interface {
	// Synchronize sends the server state to a newly authenticated session
	Synchronize(s *Session) (*SyncInfo, error)
	// SessionClosed is called once for every session that reached CryptoPending
	SessionClosed(s *Session)

	HandleChannelRemove(s *Session, m *protocol.ChannelRemove) error
	HandleChannelState(s *Session, m *protocol.ChannelState) error
	HandleUserRemove(s *Session, m *protocol.UserRemove) error
	HandleUserState(s *Session, m *protocol.UserState) error
	HandleBanList(s *Session, m *protocol.BanList) error
	HandleTextMessage(s *Session, m *protocol.TextMessage) error
	HandleACL(s *Session, m *protocol.ACL) error
	HandleQueryUsers(s *Session, m *protocol.QueryUsers) error
	HandleContextAction(s *Session, m *protocol.ContextAction) error
	HandleUserList(s *Session, m *protocol.UserList) error
	HandlePermissionQuery(s *Session, m *protocol.PermissionQuery) error
	HandleUserStats(s *Session, m *protocol.UserStats) error
	HandleRequestBlob(s *Session, m *protocol.RequestBlob) error
	HandlePluginDataTransmission(s *Session, m *protocol.PluginDataTransmission) error
}

// NopHandler ignores every message. Embed it to implement part of Handler.
type NopHandler struct{}

func (NopHandler) Synchronize(*Session) (*SyncInfo, error) { return &SyncInfo{}, nil }
func (NopHandler) SessionClosed(*Session)                  {}

func (NopHandler) HandleChannelRemove(*Session, *protocol.ChannelRemove) error { return nil }
func (NopHandler) HandleChannelState(*Session, *protocol.ChannelState) error   { return nil }
func (NopHandler) HandleUserRemove(*Session, *protocol.UserRemove) error       { return nil }
func (NopHandler) HandleUserState(*Session, *protocol.UserState) error         { return nil }
func (NopHandler) HandleBanList(*Session, *protocol.BanList) error             { return nil }
func (NopHandler) HandleTextMessage(*Session, *protocol.TextMessage) error     { return nil }
func (NopHandler) HandleACL(*Session, *protocol.ACL) error                     { return nil }
func (NopHandler) HandleQueryUsers(*Session, *protocol.QueryUsers) error       { return nil }
func (NopHandler) HandleContextAction(*Session, *protocol.ContextAction) error { return nil }
func (NopHandler) HandleUserList(*Session, *protocol.UserList) error           { return nil }
func (NopHandler) HandlePermissionQuery(*Session, *protocol.PermissionQuery) error {
	return nil
}
func (NopHandler) HandleUserStats(*Session, *protocol.UserStats) error     { return nil }
func (NopHandler) HandleRequestBlob(*Session, *protocol.RequestBlob) error { return nil }
func (NopHandler) HandlePluginDataTransmission(*Session, *protocol.PluginDataTransmission) error {
	return nil
}

// AudioHandler receives decoded audio from synced sessions. SenderSession is
// always set by the server.
type AudioHandler interface {
	HandleAudio(s *Session, audio *protocol.Audio)
}

// AudioHandlerFunc adapts a function to AudioHandler
type AudioHandlerFunc func(s *Session, audio *protocol.Audio)

func (f AudioHandlerFunc) HandleAudio(s *Session, audio *protocol.Audio) { f(s, audio) }

// Observer is notified of session lifecycle events
type Observer interface {
	SessionCreated(s *Session)
	SessionAuthenticated(s *Session)
	SessionClosed(s *Session, cause error)
}

// NopObserver ignores all events
type NopObserver struct{}

func (NopObserver) SessionCreated(*Session)       {}
func (NopObserver) SessionAuthenticated(*Session) {}
func (NopObserver) SessionClosed(*Session, error) {}

// DatagramWriter sends encrypted datagrams to a peer
type DatagramWriter interface {
	WriteDatagram(packet []byte, to netip.AddrPort) error
}
