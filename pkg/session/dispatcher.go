package session

import (
	"fmt"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

// Dispatch routes a message from a synced session. Messages the session
// owns are handled here; server state goes to the Handler; message types
// only a server sends are ignored.
func Dispatch(s *Session, msg protocol.Message) error {
	h := s.opts.Handler

	switch m := msg.(type) {
	case *protocol.Version:
		return nil
	case *protocol.UDPTunnel:
		s.handleTunnel(m)
		return nil
	case *protocol.Authenticate:
		s.setTokens(m.Tokens)
		return nil
	case *protocol.Ping:
		return s.handlePing(m)
	case *protocol.CryptSetup:
		return s.handleCryptSetup(m)
	case *protocol.VoiceTarget:
		s.handleVoiceTarget(m)
		return nil

	case *protocol.ChannelRemove:
		return h.HandleChannelRemove(s, m)
	case *protocol.ChannelState:
		return h.HandleChannelState(s, m)
	case *protocol.UserRemove:
		return h.HandleUserRemove(s, m)
	case *protocol.UserState:
		return h.HandleUserState(s, m)
	case *protocol.BanList:
		return h.HandleBanList(s, m)
	case *protocol.TextMessage:
		return h.HandleTextMessage(s, m)
	case *protocol.ACL:
		return h.HandleACL(s, m)
	case *protocol.QueryUsers:
		return h.HandleQueryUsers(s, m)
	case *protocol.ContextAction:
		return h.HandleContextAction(s, m)
	case *protocol.UserList:
		return h.HandleUserList(s, m)
	case *protocol.PermissionQuery:
		return h.HandlePermissionQuery(s, m)
	case *protocol.UserStats:
		return h.HandleUserStats(s, m)
	case *protocol.RequestBlob:
		return h.HandleRequestBlob(s, m)
	case *protocol.PluginDataTransmission:
		return h.HandlePluginDataTransmission(s, m)

	case *protocol.Reject,
		*protocol.ServerSync,
		*protocol.PermissionDenied,
		*protocol.CodecVersion,
		*protocol.ServerConfig,
		*protocol.SuggestConfig,
		*protocol.ContextActionModify:
		return nil
	}

	return fmt.Errorf("%w: %T", protocol.ErrUnknownType, msg)
}
