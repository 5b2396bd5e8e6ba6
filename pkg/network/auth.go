package network

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
	"github.com/ZentaChain/zentalk-voice/pkg/storage"
)

// DefaultUsernamePattern matches the names stock servers accept
const DefaultUsernamePattern = `^[-=\w\[\]\{\}\(\)\@\|\.]+$`

// AuthConfig controls who may join
type AuthConfig struct {
	ServerPassword      string
	MinClientVersion    protocol.ProtocolVersion
	UsernamePattern     *regexp.Regexp
	MaxUsernameLength   int
	RegisteredOnly      bool
	CertificateRequired bool
	MaxUsers            int
}

// DefaultAuthConfig returns an open server for up to 100 users
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		UsernamePattern:   regexp.MustCompile(DefaultUsernamePattern),
		MaxUsernameLength: 128,
		MaxUsers:          100,
	}
}

// Authenticator checks clients against the user store, the ban list and
// the live sessions
type Authenticator struct {
	cfg       AuthConfig
	store     *storage.DB
	registry  *session.Registry
	accepting func() bool
	now       func() time.Time
	log       *zap.Logger

	// admitted holds the sessions counted against MaxUsers, from the
	// moment they pass authentication until they leave the registry
	mu       sync.Mutex
	admitted map[uint32]struct{}
}

// NewAuthenticator creates an Authenticator. store may be nil, in which case
// every user is unregistered and nobody is banned.
func NewAuthenticator(cfg AuthConfig, store *storage.DB, registry *session.Registry, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		accepting: func() bool { return true },
		admitted:  make(map[uint32]struct{}),
		now:       time.Now,
		log:       log.Named("auth"),
	}
}

// Authenticate implements session.Authenticator
func (a *Authenticator) Authenticate(ctx context.Context, req session.AuthRequest) (*session.AuthResult, error) {
	if !a.accepting() {
		return nil, session.Reject(protocol.RejectNoNewConnections, "server is not accepting new connections")
	}
	if a.cfg.MinClientVersion != 0 && req.Version < a.cfg.MinClientVersion {
		return nil, session.Reject(protocol.RejectWrongVersion,
			"client version %s is older than the required %s", req.Version, a.cfg.MinClientVersion)
	}
	if !a.validName(req.Username) {
		return nil, session.Reject(protocol.RejectInvalidUsername, "invalid username")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.store != nil {
		now := a.now()
		if ban, banned, err := a.store.IsHashBanned(req.CertHash, now); err != nil {
			return nil, err
		} else if banned {
			return nil, session.Reject(protocol.RejectNone, "you are banned from this server: %s", ban.Reason)
		}
		if ban, banned, err := a.store.IsAddressBanned(req.Remote, now); err != nil {
			return nil, err
		} else if banned {
			return nil, session.Reject(protocol.RejectNone, "you are banned from this server: %s", ban.Reason)
		}
	}

	if a.cfg.CertificateRequired && req.CertHash == "" {
		return nil, session.Reject(protocol.RejectNoCertificate, "a client certificate is required")
	}

	result, err := a.resolveUser(req)
	if err != nil {
		return nil, err
	}

	name := req.Username
	if result.Name != "" {
		name = result.Name
	}
	if other, taken := a.registry.FindByName(name, nil); taken {
		// A registered user reconnecting with the same identity replaces
		// the stale session
		if result.UserID >= 0 && other.UserID() == result.UserID {
			a.log.Info("Replacing stale session", zap.String("name", name), zap.Uint32("session", other.ID()))
			a.release(other.ID())
			other.Kick("you connected from another device")
		} else {
			return nil, session.Reject(protocol.RejectUsernameInUse, "username %q is already in use", name)
		}
	}

	if !a.admit(req.Session) {
		return nil, session.Reject(protocol.RejectServerFull, "server is full")
	}

	return result, nil
}

// admit reserves a slot for id. Slots of sessions that left the registry
// are reclaimed first.
func (a *Authenticator) admit(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for other := range a.admitted {
		if _, live := a.registry.Get(other); !live {
			delete(a.admitted, other)
		}
	}
	if _, ok := a.admitted[id]; ok {
		return true
	}
	if a.cfg.MaxUsers > 0 && len(a.admitted) >= a.cfg.MaxUsers {
		return false
	}
	a.admitted[id] = struct{}{}
	return true
}

func (a *Authenticator) release(id uint32) {
	a.mu.Lock()
	delete(a.admitted, id)
	a.mu.Unlock()
}

// resolveUser matches the request to a registered account, or accepts it
// as unregistered
func (a *Authenticator) resolveUser(req session.AuthRequest) (*session.AuthResult, error) {
	var user *storage.User
	if a.store != nil {
		u, err := a.store.UserByName(req.Username)
		switch {
		case err == nil:
			user = u
		case errors.Is(err, storage.ErrNotFound):
			if u, err := a.store.UserByCertHash(req.CertHash); err == nil && u.ID != storage.SuperUserID {
				user = u
			}
		default:
			return nil, err
		}
	}

	if user != nil {
		certOK := req.CertHash != "" && user.CertHash == req.CertHash
		passOK := false
		if req.Password != "" {
			switch err := a.store.CheckPassword(user.ID, req.Password); {
			case err == nil:
				passOK = true
			case !errors.Is(err, storage.ErrInvalidPassword):
				return nil, err
			}
		}
		if !certOK && !passOK {
			return nil, session.Reject(protocol.RejectWrongUserPW, "wrong certificate or password for registered user")
		}
		if passOK && user.CertHash == "" && req.CertHash != "" && user.ID != storage.SuperUserID {
			if err := a.store.BindCertificate(user.ID, req.CertHash); err != nil {
				a.log.Warn("Failed to bind certificate", zap.Int64("user_id", user.ID), zap.Error(err))
			}
		}
		return &session.AuthResult{UserID: user.ID, Name: user.Name}, nil
	}

	if a.cfg.ServerPassword != "" && req.Password != a.cfg.ServerPassword {
		return nil, session.Reject(protocol.RejectWrongServerPW, "wrong server password")
	}
	if a.cfg.RegisteredOnly {
		return nil, session.Reject(protocol.RejectInvalidUsername, "only registered users may connect")
	}
	return &session.AuthResult{UserID: -1}, nil
}

func (a *Authenticator) validName(name string) bool {
	if name == "" {
		return false
	}
	if a.cfg.MaxUsernameLength > 0 && len(name) > a.cfg.MaxUsernameLength {
		return false
	}
	if a.cfg.UsernamePattern != nil && !a.cfg.UsernamePattern.MatchString(name) {
		return false
	}
	return true
}
