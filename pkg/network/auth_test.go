package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
	"github.com/ZentaChain/zentalk-voice/pkg/storage"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "voice.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func authRequest(name, password string) session.AuthRequest {
	return session.AuthRequest{
		Session:  1,
		Username: name,
		Password: password,
		Version:  protocol.NewProtocolVersion(1, 5, 0),
		Remote:   netip.MustParseAddr("192.0.2.10"),
	}
}

func rejectReason(t *testing.T, err error) protocol.RejectType {
	t.Helper()
	var rejected *session.AuthRejected
	require.True(t, errors.As(err, &rejected), "expected a reject, got %v", err)
	return rejected.Reason
}

func TestAuthenticateOpenServer(t *testing.T) {
	a := NewAuthenticator(DefaultAuthConfig(), nil, session.NewRegistry(), nil)

	res, err := a.Authenticate(context.Background(), authRequest("alice", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.UserID)
	assert.Empty(t, res.Name)
}

func TestAuthenticateRejects(t *testing.T) {
	store := openStore(t)
	_, err := store.AddBan(storage.Ban{Hash: "badhash", Reason: "spam"})
	require.NoError(t, err)
	_, err = store.AddBan(storage.Ban{Address: netip.MustParseAddr("198.51.100.0"), Bits: 120, Reason: "flood"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*AuthConfig)
		req    func(*session.AuthRequest)
		want   protocol.RejectType
	}{
		{
			name: "old client",
			mutate: func(c *AuthConfig) {
				c.MinClientVersion = protocol.NewProtocolVersion(1, 4, 0)
			},
			req:  func(r *session.AuthRequest) { r.Version = protocol.NewProtocolVersion(1, 2, 4) },
			want: protocol.RejectWrongVersion,
		},
		{
			name: "empty name",
			req:  func(r *session.AuthRequest) { r.Username = "" },
			want: protocol.RejectInvalidUsername,
		},
		{
			name: "name with spaces",
			req:  func(r *session.AuthRequest) { r.Username = "bad name" },
			want: protocol.RejectInvalidUsername,
		},
		{
			name:   "name too long",
			mutate: func(c *AuthConfig) { c.MaxUsernameLength = 4 },
			req:    func(r *session.AuthRequest) { r.Username = "abcdef" },
			want:   protocol.RejectInvalidUsername,
		},
		{
			name: "banned certificate",
			req:  func(r *session.AuthRequest) { r.CertHash = "badhash" },
			want: protocol.RejectNone,
		},
		{
			name: "banned address range",
			req:  func(r *session.AuthRequest) { r.Remote = netip.MustParseAddr("198.51.100.77") },
			want: protocol.RejectNone,
		},
		{
			name:   "certificate required",
			mutate: func(c *AuthConfig) { c.CertificateRequired = true },
			want:   protocol.RejectNoCertificate,
		},
		{
			name:   "wrong server password",
			mutate: func(c *AuthConfig) { c.ServerPassword = "letmein" },
			req:    func(r *session.AuthRequest) { r.Password = "guess" },
			want:   protocol.RejectWrongServerPW,
		},
		{
			name:   "registered only",
			mutate: func(c *AuthConfig) { c.RegisteredOnly = true },
			want:   protocol.RejectInvalidUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAuthConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			req := authRequest("alice", "")
			if tt.req != nil {
				tt.req(&req)
			}
			a := NewAuthenticator(cfg, store, session.NewRegistry(), nil)

			_, err := a.Authenticate(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.want, rejectReason(t, err))
		})
	}
}

func TestAuthenticateNotAccepting(t *testing.T) {
	a := NewAuthenticator(DefaultAuthConfig(), nil, session.NewRegistry(), nil)
	a.accepting = func() bool { return false }

	_, err := a.Authenticate(context.Background(), authRequest("alice", ""))
	assert.Equal(t, protocol.RejectNoNewConnections, rejectReason(t, err))
}

// liveSession registers an idle session on a pipe
func liveSession(t *testing.T, registry *session.Registry) *session.Session {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	ctrl := transport.NewControlChannel(serverConn, transport.DefaultConfig(), nil)
	s := session.New(ctrl, &session.Options{Config: session.DefaultConfig(), Registry: registry})
	t.Cleanup(func() {
		s.Close()
		clientConn.Close()
	})
	return s
}

func TestAuthenticateServerFullUnderConcurrency(t *testing.T) {
	const maxUsers, clients = 3, 12

	registry := session.NewRegistry()
	cfg := DefaultAuthConfig()
	cfg.MaxUsers = maxUsers
	a := NewAuthenticator(cfg, nil, registry, nil)

	sessions := make([]*session.Session, clients)
	for i := range sessions {
		sessions[i] = liveSession(t, registry)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*session.Session
		full     int
	)
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *session.Session) {
			defer wg.Done()
			req := authRequest(fmt.Sprintf("user%d", i), "")
			req.Session = s.ID()
			_, err := a.Authenticate(context.Background(), req)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted = append(accepted, s)
				return
			}
			var rejected *session.AuthRejected
			if errors.As(err, &rejected) && rejected.Reason == protocol.RejectServerFull {
				full++
			}
		}(i, s)
	}
	wg.Wait()

	assert.Len(t, accepted, maxUsers)
	assert.Equal(t, clients-maxUsers, full)

	// a departed session frees its slot
	accepted[0].Close()
	req := authRequest("latecomer", "")
	req.Session = liveSession(t, registry).ID()
	_, err := a.Authenticate(context.Background(), req)
	assert.NoError(t, err)

	req = authRequest("another", "")
	req.Session = liveSession(t, registry).ID()
	_, err = a.Authenticate(context.Background(), req)
	assert.Equal(t, protocol.RejectServerFull, rejectReason(t, err))
}

func TestAuthenticateExpiredBan(t *testing.T) {
	store := openStore(t)
	_, err := store.AddBan(storage.Ban{
		Hash:     "oldhash",
		Start:    time.Now().Add(-2 * time.Hour),
		Duration: time.Hour,
	})
	require.NoError(t, err)

	a := NewAuthenticator(DefaultAuthConfig(), store, session.NewRegistry(), nil)
	req := authRequest("alice", "")
	req.CertHash = "oldhash"
	_, err = a.Authenticate(context.Background(), req)
	assert.NoError(t, err)
}

func TestAuthenticateRegisteredUser(t *testing.T) {
	store := openStore(t)
	bob, err := store.RegisterUser("Bob", "hunter2", "")
	require.NoError(t, err)
	carol, err := store.RegisterUser("carol", "", "carolhash")
	require.NoError(t, err)

	cfg := DefaultAuthConfig()
	cfg.ServerPassword = "serverpw"
	a := NewAuthenticator(cfg, store, session.NewRegistry(), nil)
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		_, err := a.Authenticate(ctx, authRequest("bob", "nope"))
		assert.Equal(t, protocol.RejectWrongUserPW, rejectReason(t, err))
	})

	t.Run("password login binds certificate", func(t *testing.T) {
		req := authRequest("bob", "hunter2")
		req.CertHash = "bobhash"
		res, err := a.Authenticate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, res.UserID)
		assert.Equal(t, "Bob", res.Name)

		u, err := store.UserByID(bob.ID)
		require.NoError(t, err)
		assert.Equal(t, "bobhash", u.CertHash)
	})

	t.Run("certificate login", func(t *testing.T) {
		req := authRequest("carol", "")
		req.CertHash = "carolhash"
		res, err := a.Authenticate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, carol.ID, res.UserID)
	})

	t.Run("certificate login under another name", func(t *testing.T) {
		req := authRequest("caz", "")
		req.CertHash = "carolhash"
		res, err := a.Authenticate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, carol.ID, res.UserID)
		assert.Equal(t, "carol", res.Name)
	})

	t.Run("unregistered needs server password", func(t *testing.T) {
		res, err := a.Authenticate(ctx, authRequest("dave", "serverpw"))
		require.NoError(t, err)
		assert.Equal(t, int64(-1), res.UserID)
	})
}

func TestAuthenticateSuperUser(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.EnsureSuperUser("root"))
	a := NewAuthenticator(DefaultAuthConfig(), store, session.NewRegistry(), nil)

	res, err := a.Authenticate(context.Background(), authRequest("superuser", "root"))
	require.NoError(t, err)
	assert.Equal(t, storage.SuperUserID, res.UserID)
	assert.Equal(t, storage.SuperUserName, res.Name)

	_, err = a.Authenticate(context.Background(), authRequest("SuperUser", ""))
	assert.Equal(t, protocol.RejectWrongUserPW, rejectReason(t, err))
}
