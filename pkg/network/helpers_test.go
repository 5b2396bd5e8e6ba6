package network

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

const waitTimeout = 3 * time.Second

func testTLS(t *testing.T) *tls.Config {
	t.Helper()
	certPEM, keyPEM, err := crypto.GenerateSelfSigned("localhost", time.Hour)
	require.NoError(t, err)
	cert, err := crypto.LoadKeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

func testServerOptions(t *testing.T) Options {
	cfg := session.DefaultConfig()
	cfg.MessageLimit = 0
	return Options{
		Addr:      "127.0.0.1:0",
		TLS:       testTLS(t),
		Session:   cfg,
		Transport: transport.DefaultConfig(),
		Auth:      DefaultAuthConfig(),
		Roster:    DefaultRosterConfig(),
		Store:     openStore(t),
	}
}

// startServer runs a server on loopback until the test ends
func startServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	opts := testServerOptions(t)
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitTimeout):
			t.Error("server did not stop")
		}
	})
	return srv
}

func dial(t *testing.T, srv *Server, name, password string) *Client {
	t.Helper()
	c, err := dialErr(srv, name, password)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func dialErr(srv *Server, name, password string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return Dial(ctx, srv.Addr().String(), ClientConfig{Username: name, Password: password})
}

// waitFor reads control messages until one of type T satisfies match
func waitFor[T protocol.Message](t *testing.T, c *Client, match func(T) bool) T {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case m, ok := <-c.Messages():
			require.True(t, ok, "connection closed while waiting")
			if v, ok := m.(T); ok && (match == nil || match(v)) {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// waitVoice reads voice-path messages until one of type T arrives
func waitVoice[T protocol.UDPMessage](t *testing.T, c *Client) T {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case m := <-c.Voice():
			if v, ok := m.(T); ok {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// synced returns the server side session of c
func synced(t *testing.T, srv *Server, c *Client) *session.Session {
	t.Helper()
	var s *session.Session
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = srv.Registry().Get(c.Session())
		return ok && s.State() == session.Synced
	}, waitTimeout, 10*time.Millisecond)
	return s
}
