package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

func TestNewServerRequiresCertificate(t *testing.T) {
	_, err := NewServer(Options{Addr: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestListenLogsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	startServer(t, func(o *Options) {
		o.Logger = zap.New(core)
		o.Auth.MaxUsers = 7
	})

	entries := logs.FilterMessage("Voice server listening").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(7), fields["max_users"])
	assert.NotEmpty(t, fields["tcp"])
	assert.NotEmpty(t, fields["udp"])
}

func TestClientsSeeEachOther(t *testing.T) {
	srv := startServer(t, nil)

	alice := dial(t, srv, "alice", "")
	ss := alice.ServerSync()
	require.NotNil(t, ss)
	assert.Equal(t, DefaultRosterConfig().WelcomeText, protocol.GetString(ss.WelcomeText))
	assert.Equal(t, uint64(protocol.PermissionDefault), protocol.GetUint64(ss.Permissions))
	waitFor[*protocol.ServerConfig](t, alice, nil)

	bob := dial(t, srv, "bob", "")
	synced(t, srv, bob)

	joined := waitFor(t, alice, func(m *protocol.UserState) bool {
		return protocol.GetUint32(m.Session) == bob.Session()
	})
	assert.Equal(t, "bob", protocol.GetString(joined.Name))
	assert.Equal(t, RootChannelID, protocol.GetUint32(joined.ChannelID))

	existing := waitFor(t, bob, func(m *protocol.UserState) bool {
		return protocol.GetUint32(m.Session) == alice.Session()
	})
	assert.Equal(t, "alice", protocol.GetString(existing.Name))

	bob.Close()
	removed := waitFor(t, alice, func(m *protocol.UserRemove) bool {
		return protocol.GetUint32(m.Session) == bob.Session()
	})
	assert.Nil(t, removed.Actor)
}

func TestTunnelAudio(t *testing.T) {
	srv := startServer(t, nil)
	alice := dial(t, srv, "alice", "")
	bob := dial(t, srv, "bob", "")
	synced(t, srv, alice)
	synced(t, srv, bob)

	require.NoError(t, alice.SendTunnel(&protocol.Audio{
		Selector:    protocol.Target(protocol.TargetNormal),
		FrameNumber: 7,
		OpusData:    []byte{1, 2, 3},
	}))

	audio := waitVoice[*protocol.Audio](t, bob)
	assert.Equal(t, protocol.Context(protocol.AudioContextNormal), audio.Selector)
	assert.Equal(t, alice.Session(), audio.SenderSession)
	assert.Equal(t, uint64(7), audio.FrameNumber)
	assert.Equal(t, []byte{1, 2, 3}, audio.OpusData)
}

func TestUDPAddressLearning(t *testing.T) {
	srv := startServer(t, nil)
	alice := dial(t, srv, "alice", "")
	sess := synced(t, srv, alice)
	assert.False(t, sess.UDPActive())

	require.NoError(t, alice.ConnectUDP(srv.UDPAddr().String()))
	require.NoError(t, alice.SendUDP(&protocol.UDPPing{Timestamp: 42}))

	pong := waitVoice[*protocol.UDPPing](t, alice)
	assert.Equal(t, uint64(42), pong.Timestamp)
	assert.True(t, sess.UDPActive())
	assert.True(t, sess.UDPAddr().IsValid())

	pinned, ok := srv.Registry().ByAddr(sess.UDPAddr())
	require.True(t, ok)
	assert.Equal(t, sess.ID(), pinned.ID())
}

func TestUDPAudioBetweenClients(t *testing.T) {
	srv := startServer(t, nil)
	alice := dial(t, srv, "alice", "")
	bob := dial(t, srv, "bob", "")
	bobSess := synced(t, srv, bob)
	synced(t, srv, alice)

	require.NoError(t, bob.ConnectUDP(srv.UDPAddr().String()))
	require.NoError(t, bob.SendUDP(&protocol.UDPPing{Timestamp: 1}))
	waitVoice[*protocol.UDPPing](t, bob)
	require.True(t, bobSess.UDPActive())

	require.NoError(t, alice.ConnectUDP(srv.UDPAddr().String()))
	require.NoError(t, alice.SendUDP(&protocol.Audio{
		Selector:    protocol.Target(protocol.TargetNormal),
		FrameNumber: 1,
		OpusData:    []byte("frame"),
	}))

	audio := waitVoice[*protocol.Audio](t, bob)
	assert.Equal(t, alice.Session(), audio.SenderSession)
	assert.Equal(t, []byte("frame"), audio.OpusData)
}

func TestDuplicateNameRejected(t *testing.T) {
	srv := startServer(t, nil)
	dial(t, srv, "alice", "")

	_, err := dialErr(srv, "Alice", "")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, protocol.RejectUsernameInUse, rejected.Reason)
}

func TestWrongServerPassword(t *testing.T) {
	srv := startServer(t, func(o *Options) { o.Auth.ServerPassword = "secret" })

	_, err := dialErr(srv, "alice", "wrong")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, protocol.RejectWrongServerPW, rejected.Reason)

	dial(t, srv, "alice", "secret")
}

func TestServerFull(t *testing.T) {
	srv := startServer(t, func(o *Options) { o.Auth.MaxUsers = 1 })
	alice := dial(t, srv, "alice", "")
	synced(t, srv, alice)

	_, err := dialErr(srv, "bob", "")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, protocol.RejectServerFull, rejected.Reason)
}

func TestNotAccepting(t *testing.T) {
	srv := startServer(t, nil)
	srv.SetAccepting(false)

	_, err := dialErr(srv, "alice", "")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, protocol.RejectNoNewConnections, rejected.Reason)
	assert.False(t, srv.Stats().Accepting)
}

func TestRegisteredUserReplacesStaleSession(t *testing.T) {
	srv := startServer(t, nil)
	_, err := srv.Store().RegisterUser("bob", "pw", "")
	require.NoError(t, err)

	first := dial(t, srv, "bob", "pw")
	synced(t, srv, first)
	second := dial(t, srv, "bob", "pw")
	synced(t, srv, second)

	select {
	case <-first.Done():
	case <-time.After(waitTimeout):
		t.Fatal("stale session was not closed")
	}
	assert.NotEqual(t, first.Session(), second.Session())
}

func TestServerStatsAndKick(t *testing.T) {
	srv := startServer(t, nil)
	alice := dial(t, srv, "alice", "")
	bob := dial(t, srv, "bob", "")
	synced(t, srv, alice)
	synced(t, srv, bob)

	st := srv.Stats()
	assert.Equal(t, 2, st.Synced)
	assert.Equal(t, 2, st.Peak)
	assert.Equal(t, uint64(2), st.Total)
	assert.True(t, st.Accepting)
	assert.NotEmpty(t, st.TCPAddr)
	assert.NotEmpty(t, st.UDPAddr)

	require.True(t, srv.Kick(bob.Session(), "bye"))
	assert.False(t, srv.Kick(9999, "nobody"))

	reject := waitFor[*protocol.Reject](t, bob, nil)
	assert.Equal(t, "bye", protocol.GetString(reject.Reason))
	require.Eventually(t, func() bool { return srv.Stats().Synced == 1 }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, 2, srv.Stats().Peak)
}

func TestShutdownClosesClients(t *testing.T) {
	opts := testServerOptions(t)
	srv, err := NewServer(opts)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	alice := dial(t, srv, "alice", "")
	synced(t, srv, alice)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("server did not stop")
	}
	select {
	case <-alice.Done():
	case <-time.After(waitTimeout):
		t.Fatal("client was not disconnected")
	}
	assert.Equal(t, 0, srv.Registry().Len())
}
