package session

import (
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	msgs chan protocol.Message
}

func (c *testClient) readLoop() {
	defer close(c.msgs)
	for {
		m, err := protocol.ReadMessage(c.conn, 0)
		if err != nil {
			return
		}
		c.msgs <- m
	}
}

func (c *testClient) send(msg protocol.Message) {
	c.t.Helper()
	require.NoError(c.t, protocol.WriteMessage(c.conn, msg))
}

// next returns the next message, or nil once the server closed the stream
func (c *testClient) next() protocol.Message {
	c.t.Helper()
	select {
	case m := <-c.msgs:
		return m
	case <-time.After(2 * time.Second):
		c.t.Fatal("timed out waiting for a server message")
		return nil
	}
}

func (c *testClient) expect(mt protocol.MessageType) protocol.Message {
	c.t.Helper()
	m := c.next()
	require.NotNil(c.t, m, "stream closed while waiting for %s", mt)
	require.Equal(c.t, mt, m.Type())
	return m
}

// expectClosed drains until the server closes the stream
func (c *testClient) expectClosed() []protocol.Message {
	c.t.Helper()
	var rest []protocol.Message
	for {
		m := c.next()
		if m == nil {
			return rest
		}
		rest = append(rest, m)
	}
}

// until reads messages up to and including the first of type mt
func (c *testClient) until(mt protocol.MessageType) []protocol.Message {
	c.t.Helper()
	var seen []protocol.Message
	for {
		m := c.next()
		require.NotNil(c.t, m, "stream closed while waiting for %s", mt)
		seen = append(seen, m)
		if m.Type() == mt {
			return seen
		}
	}
}

type handshakeResult struct {
	setup *protocol.CryptSetup
	sync  *protocol.ServerSync
}

func (c *testClient) handshake(username, password string) handshakeResult {
	c.t.Helper()
	c.expect(protocol.MessageTypeVersion)
	c.send(protocol.NewVersionMessage(protocol.NewProtocolVersion(1, 5, 0), "test", "Linux", "6"))
	c.send(&protocol.Authenticate{
		Username: protocol.String(username),
		Password: protocol.String(password),
		Opus:     protocol.Bool(true),
	})

	var res handshakeResult
	for _, m := range c.until(protocol.MessageTypeServerSync) {
		switch m := m.(type) {
		case *protocol.CryptSetup:
			res.setup = m
		case *protocol.ServerSync:
			res.sync = m
		}
	}
	require.NotNil(c.t, res.setup, "no CryptSetup before ServerSync")
	return res
}

func testOptions() *Options {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 0
	return &Options{
		Config:   cfg,
		Registry: NewRegistry(),
	}
}

func startSession(t *testing.T, opts *Options) (*Session, *testClient, <-chan error) {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	serverConn, clientConn := net.Pipe()
	ctrl := transport.NewControlChannel(serverConn, transport.DefaultConfig(), nil)
	s := New(ctrl, opts)

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	c := &testClient{t: t, conn: clientConn, msgs: make(chan protocol.Message, 256)}
	go c.readLoop()

	t.Cleanup(func() {
		s.Close()
		clientConn.Close()
	})
	return s, c, runErr
}

func waitRun(t *testing.T, runErr <-chan error) error {
	t.Helper()
	select {
	case err := <-runErr:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

// clientCrypt builds the client side of the crypto context from CryptSetup
func clientCrypt(t *testing.T, mode crypto.Mode, setup *protocol.CryptSetup, skip uint64) *crypto.CryptState {
	t.Helper()
	cs, err := crypto.SetKey(mode, crypto.DefaultWindowConfig(), setup.Key, addIV(setup.ClientNonce, skip), setup.ServerNonce)
	require.NoError(t, err)
	return cs
}

func addIV(iv []byte, n uint64) []byte {
	out := append([]byte(nil), iv...)
	lo := binary.LittleEndian.Uint64(out[:8])
	hi := binary.LittleEndian.Uint64(out[8:])
	sum := lo + n
	if sum < lo {
		hi++
	}
	binary.LittleEndian.PutUint64(out[:8], sum)
	binary.LittleEndian.PutUint64(out[8:], hi)
	return out
}

type recordingUDP struct {
	mu      sync.Mutex
	packets [][]byte
	to      []netip.AddrPort
	err     error
}

func (r *recordingUDP) WriteDatagram(packet []byte, to netip.AddrPort) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.packets = append(r.packets, append([]byte(nil), packet...))
	r.to = append(r.to, to)
	return nil
}

func (r *recordingUDP) sent() ([][]byte, []netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.packets...), append([]netip.AddrPort(nil), r.to...)
}

type recordingObserver struct {
	mu            sync.Mutex
	created       int
	authenticated int
	closed        int
	cause         error
}

func (o *recordingObserver) SessionCreated(*Session) {
	o.mu.Lock()
	o.created++
	o.mu.Unlock()
}

func (o *recordingObserver) SessionAuthenticated(*Session) {
	o.mu.Lock()
	o.authenticated++
	o.mu.Unlock()
}

func (o *recordingObserver) SessionClosed(_ *Session, cause error) {
	o.mu.Lock()
	o.closed++
	o.cause = cause
	o.mu.Unlock()
}

func (o *recordingObserver) counts() (created, authenticated, closed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.created, o.authenticated, o.closed
}

// recordingHandler counts handler calls by message type
type recordingHandler struct {
	NopHandler
	mu     sync.Mutex
	calls  map[protocol.MessageType]int
	closed int
	info   *SyncInfo
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(map[protocol.MessageType]int)}
}

func (h *recordingHandler) record(t protocol.MessageType) error {
	h.mu.Lock()
	h.calls[t]++
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) count(t protocol.MessageType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[t]
}

func (h *recordingHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		n += c
	}
	return n
}

func (h *recordingHandler) Synchronize(*Session) (*SyncInfo, error) {
	if h.info != nil {
		return h.info, nil
	}
	return &SyncInfo{}, nil
}

func (h *recordingHandler) SessionClosed(*Session) {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
}

func (h *recordingHandler) HandleChannelRemove(_ *Session, m *protocol.ChannelRemove) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleChannelState(_ *Session, m *protocol.ChannelState) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleUserRemove(_ *Session, m *protocol.UserRemove) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleUserState(_ *Session, m *protocol.UserState) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleBanList(_ *Session, m *protocol.BanList) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleTextMessage(_ *Session, m *protocol.TextMessage) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleACL(_ *Session, m *protocol.ACL) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleQueryUsers(_ *Session, m *protocol.QueryUsers) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleContextAction(_ *Session, m *protocol.ContextAction) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleUserList(_ *Session, m *protocol.UserList) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandlePermissionQuery(_ *Session, m *protocol.PermissionQuery) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleUserStats(_ *Session, m *protocol.UserStats) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandleRequestBlob(_ *Session, m *protocol.RequestBlob) error {
	return h.record(m.Type())
}
func (h *recordingHandler) HandlePluginDataTransmission(_ *Session, m *protocol.PluginDataTransmission) error {
	return h.record(m.Type())
}

// sampleMessage returns a valid client message of type mt
func sampleMessage(mt protocol.MessageType) protocol.Message {
	switch mt {
	case protocol.MessageTypeUDPTunnel:
		return &protocol.UDPTunnel{Packet: protocol.EncodeUDP(&protocol.UDPPing{Timestamp: 1})}
	case protocol.MessageTypeChannelRemove:
		return &protocol.ChannelRemove{ChannelID: protocol.Uint32(1)}
	case protocol.MessageTypeUserRemove:
		return &protocol.UserRemove{Session: protocol.Uint32(1)}
	case protocol.MessageTypeTextMessage:
		return &protocol.TextMessage{Message: protocol.String("hi")}
	case protocol.MessageTypeACL:
		return &protocol.ACL{ChannelID: protocol.Uint32(0)}
	case protocol.MessageTypeCodecVersion:
		return &protocol.CodecVersion{Alpha: protocol.Int32(1), Beta: protocol.Int32(2), PreferAlpha: protocol.Bool(true)}
	case protocol.MessageTypeContextActionModify:
		return &protocol.ContextActionModify{Action: protocol.String("act")}
	case protocol.MessageTypeContextAction:
		return &protocol.ContextAction{Action: protocol.String("act")}
	}
	m, err := protocol.NewMessage(mt)
	if err != nil {
		panic(err)
	}
	return m
}
