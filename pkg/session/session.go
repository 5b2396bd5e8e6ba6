package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

// RemoteStats are the counters a client reports in its Ping messages
type RemoteStats struct {
	Good       uint32
	Late       uint32
	Lost       uint32
	Resync     uint32
	UDPPackets uint32
	TCPPackets uint32
	UDPPingAvg float32
	UDPPingVar float32
	TCPPingAvg float32
	TCPPingVar float32
}

// UserInfo is the user state a client can see and partly change
type UserInfo struct {
	ChannelID       uint32
	Mute            bool
	Deaf            bool
	Suppress        bool
	SelfMute        bool
	SelfDeaf        bool
	PrioritySpeaker bool
	Recording       bool
	Comment         string
	Texture         []byte
	PluginContext   []byte
	PluginIdentity  string
}

// ClientInfo describes the connected client software
type ClientInfo struct {
	Version     protocol.ProtocolVersion
	Release     string
	OS          string
	OSVersion   string
	CeltVersion []int32
	Opus        bool
	ClientType  int32
}

// Session is one connected client. It owns the control channel and the
// crypto context; every mutation of either goes through the session lock.
type Session struct {
	id        uint32
	ctrl      *transport.ControlChannel
	opts      *Options
	log       *zap.Logger
	host      netip.Addr
	certHash  string
	connected time.Time
	limiter   *rate.Limiter

	mu         sync.Mutex
	state      State
	client     ClientInfo
	username   string
	userID     int64
	tokens     []string
	crypt      *crypto.CryptState
	lastResync time.Time
	resyncs    uint32
	udpAddr    netip.AddrPort
	udpActive  bool
	udpPackets uint32
	tcpPackets uint32
	targets    map[uint32]VoiceTarget
	remote     RemoteStats
	user       UserInfo
	lastActive time.Time
	rejecting  bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New creates a session on an accepted control channel and registers it.
// For TLS connections the handshake must already be complete.
func New(ctrl *transport.ControlChannel, opts *Options) *Session {
	opts = opts.withDefaults()
	now := time.Now()

	s := &Session{
		ctrl:       ctrl,
		opts:       opts,
		connected:  now,
		lastActive: now,
		userID:     -1,
		targets:    make(map[uint32]VoiceTarget),
		done:       make(chan struct{}),
		limiter:    rate.NewLimiter(opts.Config.MessageLimit, opts.Config.MessageBurst),
	}
	if opts.Config.MessageLimit <= 0 {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	if tcp, ok := ctrl.RemoteAddr().(*net.TCPAddr); ok {
		s.host = tcp.AddrPort().Addr().Unmap()
	}
	if tc, ok := ctrl.Conn().(*tls.Conn); ok {
		s.certHash = crypto.PeerCertificateHash(tc.ConnectionState().PeerCertificates)
	}

	opts.Registry.add(s)
	s.log = opts.Logger.With(
		zap.Uint32("session", s.id),
		zap.String("remote", ctrl.RemoteAddr().String()))
	return s
}

// Run serves the session until the control channel fails, the client is
// rejected or ctx is cancelled. It always closes the session and returns
// the close cause.
func (s *Session) Run(ctx context.Context) error {
	s.opts.Metrics.RecordSessionOpened()
	s.opts.Observer.SessionCreated(s)
	s.log.Info("Session connected")

	if timeout := s.opts.Config.HandshakeTimeout; timeout > 0 {
		timer := time.AfterFunc(timeout, s.handshakeExpired)
		defer timer.Stop()
	}

	cfg := s.opts.Config
	hello := protocol.NewVersionMessage(cfg.Version, cfg.Release, cfg.OS, cfg.OSVersion)
	if err := s.ctrl.Send(hello); err != nil {
		s.closeWith(err)
		return s.Err()
	}

	err := s.ctrl.Serve(ctx, func(msg protocol.Message) error {
		return s.handle(ctx, msg)
	})
	s.closeWith(err)
	return s.Err()
}

func (s *Session) handle(ctx context.Context, msg protocol.Message) error {
	s.touch()
	s.opts.Metrics.RecordMessageIn(msg.Type().String())

	state := s.State()
	if state == Closed {
		return ErrSessionClosed
	}
	if !Permitted(state, msg.Type()) {
		return s.violation(state, msg.Type())
	}

	if state == Synced {
		if limited(msg.Type()) && !s.limiter.Allow() {
			s.opts.Metrics.RecordRateLimited(msg.Type().String())
			s.log.Debug("Rate limited message dropped", zap.Stringer("type", msg.Type()))
			return nil
		}
		err := Dispatch(s, msg)
		if err != nil && !IsFatal(err) {
			s.log.Warn("Failed to handle message",
				zap.Stringer("type", msg.Type()),
				zap.Error(err))
			return nil
		}
		return err
	}

	switch m := msg.(type) {
	case *protocol.Version:
		s.handleVersion(m)
	case *protocol.Authenticate:
		return s.authenticate(ctx, m)
	case *protocol.Ping:
		return s.handlePing(m)
	case *protocol.CryptSetup:
		return s.handleCryptSetup(m)
	}
	return nil
}

// limited reports whether t is subject to the per-session flood limit
func limited(t protocol.MessageType) bool {
	switch t {
	case protocol.MessageTypeTextMessage,
		protocol.MessageTypeChannelState,
		protocol.MessageTypeContextAction,
		protocol.MessageTypePluginDataTransmission:
		return true
	}
	return false
}

func (s *Session) violation(state State, t protocol.MessageType) error {
	s.opts.Metrics.RecordViolation()
	s.log.Warn("Protocol violation",
		zap.Stringer("state", state),
		zap.Stringer("type", t))
	s.reject(protocol.RejectNone, fmt.Sprintf("protocol violation: %s in state %s", t, state))
	return &ProtocolViolation{State: state, Type: t}
}

func (s *Session) handshakeExpired() {
	switch s.State() {
	case Connected, VersionExchanged:
		s.log.Info("Handshake timed out")
		s.rejectAndClose(protocol.RejectNone, "handshake timeout", ErrHandshakeTimeout)
	}
}

func (s *Session) handleVersion(m *protocol.Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.Version = m.ProtocolVersion()
	s.client.Release = protocol.GetString(m.Release)
	s.client.OS = protocol.GetString(m.OS)
	s.client.OSVersion = protocol.GetString(m.OSVersion)
	if s.state == Connected {
		s.state = VersionExchanged
	}
}

func (s *Session) authenticate(ctx context.Context, m *protocol.Authenticate) error {
	s.mu.Lock()
	s.state = Authenticating
	s.username = protocol.GetString(m.Username)
	s.tokens = append([]string(nil), m.Tokens...)
	s.client.CeltVersion = append([]int32(nil), m.CeltVersion...)
	s.client.Opus = protocol.GetBool(m.Opus)
	if m.ClientType != nil {
		s.client.ClientType = *m.ClientType
	}
	req := AuthRequest{
		Session:  s.id,
		Username: s.username,
		Password: protocol.GetString(m.Password),
		Tokens:   s.tokens,
		CertHash: s.certHash,
		Version:  s.client.Version,
		Remote:   s.host,
	}
	s.mu.Unlock()

	actx := ctx
	if timeout := s.opts.Config.AuthTimeout; timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.opts.Authenticator.Authenticate(actx, req)
	if err != nil {
		var rejected *AuthRejected
		if !errors.As(err, &rejected) {
			s.log.Error("Authenticator failed", zap.Error(err))
			rejected = &AuthRejected{Reason: protocol.RejectAuthenticatorFail, Message: "authenticator failure", Err: err}
		}
		s.opts.Metrics.RecordAuthReject(rejected.Reason.String())
		s.log.Info("Authentication rejected",
			zap.String("username", req.Username),
			zap.Stringer("reason", rejected.Reason),
			zap.String("message", rejected.Message))
		s.reject(rejected.Reason, rejected.Message)
		return rejected
	}

	cs, err := crypto.NewCryptState(s.opts.Config.CryptoMode, s.opts.Config.Window)
	if err != nil {
		s.reject(protocol.RejectNone, "internal error")
		return fmt.Errorf("failed to create crypt state: %w", err)
	}

	s.mu.Lock()
	if result.Name != "" {
		s.username = result.Name
	}
	s.userID = result.UserID
	s.crypt = cs
	s.state = CryptoPending
	setup := &protocol.CryptSetup{
		Key:         cs.Key(),
		ClientNonce: cs.DecryptIV(),
		ServerNonce: cs.EncryptIV(),
	}
	s.mu.Unlock()

	if err := s.ctrl.Send(setup); err != nil {
		return err
	}
	s.opts.Observer.SessionAuthenticated(s)

	info, err := s.opts.Handler.Synchronize(s)
	if err != nil {
		s.reject(protocol.RejectNone, "synchronization failed")
		return fmt.Errorf("synchronize: %w", err)
	}
	if info == nil {
		info = &SyncInfo{}
	}

	serverSync := &protocol.ServerSync{
		Session:      protocol.Uint32(s.id),
		MaxBandwidth: info.MaxBandwidth,
		WelcomeText:  info.WelcomeText,
		Permissions:  info.Permissions,
	}
	if err := s.ctrl.Send(serverSync); err != nil {
		return err
	}
	s.setState(Synced)
	s.opts.Metrics.RecordSessionSynced()

	if info.Config != nil {
		if err := s.ctrl.Send(info.Config); err != nil {
			return err
		}
	}

	s.log.Info("Session synchronized",
		zap.String("username", s.Username()),
		zap.Int64("user_id", result.UserID))
	return nil
}

// reject sends Reject as the final message of the control channel
func (s *Session) reject(reason protocol.RejectType, text string) {
	s.mu.Lock()
	s.rejecting = true
	s.mu.Unlock()

	if err := s.ctrl.SendAndClose(protocol.NewReject(reason, text)); err != nil {
		s.log.Debug("Failed to send reject", zap.Error(err))
		s.ctrl.Close()
	}
}

// rejectAndClose records cause as the close reason before the Reject is flushed
func (s *Session) rejectAndClose(reason protocol.RejectType, text string, cause error) {
	s.mu.Lock()
	s.rejecting = true
	s.mu.Unlock()
	s.closeWith(cause)
	s.reject(reason, text)
}

func (s *Session) handlePing(m *protocol.Ping) error {
	s.mu.Lock()
	s.remote = RemoteStats{
		Good:       protocol.GetUint32(m.Good),
		Late:       protocol.GetUint32(m.Late),
		Lost:       protocol.GetUint32(m.Lost),
		Resync:     protocol.GetUint32(m.Resync),
		UDPPackets: protocol.GetUint32(m.UDPPackets),
		TCPPackets: protocol.GetUint32(m.TCPPackets),
		UDPPingAvg: getFloat(m.UDPPingAvg),
		UDPPingVar: getFloat(m.UDPPingVar),
		TCPPingAvg: getFloat(m.TCPPingAvg),
		TCPPingVar: getFloat(m.TCPPingVar),
	}
	s.tcpPackets++
	var stats crypto.Stats
	if s.crypt != nil {
		stats = s.crypt.Stats()
	}
	stats.Resync += s.resyncs
	s.mu.Unlock()

	return s.Send(&protocol.Ping{
		Timestamp: m.Timestamp,
		Good:      protocol.Uint32(stats.Good),
		Late:      protocol.Uint32(stats.Late),
		Lost:      protocol.Uint32(stats.Lost),
		Resync:    protocol.Uint32(stats.Resync),
	})
}

func getFloat(v *float32) float32 {
	if v == nil {
		return 0
	}
	return *v
}

// handleCryptSetup updates the decrypt nonce when the client sends one, and
// otherwise answers with the current encrypt nonce
func (s *Session) handleCryptSetup(m *protocol.CryptSetup) error {
	s.mu.Lock()
	if s.crypt == nil {
		s.mu.Unlock()
		return nil
	}

	if len(m.ClientNonce) > 0 {
		next, err := s.crypt.WithDecryptIV(m.ClientNonce)
		if err != nil {
			s.mu.Unlock()
			s.log.Warn("Ignoring invalid client nonce", zap.Int("length", len(m.ClientNonce)))
			return nil
		}
		s.crypt = next
		s.mu.Unlock()
		s.opts.Metrics.RecordClientResync()
		s.log.Debug("Client resynchronized decrypt nonce")
		return nil
	}

	reply := &protocol.CryptSetup{ServerNonce: s.crypt.EncryptIV()}
	s.mu.Unlock()
	return s.Send(reply)
}

// requestResync replaces the crypto context with fresh key material and
// sends it to the client, at most once per ResyncCooldown
func (s *Session) requestResync() {
	s.mu.Lock()
	if s.state == Closed || s.crypt == nil {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	if !s.lastResync.IsZero() && now.Sub(s.lastResync) < s.opts.Config.ResyncCooldown {
		s.mu.Unlock()
		return
	}

	cs, err := crypto.NewCryptState(s.opts.Config.CryptoMode, s.opts.Config.Window)
	if err != nil {
		s.mu.Unlock()
		s.log.Error("Failed to create crypt state for resync", zap.Error(err))
		return
	}
	old := s.crypt
	s.crypt = cs
	s.lastResync = now
	s.resyncs++
	setup := &protocol.CryptSetup{
		Key:         cs.Key(),
		ClientNonce: cs.DecryptIV(),
		ServerNonce: cs.EncryptIV(),
	}
	s.mu.Unlock()
	old.Zero()

	s.opts.Metrics.RecordResync()
	s.log.Info("Crypt state desynchronized, sending new key")
	if err := s.ctrl.Send(setup); err != nil {
		s.log.Debug("Failed to send resync", zap.Error(err))
	}
}

// HandleDatagram decrypts a datagram from the session's pinned address
func (s *Session) HandleDatagram(packet []byte) {
	s.mu.Lock()
	if s.crypt == nil {
		s.mu.Unlock()
		s.opts.Metrics.RecordUDPDrop("no_crypto")
		return
	}
	plain, err := s.crypt.Decrypt(nil, packet)
	if err == nil {
		s.udpActive = true
		s.udpPackets++
	}
	s.mu.Unlock()

	if err != nil {
		s.decryptFailed(err)
		return
	}
	s.handleVoicePacket(plain)
}

// MatchDatagram trial-decrypts a datagram from an unknown address. On
// success the address is pinned to this session and the packet handled.
// Failures change no state.
func (s *Session) MatchDatagram(from netip.AddrPort, packet []byte) bool {
	s.mu.Lock()
	if s.crypt == nil || s.udpAddr.IsValid() {
		s.mu.Unlock()
		return false
	}
	plain, err := s.crypt.TryDecrypt(nil, packet)
	if err != nil {
		s.mu.Unlock()
		return false
	}
	from = canonical(from)
	s.udpAddr = from
	s.udpActive = true
	s.udpPackets++
	s.mu.Unlock()

	if !s.opts.Registry.pin(from, s) {
		s.log.Warn("UDP address already pinned to another session", zap.Stringer("udp", from))
	} else {
		s.log.Debug("Learned UDP address", zap.Stringer("udp", from))
	}
	s.handleVoicePacket(plain)
	return true
}

func (s *Session) decryptFailed(err error) {
	var de *crypto.DecryptError
	if errors.As(err, &de) {
		s.opts.Metrics.RecordCryptoFailure(de.Kind.String())
	}
	if crypto.NeedsResync(err) {
		s.requestResync()
	}
}

func (s *Session) handleTunnel(m *protocol.UDPTunnel) {
	s.mu.Lock()
	s.udpActive = false
	s.tcpPackets++
	s.mu.Unlock()

	s.opts.Metrics.RecordTunnel()
	s.handleVoicePacket(m.Packet)
}

func (s *Session) handleVoicePacket(plain []byte) {
	msg, err := protocol.DecodeUDP(plain)
	if err != nil {
		s.opts.Metrics.RecordUDPDrop("malformed")
		s.log.Debug("Dropping undecodable voice packet", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *protocol.UDPPing:
		if err := s.SendUDP(&protocol.UDPPing{Timestamp: m.Timestamp}); err != nil {
			s.log.Debug("Failed to echo UDP ping", zap.Error(err))
		}
	case *protocol.Audio:
		if s.State() != Synced {
			s.opts.Metrics.RecordUDPDrop("not_synced")
			return
		}
		m.SenderSession = s.id
		s.opts.Audio.HandleAudio(s, m)
	}
}

// SendUDP sends a voice-path message over UDP, or tunnels it over the
// control channel while the client has no working UDP path. Messages that
// would not fit in one datagram are refused with ErrDatagramTooLarge.
func (s *Session) SendUDP(msg protocol.UDPMessage) error {
	return s.SendVoice(protocol.EncodeUDP(msg))
}

// SendVoice is SendUDP for an already encoded plaintext
func (s *Session) SendVoice(plain []byte) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	overhead := 0
	if s.crypt != nil {
		overhead = s.crypt.Overhead()
	}
	if len(plain)+overhead > s.opts.Config.MaxDatagramSize {
		s.mu.Unlock()
		return ErrDatagramTooLarge
	}

	if s.crypt == nil || !s.udpActive || !s.udpAddr.IsValid() || s.opts.UDP == nil {
		s.mu.Unlock()
		return s.tunnel(plain)
	}
	packet := s.crypt.Encrypt(nil, plain)
	addr := s.udpAddr
	s.mu.Unlock()

	if err := s.opts.UDP.WriteDatagram(packet, addr); err != nil {
		s.mu.Lock()
		s.udpActive = false
		s.mu.Unlock()
		s.log.Debug("UDP write failed, falling back to tunnel", zap.Error(err))
		return s.tunnel(plain)
	}
	s.opts.Metrics.RecordUDPOut()
	return nil
}

func (s *Session) tunnel(plain []byte) error {
	s.opts.Metrics.RecordTunnel()
	return s.Send(&protocol.UDPTunnel{Packet: plain})
}

func (s *Session) handleVoiceTarget(m *protocol.VoiceTarget) {
	id := protocol.GetUint32(m.ID)
	if id < protocol.TargetWhisperFirst || id > protocol.TargetWhisperLast {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(m.Targets) == 0 {
		delete(s.targets, id)
		return
	}
	s.targets[id] = newVoiceTarget(m.Targets)
}

// Send queues a control message. Messages dropped under backpressure are
// not reported as errors.
func (s *Session) Send(msg protocol.Message) error {
	err := s.ctrl.Send(msg)
	if errors.Is(err, transport.ErrQueueFull) {
		s.opts.Metrics.RecordOutboundDrop(msg.Type().String())
		return nil
	}
	return err
}

// Kick rejects the session with reason and closes it
func (s *Session) Kick(reason string) {
	s.rejectAndClose(protocol.RejectNone, reason, ErrKicked)
}

// Close closes the session. It is idempotent and safe from any goroutine.
func (s *Session) Close() {
	s.closeWith(ErrSessionClosed)
}

func (s *Session) closeWith(cause error) {
	s.closeOnce.Do(func() {
		if cause == nil {
			cause = ErrSessionClosed
		}

		s.mu.Lock()
		prev := s.state
		s.state = Closed
		s.closeErr = cause
		cs := s.crypt
		s.crypt = nil
		addr := s.udpAddr
		rejecting := s.rejecting
		s.mu.Unlock()

		if cs != nil {
			cs.Zero()
		}
		s.opts.Registry.remove(s, addr)
		if !rejecting {
			s.ctrl.Close()
		}
		if prev >= CryptoPending {
			s.opts.Handler.SessionClosed(s)
		}
		s.opts.Metrics.RecordSessionClosed(time.Since(s.connected), prev == Synced)
		s.opts.Observer.SessionClosed(s, cause)
		close(s.done)

		if errors.Is(cause, io.EOF) || errors.Is(cause, ErrSessionClosed) || errors.Is(cause, context.Canceled) {
			s.log.Info("Session closed", zap.Stringer("state", prev))
		} else {
			s.log.Info("Session closed", zap.Stringer("state", prev), zap.Error(cause))
		}
	})
}

// Done is closed once the session has closed
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session closed, or nil while it is open
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Closed {
		s.state = state
	}
}

// ID returns the server assigned session id
func (s *Session) ID() uint32 { return s.id }

// Logger returns the session scoped logger
func (s *Session) Logger() *zap.Logger { return s.log }

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the authenticated name
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// UserID returns the registered user id, or -1
func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// IsRegistered reports whether the user authenticated as a registered user
func (s *Session) IsRegistered() bool { return s.UserID() >= 0 }

// IsSuperUser reports whether the session is the SuperUser account
func (s *Session) IsSuperUser() bool { return s.UserID() == 0 }

// CertHash returns the SHA-1 hash of the client certificate, or ""
func (s *Session) CertHash() string { return s.certHash }

// Host returns the IP of the control connection
func (s *Session) Host() netip.Addr { return s.host }

// RemoteAddr returns the control connection peer address
func (s *Session) RemoteAddr() net.Addr { return s.ctrl.RemoteAddr() }

// ConnectedAt returns when the session was accepted
func (s *Session) ConnectedAt() time.Time { return s.connected }

// LastActive returns when the last control message arrived
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Tokens returns the access tokens
func (s *Session) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

func (s *Session) setTokens(tokens []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append([]string(nil), tokens...)
}

// Client returns what the client reported about itself
func (s *Session) Client() ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.client
	c.CeltVersion = append([]int32(nil), c.CeltVersion...)
	return c
}

// UDPAddr returns the pinned UDP address, if any
func (s *Session) UDPAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// UDPActive reports whether voice currently goes over UDP
func (s *Session) UDPActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpActive
}

// PacketCounts returns how many voice packets arrived over UDP and TCP
func (s *Session) PacketCounts() (udp, tcp uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpPackets, s.tcpPackets
}

// RemoteStats returns the counters last reported by the client
func (s *Session) RemoteStats() RemoteStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// CryptStats returns the server side decrypt counters
func (s *Session) CryptStats() crypto.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crypt == nil {
		return crypto.Stats{}
	}
	stats := s.crypt.Stats()
	stats.Resync += s.resyncs
	return stats
}

// ControlStats returns the control channel counters
func (s *Session) ControlStats() transport.Stats { return s.ctrl.Stats() }

// User returns a copy of the user state
func (s *Session) User() UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user
	u.Texture = append([]byte(nil), u.Texture...)
	u.PluginContext = append([]byte(nil), u.PluginContext...)
	return u
}

// UpdateUser applies fn to the user state under the session lock
func (s *Session) UpdateUser(fn func(*UserInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.user)
}

// VoiceTarget returns the whisper target registered under id
func (s *Session) VoiceTarget(id uint32) (VoiceTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	return t, ok
}

func canonical(a netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(a.Addr().Unmap(), a.Port())
}
