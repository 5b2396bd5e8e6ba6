package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZentaChain/zentalk-voice/pkg/metrics"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
	"github.com/ZentaChain/zentalk-voice/pkg/storage"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

// DefaultTLSHandshakeTimeout bounds the TLS handshake of new connections
const DefaultTLSHandshakeTimeout = 10 * time.Second

// Options configure a Server
type Options struct {
	// Addr is the TCP and UDP listen address
	Addr string
	// TLS must carry the server certificate. Client certificates are
	// requested but not verified.
	TLS *tls.Config

	TLSHandshakeTimeout time.Duration

	Session   session.Config
	Transport transport.Config
	Auth      AuthConfig
	Roster    RosterConfig

	Store   *storage.DB
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Stats are server-wide counters
type Stats struct {
	Online       int
	Synced       int
	Peak         int
	Total        uint64
	StartedAt    time.Time
	Accepting    bool
	TCPAddr      string
	UDPAddr      string
	MaxUsers     int
	MaxBandwidth uint32
}

// Server accepts TLS control connections and owns the UDP socket. All
// server state lives on the Server; several may run in one process.
type Server struct {
	opts     Options
	log      *zap.Logger
	registry *session.Registry
	auth     *Authenticator
	roster   *Roster
	router   *Router
	sessOpts *session.Options

	listener net.Listener
	udp      *UDPChannel

	accepting atomic.Bool
	total     atomic.Uint64
	started   time.Time

	mu   sync.Mutex
	peak int

	wg sync.WaitGroup
}

var _ session.Observer = (*Server)(nil)

// NewServer wires the session collaborators. Call Listen then Run.
func NewServer(opts Options) (*Server, error) {
	if opts.TLS == nil || len(opts.TLS.Certificates) == 0 {
		return nil, errors.New("network: TLS certificate is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TLSHandshakeTimeout <= 0 {
		opts.TLSHandshakeTimeout = DefaultTLSHandshakeTimeout
	}

	tlsCfg := opts.TLS.Clone()
	tlsCfg.ClientAuth = tls.RequestClientCert
	if tlsCfg.MinVersion == 0 {
		tlsCfg.MinVersion = tls.VersionTLS12
	}
	opts.TLS = tlsCfg

	log := opts.Logger.Named("server")
	registry := session.NewRegistry()
	s := &Server{
		opts:     opts,
		log:      log,
		registry: registry,
		auth:     NewAuthenticator(opts.Auth, opts.Store, registry, opts.Logger),
		roster:   NewRoster(opts.Roster, registry, opts.Store, opts.Logger),
		router:   NewRouter(registry, opts.Logger),
		started:  time.Now(),
	}
	s.auth.accepting = s.accepting.Load
	s.accepting.Store(true)

	s.sessOpts = &session.Options{
		Config:        opts.Session,
		Registry:      registry,
		Authenticator: s.auth,
		Handler:       s.roster,
		Audio:         s.router,
		Observer:      s,
		Metrics:       opts.Metrics,
		Logger:        opts.Logger.Named("session"),
	}
	return s, nil
}

// Listen binds the TCP listener and the UDP socket on the same port
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	tcpAddr := ln.Addr().(*net.TCPAddr)

	udpAddr := &net.UDPAddr{IP: tcpAddr.IP, Port: tcpAddr.Port, Zone: tcpAddr.Zone}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to listen on udp %s: %w", udpAddr, err)
	}

	s.listener = ln
	s.udp = NewUDPChannel(conn, s.registry, UDPConfig{
		Version:         s.opts.Session.Version,
		MaxDatagramSize: s.opts.Session.MaxDatagramSize,
		Ping:            s.pingInfo,
		Metrics:         s.opts.Metrics,
	}, s.opts.Logger)
	s.sessOpts.UDP = s.udp

	s.log.Info("Voice server listening",
		zap.String("tcp", ln.Addr().String()),
		zap.Stringer("udp", s.udp.Addr()),
		zap.Int("max_users", s.opts.Auth.MaxUsers))
	return nil
}

// Run serves until ctx is cancelled, then closes every session
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ctx) })
	g.Go(func() error { return s.udp.Serve(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		s.accepting.Store(false)
		s.listener.Close()
		s.udp.Close()
		return nil
	})

	err := g.Wait()
	for _, sess := range s.registry.Sessions() {
		sess.Close()
	}
	s.wg.Wait()
	s.log.Info("Voice server stopped", zap.Uint64("sessions_served", s.total.Load()))
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.log.Warn("Accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	tc := tls.Server(conn, s.opts.TLS)
	hsCtx, cancel := context.WithTimeout(ctx, s.opts.TLSHandshakeTimeout)
	err := tc.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		s.log.Debug("TLS handshake failed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		conn.Close()
		return
	}

	ctrl := transport.NewControlChannel(tc, s.opts.Transport, s.opts.Logger)
	sess := session.New(ctrl, s.sessOpts)
	if err := sess.Run(ctx); err != nil && !errors.Is(err, session.ErrSessionClosed) {
		sess.Logger().Debug("Session ended", zap.Error(err))
	}
}

// SessionCreated implements session.Observer
func (s *Server) SessionCreated(sess *session.Session) {
	s.total.Add(1)
	sess.Logger().Info("Client connected")
}

// SessionAuthenticated implements session.Observer
func (s *Server) SessionAuthenticated(sess *session.Session) {
	n := len(s.registry.Synced()) + 1
	s.mu.Lock()
	if n > s.peak {
		s.peak = n
	}
	s.mu.Unlock()
	sess.Logger().Info("Client authenticated",
		zap.String("username", sess.Username()),
		zap.Int64("user_id", sess.UserID()))
}

// SessionClosed implements session.Observer
func (s *Server) SessionClosed(sess *session.Session, cause error) {
	sess.Logger().Info("Client disconnected",
		zap.String("username", sess.Username()),
		zap.Duration("online", time.Since(sess.ConnectedAt())),
		zap.NamedError("cause", cause))
}

func (s *Server) pingInfo() (users, maxUsers, maxBandwidth uint32) {
	return uint32(len(s.registry.Synced())), uint32(s.opts.Auth.MaxUsers), s.opts.Roster.MaxBandwidth
}

// Registry returns the live sessions
func (s *Server) Registry() *session.Registry { return s.registry }

// Store returns the user and ban store, or nil
func (s *Server) Store() *storage.DB { return s.opts.Store }

// Roster returns the server state handler
func (s *Server) Roster() *Roster { return s.roster }

// Addr returns the TCP listen address
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// UDPAddr returns the UDP listen address
func (s *Server) UDPAddr() netip.AddrPort {
	if s.udp == nil {
		return netip.AddrPort{}
	}
	return s.udp.Addr()
}

// SetAccepting toggles whether new clients may authenticate
func (s *Server) SetAccepting(v bool) { s.accepting.Store(v) }

// Kick disconnects a session with reason
func (s *Server) Kick(id uint32, reason string) bool {
	sess, ok := s.registry.Get(id)
	if !ok {
		return false
	}
	sess.Kick(reason)
	return true
}

// Stats returns a snapshot of the server counters
func (s *Server) Stats() Stats {
	s.mu.Lock()
	peak := s.peak
	s.mu.Unlock()

	st := Stats{
		Online:       s.registry.Len(),
		Synced:       len(s.registry.Synced()),
		Peak:         peak,
		Total:        s.total.Load(),
		StartedAt:    s.started,
		Accepting:    s.accepting.Load(),
		MaxUsers:     s.opts.Auth.MaxUsers,
		MaxBandwidth: s.opts.Roster.MaxBandwidth,
	}
	if addr := s.Addr(); addr != nil {
		st.TCPAddr = addr.String()
	}
	if addr := s.UDPAddr(); addr.IsValid() {
		st.UDPAddr = addr.String()
	}
	return st
}
