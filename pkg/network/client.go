package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
)

// ClientConfig configures a Client
type ClientConfig struct {
	Username string
	Password string
	Tokens   []string
	// TLS for the control connection; nil skips certificate verification
	TLS        *tls.Config
	CryptoMode crypto.Mode
	Version    protocol.ProtocolVersion
	// Time allowed from dial to ServerSync
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// RejectedError is returned by Dial when the server refuses the client
type RejectedError struct {
	Reason protocol.RejectType
	Text   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected: %s: %s", e.Reason, e.Text)
}

// Client is a minimal voice client: it completes the handshake, follows
// crypto resyncs and sends and receives voice over UDP or the tunnel
type Client struct {
	cfg  ClientConfig
	conn *tls.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	crypt      *crypto.CryptState
	udp        *net.UDPConn
	session    uint32
	serverSync *protocol.ServerSync

	messages chan protocol.Message
	voice    chan protocol.UDPMessage
	done     chan struct{}
	closeErr error
	once     sync.Once
}

// Dial connects to addr, authenticates and waits for ServerSync
func Dial(ctx context.Context, addr string, cfg ClientConfig) (*Client, error) {
	if cfg.TLS == nil {
		cfg.TLS = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.CryptoMode == "" {
		cfg.CryptoMode = crypto.ModeOCB2AES128
	}
	if cfg.Version == 0 {
		cfg.Version = protocol.NewProtocolVersion(1, 5, 0)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dialer := &tls.Dialer{Config: cfg.TLS}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c := &Client{
		cfg:      cfg,
		conn:     raw.(*tls.Conn),
		log:      cfg.Logger.Named("client"),
		messages: make(chan protocol.Message, 256),
		voice:    make(chan protocol.UDPMessage, 256),
		done:     make(chan struct{}),
	}

	if err := c.handshake(); err != nil {
		c.conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake() error {
	c.conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.Send(protocol.NewVersionMessage(c.cfg.Version, "zentalk-voice", "Go", "")); err != nil {
		return err
	}
	if err := c.Send(&protocol.Authenticate{
		Username: protocol.String(c.cfg.Username),
		Password: protocol.String(c.cfg.Password),
		Tokens:   c.cfg.Tokens,
		Opus:     protocol.Bool(true),
	}); err != nil {
		return err
	}

	for {
		msg, err := protocol.ReadMessage(c.conn, 0)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		switch m := msg.(type) {
		case *protocol.Reject:
			reason := protocol.RejectNone
			if m.RejectType != nil {
				reason = *m.RejectType
			}
			return &RejectedError{Reason: reason, Text: protocol.GetString(m.Reason)}
		case *protocol.CryptSetup:
			if err := c.handleCryptSetup(m); err != nil {
				return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
			}
		case *protocol.ServerSync:
			c.mu.Lock()
			if c.crypt == nil {
				c.mu.Unlock()
				return fmt.Errorf("%w: ServerSync before CryptSetup", ErrHandshakeFailed)
			}
			c.session = protocol.GetUint32(m.Session)
			c.serverSync = m
			c.mu.Unlock()
			return nil
		default:
			c.deliver(msg)
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.messages)
	for {
		msg, err := protocol.ReadMessage(c.conn, 0)
		if err != nil {
			c.shutdown(err)
			return
		}
		switch m := msg.(type) {
		case *protocol.CryptSetup:
			if err := c.handleCryptSetup(m); err != nil {
				c.log.Warn("Ignoring crypt setup", zap.Error(err))
			}
			continue
		case *protocol.UDPTunnel:
			if v, err := protocol.DecodeUDP(m.Packet); err == nil {
				c.deliverVoice(v)
			}
			continue
		}
		c.deliver(msg)
	}
}

func (c *Client) deliver(msg protocol.Message) {
	select {
	case c.messages <- msg:
	default:
		c.log.Debug("Dropping message, reader too slow", zap.Stringer("type", msg.Type()))
	}
}

func (c *Client) deliverVoice(msg protocol.UDPMessage) {
	select {
	case c.voice <- msg:
	default:
	}
}

// handleCryptSetup follows a full key, a server nonce resync, or answers a
// nonce request with the client nonce
func (c *Client) handleCryptSetup(m *protocol.CryptSetup) error {
	c.mu.Lock()
	switch {
	case len(m.Key) > 0:
		cs, err := crypto.SetKey(c.cfg.CryptoMode, crypto.DefaultWindowConfig(), m.Key, m.ClientNonce, m.ServerNonce)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.crypt = cs
		c.mu.Unlock()
		return nil
	case len(m.ServerNonce) > 0 && c.crypt != nil:
		next, err := c.crypt.WithDecryptIV(m.ServerNonce)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.crypt = next
		c.mu.Unlock()
		return nil
	case c.crypt != nil:
		reply := &protocol.CryptSetup{ClientNonce: c.crypt.EncryptIV()}
		c.mu.Unlock()
		return c.Send(reply)
	}
	c.mu.Unlock()
	return nil
}

// Session returns the session id assigned by the server
func (c *Client) Session() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ServerSync returns the ServerSync that completed the handshake
func (c *Client) ServerSync() *protocol.ServerSync {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverSync
}

// Messages delivers control messages received after the handshake. It is
// closed when the connection ends.
func (c *Client) Messages() <-chan protocol.Message { return c.messages }

// Voice delivers voice-path messages from UDP and the tunnel
func (c *Client) Voice() <-chan protocol.UDPMessage { return c.voice }

// Send writes a control message
func (c *Client) Send(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteMessage(c.conn, msg)
}

// Ping sends a control channel ping with the current UDP receive counters
func (c *Client) Ping() error {
	c.mu.Lock()
	var stats crypto.Stats
	if c.crypt != nil {
		stats = c.crypt.Stats()
	}
	c.mu.Unlock()
	return c.Send(&protocol.Ping{
		Timestamp: protocol.Uint64(uint64(time.Now().UnixMilli())),
		Good:      protocol.Uint32(stats.Good),
		Late:      protocol.Uint32(stats.Late),
		Lost:      protocol.Uint32(stats.Lost),
		Resync:    protocol.Uint32(stats.Resync),
	})
}

// ConnectUDP opens the voice socket towards addr and starts receiving
func (c *Client) ConnectUDP(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.udp = conn
	c.mu.Unlock()
	go c.udpLoop(conn)
	return nil
}

func (c *Client) udpLoop(conn *net.UDPConn) {
	buf := make([]byte, maxReadSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-c.done:
				return
			default:
				continue
			}
		}
		c.mu.Lock()
		if c.crypt == nil {
			c.mu.Unlock()
			continue
		}
		plain, err := c.crypt.Decrypt(nil, buf[:n])
		c.mu.Unlock()
		if err != nil {
			c.log.Debug("Dropping undecryptable datagram", zap.Error(err))
			continue
		}
		if msg, err := protocol.DecodeUDP(plain); err == nil {
			c.deliverVoice(msg)
		}
	}
}

// SendUDP encrypts msg and sends it over UDP
func (c *Client) SendUDP(msg protocol.UDPMessage) error {
	plain := protocol.EncodeUDP(msg)
	c.mu.Lock()
	if c.crypt == nil || c.udp == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if len(plain)+c.crypt.Overhead() > session.DefaultMaxDatagramSize {
		c.mu.Unlock()
		return ErrDatagramTooLarge
	}
	packet := c.crypt.Encrypt(nil, plain)
	conn := c.udp
	c.mu.Unlock()

	_, err := conn.Write(packet)
	return err
}

// SendTunnel sends msg over the control channel
func (c *Client) SendTunnel(msg protocol.UDPMessage) error {
	return c.Send(&protocol.UDPTunnel{Packet: protocol.EncodeUDP(msg)})
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

func (c *Client) shutdown(cause error) {
	c.once.Do(func() {
		c.closeErr = cause
		close(c.done)
		c.conn.Close()
		c.mu.Lock()
		if c.udp != nil {
			c.udp.Close()
		}
		c.mu.Unlock()
	})
}

// Close disconnects
func (c *Client) Close() error {
	c.shutdown(ErrNotConnected)
	return nil
}
