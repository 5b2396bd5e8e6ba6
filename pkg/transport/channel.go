package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

// Config bounds the control channel
type Config struct {
	// Droppable messages are refused once this many frames are pending
	SoftLimit int
	// Any message past this many pending frames closes the channel
	HardLimit int
	// Largest accepted inbound payload
	MaxMessageSize uint32
	// Read deadline per inbound frame; zero disables it
	IdleTimeout time.Duration
	// Deadline for each write batch and for the final flush of SendAndClose
	WriteTimeout time.Duration
	// Called for each dropped outbound message
	OnDrop func(protocol.MessageType)
}

// DefaultConfig returns the server defaults
func DefaultConfig() Config {
	return Config{
		SoftLimit:      256,
		HardLimit:      2048,
		MaxMessageSize: protocol.DefaultMaxMessageSize,
		IdleTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Droppable reports whether t may be discarded under backpressure
func Droppable(t protocol.MessageType) bool {
	switch t {
	case protocol.MessageTypeUDPTunnel, protocol.MessageTypeUserStats, protocol.MessageTypePing:
		return true
	}
	return false
}

// Stats are the channel counters
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	BytesIn   uint64
	BytesOut  uint64
	Dropped   uint64
	Pending   int
}

// ControlChannel carries framed messages over a reliable stream. Outbound
// frames go through a bounded queue drained by a writer goroutine; inbound
// frames are delivered by Serve in receipt order.
type ControlChannel struct {
	conn net.Conn
	cfg  Config
	log  *zap.Logger

	mu      sync.Mutex
	queue   [][]byte
	closing bool

	wake chan struct{}
	done chan struct{}

	closeOnce sync.Once
	closeErr  error

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
	dropped   atomic.Uint64
}

// NewControlChannel wraps conn and starts the writer goroutine
func NewControlChannel(conn net.Conn, cfg Config, log *zap.Logger) *ControlChannel {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.SoftLimit <= 0 {
		cfg.SoftLimit = def.SoftLimit
	}
	if cfg.HardLimit < cfg.SoftLimit {
		cfg.HardLimit = cfg.SoftLimit
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	c := &ControlChannel{
		conn: conn,
		cfg:  cfg,
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// RemoteAddr returns the peer address
func (c *ControlChannel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Conn returns the wrapped connection
func (c *ControlChannel) Conn() net.Conn { return c.conn }

// Send queues msg. The frame is encoded before the queue is touched, so it is
// either queued whole or not at all.
func (c *ControlChannel) Send(msg protocol.Message) error {
	frame, err := protocol.EncodeFrame(msg)
	if err != nil {
		return err
	}
	return c.enqueue(msg.Type(), frame, false)
}

// SendAndClose queues a final message and closes the channel once it has
// been flushed or WriteTimeout elapsed. Later sends fail with ErrClosed.
func (c *ControlChannel) SendAndClose(msg protocol.Message) error {
	frame, err := protocol.EncodeFrame(msg)
	if err != nil {
		c.Close()
		return err
	}
	if err := c.enqueue(msg.Type(), frame, true); err != nil {
		return err
	}

	timeout := c.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().WriteTimeout
	}
	timer := time.AfterFunc(timeout, func() { c.shutdown(ErrClosed) })
	go func() {
		<-c.done
		timer.Stop()
	}()
	return nil
}

func (c *ControlChannel) enqueue(t protocol.MessageType, frame []byte, final bool) error {
	c.mu.Lock()
	if c.closing || c.isClosed() {
		c.mu.Unlock()
		return ErrClosed
	}

	pending := len(c.queue)
	if pending >= c.cfg.SoftLimit && Droppable(t) {
		c.mu.Unlock()
		c.dropped.Add(1)
		if c.cfg.OnDrop != nil {
			c.cfg.OnDrop(t)
		}
		return ErrQueueFull
	}
	if pending >= c.cfg.HardLimit {
		c.mu.Unlock()
		c.log.Warn("Outbound queue exceeded hard limit",
			zap.Int("pending", pending),
			zap.Stringer("type", t))
		c.shutdown(ErrPeerUnresponsive)
		return ErrPeerUnresponsive
	}

	c.queue = append(c.queue, frame)
	if final {
		c.closing = true
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// take hands the pending frames to the writer. final is set once a
// SendAndClose frame has been taken and nothing else is pending.
func (c *ControlChannel) take() (batch [][]byte, final bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch = c.queue
	c.queue = nil
	return batch, c.closing && len(batch) == 0
}

func (c *ControlChannel) writeLoop() {
	w := bufio.NewWriterSize(c.conn, 16*1024)
	for {
		batch, final := c.take()
		if len(batch) == 0 {
			if final {
				c.shutdown(ErrClosed)
				return
			}
			select {
			case <-c.wake:
				continue
			case <-c.done:
				return
			}
		}

		if c.cfg.WriteTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		}
		for _, frame := range batch {
			if _, err := w.Write(frame); err != nil {
				c.shutdown(&TransportError{Op: "write", Err: err})
				return
			}
			c.framesOut.Add(1)
			c.bytesOut.Add(uint64(len(frame)))
		}
		if err := w.Flush(); err != nil {
			c.shutdown(&TransportError{Op: "flush", Err: err})
			return
		}
	}
}

// Serve reads frames until the channel fails or ctx is cancelled, calling
// onMessage for each decoded message. Unknown message types are skipped. An
// error from onMessage stops Serve and is returned as is.
func (c *ControlChannel) Serve(ctx context.Context, onMessage func(protocol.Message) error) error {
	stop := context.AfterFunc(ctx, func() { c.shutdown(ctx.Err()) })
	defer stop()

	r := &countingReader{r: bufio.NewReader(c.conn), n: &c.bytesIn}
	for {
		if c.cfg.IdleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}

		msg, err := protocol.ReadMessage(r, c.cfg.MaxMessageSize)
		if err != nil {
			if protocol.IsUnknownType(err) {
				c.framesIn.Add(1)
				c.log.Debug("Skipping unknown message type", zap.Error(err))
				continue
			}
			var fe *protocol.FramingError
			if errors.As(err, &fe) {
				c.shutdown(err)
				return err
			}
			if c.isClosed() {
				return c.Err()
			}
			te := &TransportError{Op: "read", Err: err}
			c.shutdown(te)
			return te
		}

		c.framesIn.Add(1)
		if err := onMessage(msg); err != nil {
			return err
		}
	}
}

// Close closes the channel. It is idempotent and safe from any goroutine.
func (c *ControlChannel) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *ControlChannel) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = cause
		c.closing = true
		c.queue = nil
		c.mu.Unlock()

		close(c.done)
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.log.Debug("Close error", zap.Error(err))
		}
	})
}

// Done is closed once the channel has shut down
func (c *ControlChannel) Done() <-chan struct{} { return c.done }

// Err returns why the channel closed, or nil while it is open
func (c *ControlChannel) Err() error {
	if !c.isClosed() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *ControlChannel) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the counters
func (c *ControlChannel) Stats() Stats {
	c.mu.Lock()
	pending := len(c.queue)
	c.mu.Unlock()
	return Stats{
		FramesIn:  c.framesIn.Load(),
		FramesOut: c.framesOut.Load(),
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
		Dropped:   c.dropped.Load(),
		Pending:   pending,
	}
}

type countingReader struct {
	r io.Reader
	n *atomic.Uint64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n.Add(uint64(n))
	return n, err
}
