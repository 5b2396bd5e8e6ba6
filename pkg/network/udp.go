package network

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/metrics"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
)

// maxReadSize leaves room to detect oversized datagrams
const maxReadSize = 2048

// PingInfo supplies the figures returned to legacy server list pings
type PingInfo func() (users, maxUsers, maxBandwidth uint32)

// UDPChannel is the server's UDP socket. It routes datagrams to sessions by
// source address, learns addresses by trial decryption and answers legacy
// pings. It implements session.DatagramWriter.
type UDPChannel struct {
	conn     *net.UDPConn
	registry *session.Registry
	version  protocol.ProtocolVersion
	ping     PingInfo
	maxSize  int
	metrics  *metrics.Metrics
	log      *zap.Logger

	closeOnce sync.Once
}

var _ session.DatagramWriter = (*UDPChannel)(nil)

// UDPConfig configures a UDPChannel
type UDPConfig struct {
	Version         protocol.ProtocolVersion
	MaxDatagramSize int
	Ping            PingInfo
	Metrics         *metrics.Metrics
}

// ListenUDP binds the UDP socket
func ListenUDP(addr string, registry *session.Registry, cfg UDPConfig, log *zap.Logger) (*UDPChannel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return NewUDPChannel(conn, registry, cfg, log), nil
}

// NewUDPChannel wraps an already bound socket
func NewUDPChannel(conn *net.UDPConn, registry *session.Registry, cfg UDPConfig, log *zap.Logger) *UDPChannel {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = session.DefaultMaxDatagramSize
	}
	if cfg.Ping == nil {
		cfg.Ping = func() (uint32, uint32, uint32) { return uint32(registry.Len()), 0, 0 }
	}
	return &UDPChannel{
		conn:     conn,
		registry: registry,
		version:  cfg.Version,
		ping:     cfg.Ping,
		maxSize:  cfg.MaxDatagramSize,
		metrics:  cfg.Metrics,
		log:      log.Named("udp"),
	}
}

// Addr returns the bound address
func (u *UDPChannel) Addr() netip.AddrPort {
	return u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// WriteDatagram sends one encrypted datagram
func (u *UDPChannel) WriteDatagram(packet []byte, to netip.AddrPort) error {
	_, err := u.conn.WriteToUDPAddrPort(packet, to)
	return err
}

// Serve reads datagrams until ctx is done or the socket is closed
func (u *UDPChannel) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		u.Close()
	}()

	buf := make([]byte, maxReadSize)
	for {
		n, from, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		u.OnDatagram(from, buf[:n])
	}
}

// OnDatagram handles one received datagram. The packet is not retained.
func (u *UDPChannel) OnDatagram(from netip.AddrPort, packet []byte) {
	u.metrics.RecordUDPIn()

	if protocol.IsLegacyPing(packet) {
		users, maxUsers, bandwidth := u.ping()
		reply := protocol.LegacyPingReply(packet, u.version, users, maxUsers, bandwidth)
		if err := u.WriteDatagram(reply, from); err != nil {
			u.log.Debug("Failed to answer ping", zap.Stringer("from", from), zap.Error(err))
			return
		}
		u.metrics.RecordLegacyPing()
		return
	}
	if len(packet) > u.maxSize {
		u.metrics.RecordUDPDrop("oversized")
		return
	}

	if s, ok := u.registry.ByAddr(from); ok {
		s.HandleDatagram(packet)
		return
	}
	for _, s := range u.registry.Candidates(from.Addr()) {
		if s.MatchDatagram(from, packet) {
			return
		}
	}
	u.metrics.RecordUDPDrop("unknown_peer")
}

// Close closes the socket
func (u *UDPChannel) Close() error {
	var err error
	u.closeOnce.Do(func() { err = u.conn.Close() })
	return err
}
