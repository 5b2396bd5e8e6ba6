package network

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-voice/pkg/metrics"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
)

func startUDP(t *testing.T, cfg UDPConfig) (*UDPChannel, *net.UDPConn) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	u := NewUDPChannel(conn, session.NewRegistry(), cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(u.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return u, client
}

func TestLegacyPing(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	_, client := startUDP(t, UDPConfig{
		Version: protocol.NewProtocolVersion(1, 5, 0),
		Ping:    func() (uint32, uint32, uint32) { return 3, 50, 72000 },
		Metrics: m,
	})

	ping := make([]byte, protocol.LegacyPingSize)
	copy(ping[4:], "identity")
	_, err = client.Write(ping)
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply := make([]byte, 64)
	n, err := client.Read(reply)
	require.NoError(t, err)
	require.Equal(t, protocol.LegacyPingReplySize, n)

	assert.Equal(t, protocol.NewProtocolVersion(1, 5, 0).V1(), binary.BigEndian.Uint32(reply[0:4]))
	assert.Equal(t, []byte("identity"), reply[4:12])
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(reply[12:16]))
	assert.Equal(t, uint32(50), binary.BigEndian.Uint32(reply[16:20]))
	assert.Equal(t, uint32(72000), binary.BigEndian.Uint32(reply[20:24]))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LegacyPings))
}

func TestUnknownPeerDropped(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	u, _ := startUDP(t, UDPConfig{Metrics: m, MaxDatagramSize: 64})

	from := u.Addr()
	u.OnDatagram(from, make([]byte, 40))
	u.OnDatagram(from, make([]byte, 100))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UDPPacketsIn))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UDPPacketsDropped.WithLabelValues("unknown_peer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UDPPacketsDropped.WithLabelValues("oversized")))
}
