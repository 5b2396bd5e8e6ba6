package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair returns a server and client context wired to each other
func pair(t *testing.T, mode Mode, cfg WindowConfig) (server, client *CryptState) {
	t.Helper()
	size, err := mode.KeySize()
	require.NoError(t, err)

	key := sequentialBytes(size)
	serverIV := bytes.Repeat([]byte{0xa0}, IVSize)
	clientIV := bytes.Repeat([]byte{0x0b}, IVSize)

	server, err = SetKey(mode, cfg, key, serverIV, clientIV)
	require.NoError(t, err)
	client, err = SetKey(mode, cfg, key, clientIV, serverIV)
	require.NoError(t, err)
	return server, client
}

var modes = []Mode{ModeOCB2AES128, ModeChaCha20Poly1305}

func TestCryptStateRoundTrip(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			server, client := pair(t, mode, DefaultWindowConfig())

			for i := 0; i < 300; i++ {
				plain := []byte(fmt.Sprintf("frame %d", i))
				packet := client.Encrypt(nil, plain)
				require.Len(t, packet, len(plain)+client.Overhead())

				out, err := server.Decrypt(nil, packet)
				require.NoError(t, err, "packet %d", i)
				assert.Equal(t, plain, out)
			}

			stats := server.Stats()
			assert.Equal(t, uint32(300), stats.Good)
			assert.Zero(t, stats.Late)
			assert.Zero(t, stats.Lost)
			assert.Equal(t, client.EncryptIV(), server.DecryptIV())

			reply := server.Encrypt(nil, []byte("pong"))
			out, err := client.Decrypt(nil, reply)
			require.NoError(t, err)
			assert.Equal(t, []byte("pong"), out)
		})
	}
}

func TestCryptStateAppendsToDst(t *testing.T) {
	server, client := pair(t, ModeOCB2AES128, DefaultWindowConfig())
	packet := client.Encrypt([]byte{0xff}, []byte("x"))
	require.Equal(t, byte(0xff), packet[0])

	out, err := server.Decrypt([]byte("p:"), packet[1:])
	require.NoError(t, err)
	assert.Equal(t, []byte("p:x"), out)
}

func TestCryptStateTamper(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			server, client := pair(t, mode, DefaultWindowConfig())

			packet := client.Encrypt(nil, []byte("hello"))
			packet[len(packet)-1] ^= 0x80

			_, err := server.Decrypt(nil, packet)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMacMismatch)

			var de *DecryptError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, MacMismatch, de.Kind)
			assert.False(t, NeedsResync(err))
			assert.Equal(t, uint32(1), server.Stats().MacMismatch)
			assert.Zero(t, server.Stats().Good)

			// a forged packet must not consume its sequence number
			packet[len(packet)-1] ^= 0x80
			_, err = server.Decrypt(nil, packet)
			assert.NoError(t, err)
		})
	}
}

func TestCryptStateShortPacket(t *testing.T) {
	server, _ := pair(t, ModeChaCha20Poly1305, DefaultWindowConfig())
	_, err := server.Decrypt(nil, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMacMismatch)
	assert.ErrorIs(t, err, ErrPacketTooShort)
}

func TestCryptStateReplay(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			server, client := pair(t, mode, DefaultWindowConfig())

			packet := client.Encrypt(nil, []byte("once"))
			_, err := server.Decrypt(nil, packet)
			require.NoError(t, err)

			_, err = server.Decrypt(nil, packet)
			assert.ErrorIs(t, err, ErrReplayed)
			assert.Equal(t, uint32(1), server.Stats().Replayed)
			assert.Equal(t, uint32(1), server.Stats().Good)
		})
	}
}

func TestCryptStateOutOfOrder(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			server, client := pair(t, mode, DefaultWindowConfig())

			p1 := client.Encrypt(nil, []byte("1"))
			p2 := client.Encrypt(nil, []byte("2"))
			p3 := client.Encrypt(nil, []byte("3"))

			_, err := server.Decrypt(nil, p3)
			require.NoError(t, err)
			assert.Equal(t, uint32(2), server.Stats().Lost)

			_, err = server.Decrypt(nil, p1)
			require.NoError(t, err)
			_, err = server.Decrypt(nil, p2)
			require.NoError(t, err)

			stats := server.Stats()
			assert.Equal(t, uint32(3), stats.Good)
			assert.Equal(t, uint32(2), stats.Late)
			assert.Zero(t, stats.Lost)

			_, err = server.Decrypt(nil, p1)
			assert.ErrorIs(t, err, ErrReplayed)
		})
	}
}

func TestCryptStateReorderAcrossWindow(t *testing.T) {
	n := DefaultReplayWindow - 1
	orders := map[string]func([][]byte){
		"reverse": func(p [][]byte) {
			for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
				p[i], p[j] = p[j], p[i]
			}
		},
		"shuffled": func(p [][]byte) {
			rng := rand.New(rand.NewSource(7))
			rng.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })
		},
	}

	for name, reorder := range orders {
		t.Run(name, func(t *testing.T) {
			server, client := pair(t, ModeChaCha20Poly1305, DefaultWindowConfig())

			packets := make([][]byte, n)
			for i := range packets {
				packets[i] = client.Encrypt(nil, []byte(fmt.Sprintf("frame %d", i)))
			}
			reorder(packets)

			failures := 0
			for _, p := range packets {
				if _, err := server.Decrypt(nil, p); err != nil {
					failures++
				}
			}
			assert.Zero(t, failures)

			stats := server.Stats()
			assert.Equal(t, uint32(n), stats.Good)
			assert.Zero(t, stats.TooFarAhead)
			assert.Zero(t, stats.Lost)

			for _, p := range packets[:10] {
				_, err := server.Decrypt(nil, p)
				assert.ErrorIs(t, err, ErrReplayed)
			}
		})
	}
}

func TestSetKeyRaisesForwardGapToWindow(t *testing.T) {
	cfg := DefaultWindowConfig()
	cfg.MaxForwardGap = 16
	server, _ := pair(t, ModeChaCha20Poly1305, cfg)
	assert.Equal(t, server.window.Size(), server.cfg.MaxForwardGap)
}

func TestCryptStateOCB2CounterWrap(t *testing.T) {
	server, client := pair(t, ModeOCB2AES128, DefaultWindowConfig())

	var packets [][]byte
	for i := 0; i < 600; i++ {
		packets = append(packets, client.Encrypt(nil, []byte{byte(i)}))
	}

	// deliver in small reversed batches straddling the low byte rollover
	for start := 0; start < len(packets); start += 10 {
		for i := start + 9; i >= start; i-- {
			out, err := server.Decrypt(nil, packets[i])
			require.NoError(t, err, "packet %d", i)
			assert.Equal(t, []byte{byte(i)}, out)
		}
	}
	assert.Equal(t, uint32(600), server.Stats().Good)
	assert.Equal(t, client.EncryptIV(), server.DecryptIV())
}

func TestCryptStateTooOld(t *testing.T) {
	server, client := pair(t, ModeChaCha20Poly1305, DefaultWindowConfig())

	old := client.Encrypt(nil, []byte("old"))
	for i := 0; i < DefaultReplayWindow+10; i++ {
		_, err := server.Decrypt(nil, client.Encrypt(nil, []byte("x")))
		require.NoError(t, err)
	}

	_, err := server.Decrypt(nil, old)
	assert.ErrorIs(t, err, ErrReplayed)
}

func TestCryptStateTooFarAhead(t *testing.T) {
	cfg := DefaultWindowConfig()
	server, client := pair(t, ModeChaCha20Poly1305, cfg)

	ahead := ivAdd(client.encryptIV, cfg.MaxForwardGap+10)
	client.encryptIV = ahead

	_, err := server.Decrypt(nil, client.Encrypt(nil, []byte("late joiner")))
	assert.ErrorIs(t, err, ErrTooFarAhead)
	assert.True(t, NeedsResync(err))
	assert.Equal(t, uint32(1), server.Stats().TooFarAhead)
	assert.Equal(t, uint64(0), server.window.Last())
}

func TestCryptStateDesyncedByGap(t *testing.T) {
	cfg := DefaultWindowConfig()
	server, client := pair(t, ModeChaCha20Poly1305, cfg)

	client.encryptIV = ivAdd(client.encryptIV, cfg.DesyncGap+1)

	_, err := server.Decrypt(nil, client.Encrypt(nil, []byte("lost")))
	assert.ErrorIs(t, err, ErrDesynced)
	assert.True(t, NeedsResync(err))
}

func TestCryptStateDesyncedByFailures(t *testing.T) {
	cfg := DefaultWindowConfig()
	cfg.DesyncAfter = 3
	server, client := pair(t, ModeOCB2AES128, cfg)

	bad := func() error {
		packet := client.Encrypt(nil, []byte("noise"))
		packet[2] ^= 0xff
		_, err := server.Decrypt(nil, packet)
		return err
	}

	assert.ErrorIs(t, bad(), ErrMacMismatch)
	assert.ErrorIs(t, bad(), ErrMacMismatch)

	err := bad()
	var de *DecryptError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, Desynced, de.Kind)
	assert.ErrorIs(t, err, ErrMacMismatch)
	assert.True(t, NeedsResync(err))

	_, err = server.Decrypt(nil, client.Encrypt(nil, []byte("good")))
	require.NoError(t, err)
	assert.ErrorIs(t, bad(), ErrMacMismatch)
}

func TestCryptStateTryDecrypt(t *testing.T) {
	server, client := pair(t, ModeOCB2AES128, DefaultWindowConfig())
	stranger, err := NewCryptState(ModeOCB2AES128, DefaultWindowConfig())
	require.NoError(t, err)

	foreign := stranger.Encrypt(nil, []byte("not for you"))
	for i := 0; i < 100; i++ {
		_, err = server.TryDecrypt(nil, foreign)
		require.Error(t, err)
	}
	assert.Equal(t, Stats{}, server.Stats())

	out, err := server.TryDecrypt(nil, client.Encrypt(nil, []byte("mine")))
	require.NoError(t, err)
	assert.Equal(t, []byte("mine"), out)
	assert.Equal(t, uint32(1), server.Stats().Good)
}

func TestCryptStateWithDecryptIV(t *testing.T) {
	server, client := pair(t, ModeOCB2AES128, DefaultWindowConfig())

	_, err := server.Decrypt(nil, client.Encrypt(nil, []byte("a")))
	require.NoError(t, err)

	// client restarts its encrypt direction
	restarted, err := SetKey(ModeOCB2AES128, DefaultWindowConfig(), client.Key(), bytes.Repeat([]byte{0x33}, IVSize), server.EncryptIV())
	require.NoError(t, err)
	packet := restarted.Encrypt(nil, []byte("b"))

	_, err = server.Decrypt(nil, packet)
	require.Error(t, err)

	resynced, err := server.WithDecryptIV(bytes.Repeat([]byte{0x33}, IVSize))
	require.NoError(t, err)

	out, err := resynced.Decrypt(nil, packet)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), out)

	assert.Equal(t, uint32(1), resynced.Stats().Resync)
	assert.Zero(t, server.Stats().Resync)
	assert.Equal(t, server.EncryptIV(), resynced.EncryptIV())

	_, err = server.WithDecryptIV([]byte{1})
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestSetKeyValidation(t *testing.T) {
	iv := make([]byte, IVSize)

	_, err := SetKey(ModeOCB2AES128, DefaultWindowConfig(), make([]byte, 10), iv, iv)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = SetKey(ModeChaCha20Poly1305, DefaultWindowConfig(), make([]byte, 16), iv, iv)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = SetKey(ModeOCB2AES128, DefaultWindowConfig(), make([]byte, 16), iv[:8], iv)
	assert.ErrorIs(t, err, ErrInvalidNonce)

	_, err = SetKey(Mode("ROT13"), DefaultWindowConfig(), make([]byte, 16), iv, iv)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestNewCryptStateRandom(t *testing.T) {
	a, err := NewCryptState(ModeChaCha20Poly1305, DefaultWindowConfig())
	require.NoError(t, err)
	b, err := NewCryptState(ModeChaCha20Poly1305, DefaultWindowConfig())
	require.NoError(t, err)

	assert.Len(t, a.Key(), 32)
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.EncryptIV(), a.DecryptIV())
}

func TestCryptStateZero(t *testing.T) {
	cs, err := NewCryptState(ModeOCB2AES128, DefaultWindowConfig())
	require.NoError(t, err)
	key := cs.key
	cs.Zero()
	assert.Equal(t, make([]byte, 16), key)
}

func TestFailureKindString(t *testing.T) {
	assert.Equal(t, "mac_mismatch", MacMismatch.String())
	assert.Equal(t, "replayed", Replayed.String())
	assert.Equal(t, "too_far_ahead", TooFarAhead.String())
	assert.Equal(t, "desynced", Desynced.String())
}
