package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Mode names a datagram cipher
type Mode string

const (
	// ModeOCB2AES128 is the cipher spoken by stock Mumble clients
	ModeOCB2AES128 Mode = "OCB2-AES128"
	// ModeChaCha20Poly1305 carries the full 64-bit counter on the wire
	ModeChaCha20Poly1305 Mode = "CHACHA20-POLY1305"
)

// IVSize is the size of the encrypt and decrypt IVs exchanged in CryptSetup
const IVSize = 16

// KeySize returns the key length the mode expects
func (m Mode) KeySize() (int, error) {
	switch m {
	case ModeOCB2AES128:
		return 16, nil
	case ModeChaCha20Poly1305:
		return chacha20poly1305.KeySize, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, string(m))
}

// cipherMode seals and opens single datagrams. The IV passed in is the full
// 128-bit counter; each mode puts its low bits on the wire.
type cipherMode interface {
	overhead() int
	wireBits() uint
	wireCounter(packet []byte) uint64
	seal(dst []byte, iv *[16]byte, plain []byte) []byte
	open(dst []byte, iv *[16]byte, packet []byte) ([]byte, bool)
}

type chachaMode struct {
	aead cipher.AEAD
}

func newChaChaMode(key []byte) (*chachaMode, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &chachaMode{aead: aead}, nil
}

func (c *chachaMode) overhead() int { return 8 + chacha20poly1305.Overhead }

func (c *chachaMode) wireBits() uint { return 64 }

func (c *chachaMode) wireCounter(packet []byte) uint64 {
	return binary.LittleEndian.Uint64(packet[:8])
}

func (c *chachaMode) seal(dst []byte, iv *[16]byte, plain []byte) []byte {
	var header [8]byte
	copy(header[:], iv[:8])
	return c.aead.Seal(append(dst, header[:]...), iv[:chacha20poly1305.NonceSize], plain, header[:])
}

func (c *chachaMode) open(dst []byte, iv *[16]byte, packet []byte) ([]byte, bool) {
	out, err := c.aead.Open(dst, iv[:chacha20poly1305.NonceSize], packet[8:], packet[:8])
	if err != nil {
		return nil, false
	}
	return out, true
}

// Window tuning for Decrypt
type WindowConfig struct {
	// Size of the replay bitmap
	Size int
	// Forward jumps larger than this are rejected with TooFarAhead. Values
	// below the window size are raised to it.
	MaxForwardGap uint64
	// Forward jumps larger than this are rejected with Desynced
	DesyncGap uint64
	// This many consecutive failures escalate the next one to Desynced
	DesyncAfter int
}

// DefaultWindowConfig returns the defaults used by the server
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Size:          DefaultReplayWindow,
		MaxForwardGap: DefaultReplayWindow,
		DesyncGap:     1 << 16,
		DesyncAfter:   64,
	}
}

// Stats are the per-direction datagram counters
type Stats struct {
	Good   uint32
	Late   uint32
	Lost   uint32
	Resync uint32

	MacMismatch uint32
	Replayed    uint32
	TooFarAhead uint32
	Desynced    uint32
}

// CryptState is the symmetric context of one UDP peer. Encrypt advances the
// encrypt IV; Decrypt advances the replay window. The decrypt IV given at
// setup is sequence 0; a datagram with sequence n was sealed under that IV
// plus n.
//
// CryptState is not safe for concurrent use; the owner serializes access.
type CryptState struct {
	mode   Mode
	cipher cipherMode
	key    []byte

	encryptIV   [IVSize]byte
	decryptBase [IVSize]byte

	cfg    WindowConfig
	window *ReplayWindow

	stats               Stats
	consecutiveFailures int
	lastGood            time.Time
}

// NewCryptState creates a fresh context with random key and IVs
func NewCryptState(mode Mode, cfg WindowConfig) (*CryptState, error) {
	size, err := mode.KeySize()
	if err != nil {
		return nil, err
	}
	material, err := GenerateNonce(size + 2*IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	return SetKey(mode, cfg, material[:size], material[size:size+IVSize], material[size+IVSize:])
}

// SetKey creates a context from explicit key material
func SetKey(mode Mode, cfg WindowConfig, key, encryptIV, decryptIV []byte) (*CryptState, error) {
	size, err := mode.KeySize()
	if err != nil {
		return nil, err
	}
	if len(key) != size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidKey, mode, size, len(key))
	}
	if len(encryptIV) != IVSize || len(decryptIV) != IVSize {
		return nil, ErrInvalidNonce
	}

	var cm cipherMode
	switch mode {
	case ModeOCB2AES128:
		cm, err = newOCB2(key)
	case ModeChaCha20Poly1305:
		cm, err = newChaChaMode(key)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Size <= 0 {
		cfg.Size = DefaultReplayWindow
	}
	window := NewReplayWindow(cfg.Size)
	if cfg.MaxForwardGap > 0 && cfg.MaxForwardGap < window.Size() {
		cfg.MaxForwardGap = window.Size()
	}
	cs := &CryptState{
		mode:     mode,
		cipher:   cm,
		key:      append([]byte{}, key...),
		cfg:      cfg,
		window:   window,
		lastGood: time.Now(),
	}
	copy(cs.encryptIV[:], encryptIV)
	copy(cs.decryptBase[:], decryptIV)
	return cs, nil
}

// WithDecryptIV returns a new context sharing key, encrypt IV and counters
// but restarting the decrypt direction at iv. The receiver is left untouched.
func (cs *CryptState) WithDecryptIV(iv []byte) (*CryptState, error) {
	if len(iv) != IVSize {
		return nil, ErrInvalidNonce
	}
	next := &CryptState{
		mode:     cs.mode,
		cipher:   cs.cipher,
		key:      cs.key,
		cfg:      cs.cfg,
		window:   NewReplayWindow(cs.cfg.Size),
		stats:    cs.stats,
		lastGood: cs.lastGood,
	}
	next.encryptIV = cs.encryptIV
	copy(next.decryptBase[:], iv)
	next.stats.Resync++
	return next, nil
}

// Mode returns the cipher mode
func (cs *CryptState) Mode() Mode { return cs.mode }

// Key returns a copy of the key
func (cs *CryptState) Key() []byte { return append([]byte{}, cs.key...) }

// EncryptIV returns the last IV used for encryption
func (cs *CryptState) EncryptIV() []byte { return append([]byte{}, cs.encryptIV[:]...) }

// DecryptIV returns the IV of the highest accepted datagram
func (cs *CryptState) DecryptIV() []byte {
	iv := ivAdd(cs.decryptBase, cs.window.Last())
	return iv[:]
}

// Overhead is the number of bytes Encrypt adds
func (cs *CryptState) Overhead() int { return cs.cipher.overhead() }

// Stats returns a snapshot of the counters
func (cs *CryptState) Stats() Stats { return cs.stats }

// LastGood returns when a datagram last decrypted
func (cs *CryptState) LastGood() time.Time { return cs.lastGood }

// Encrypt seals plain and appends the datagram to dst
func (cs *CryptState) Encrypt(dst, plain []byte) []byte {
	ivIncrement(&cs.encryptIV)
	return cs.cipher.seal(dst, &cs.encryptIV, plain)
}

// Decrypt authenticates packet, appends the plaintext to dst and advances
// the replay window. Failures are counted and returned as *DecryptError.
func (cs *CryptState) Decrypt(dst, packet []byte) ([]byte, error) {
	return cs.decrypt(dst, packet, false)
}

// TryDecrypt is Decrypt for trial decryption against a candidate peer: failures
// leave every counter untouched, successes commit as Decrypt does.
func (cs *CryptState) TryDecrypt(dst, packet []byte) ([]byte, error) {
	return cs.decrypt(dst, packet, true)
}

func (cs *CryptState) decrypt(dst, packet []byte, trial bool) ([]byte, error) {
	if len(packet) < cs.cipher.overhead() {
		return nil, cs.fail(MacMismatch, ErrPacketTooShort, trial)
	}

	seq, ok := cs.sequence(cs.cipher.wireCounter(packet))
	if !ok {
		return nil, cs.fail(Replayed, nil, trial)
	}
	if err := cs.window.Check(seq); err != nil {
		return nil, cs.fail(Replayed, nil, trial)
	}

	last := cs.window.Last()
	if seq > last {
		gap := seq - last
		if cs.cfg.DesyncGap > 0 && gap > cs.cfg.DesyncGap {
			return nil, cs.fail(Desynced, nil, trial)
		}
		if cs.cfg.MaxForwardGap > 0 && gap > cs.cfg.MaxForwardGap {
			return nil, cs.fail(TooFarAhead, nil, trial)
		}
	}

	iv := ivAdd(cs.decryptBase, seq)
	plain, ok := cs.cipher.open(dst, &iv, packet)
	if !ok {
		return nil, cs.fail(MacMismatch, nil, trial)
	}

	cs.window.Accept(seq)
	if seq > last {
		cs.stats.Lost += uint32(seq - last - 1)
	} else {
		cs.stats.Late++
		if cs.stats.Lost > 0 {
			cs.stats.Lost--
		}
	}
	cs.stats.Good++
	cs.consecutiveFailures = 0
	cs.lastGood = time.Now()

	return plain, nil
}

func (cs *CryptState) fail(kind FailureKind, cause error, trial bool) error {
	if trial {
		return &DecryptError{Kind: kind, Cause: cause}
	}

	cs.consecutiveFailures++
	if cs.cfg.DesyncAfter > 0 && cs.consecutiveFailures >= cs.cfg.DesyncAfter && kind != Desynced {
		if cause == nil {
			cause = kind.sentinel()
		}
		kind = Desynced
	}

	switch kind {
	case MacMismatch:
		cs.stats.MacMismatch++
	case Replayed:
		cs.stats.Replayed++
	case TooFarAhead:
		cs.stats.TooFarAhead++
	case Desynced:
		cs.stats.Desynced++
	}
	return &DecryptError{Kind: kind, Cause: cause}
}

// sequence reconstructs the full sequence number from the counter bits on
// the wire, choosing the candidate closest to the window head. It reports
// false for candidates before sequence 0.
func (cs *CryptState) sequence(wire uint64) (uint64, bool) {
	bits := cs.cipher.wireBits()
	base := binary.LittleEndian.Uint64(cs.decryptBase[:8])
	rel := wire - base
	if bits >= 64 {
		return rel, true
	}

	mask := uint64(1)<<bits - 1
	half := uint64(1) << (bits - 1)
	last := cs.window.Last()

	delta := (rel - last) & mask
	if delta < half {
		return last + delta, true
	}
	back := (1 << bits) - delta
	if back > last {
		return 0, false
	}
	return last - back, true
}

// Zero wipes the key material
func (cs *CryptState) Zero() {
	for i := range cs.key {
		cs.key[i] = 0
	}
	cs.encryptIV = [IVSize]byte{}
	cs.decryptBase = [IVSize]byte{}
	cs.cipher = nil
}

// ivIncrement adds one to a little-endian 128-bit counter
func ivIncrement(iv *[IVSize]byte) {
	for i := range iv {
		iv[i]++
		if iv[i] != 0 {
			break
		}
	}
}

// ivAdd returns base + n as little-endian 128-bit counters
func ivAdd(base [IVSize]byte, n uint64) [IVSize]byte {
	lo := binary.LittleEndian.Uint64(base[:8])
	hi := binary.LittleEndian.Uint64(base[8:])
	sum := lo + n
	if sum < lo {
		hi++
	}
	var out [IVSize]byte
	binary.LittleEndian.PutUint64(out[:8], sum)
	binary.LittleEndian.PutUint64(out[8:], hi)
	return out
}
