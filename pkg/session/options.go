package session

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/metrics"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

// DefaultMaxDatagramSize bounds encrypted UDP datagrams
const DefaultMaxDatagramSize = 1024

// Config holds per-session tunables
type Config struct {
	// Time allowed between accept and Authenticate
	HandshakeTimeout time.Duration
	// Time allowed for the Authenticator
	AuthTimeout time.Duration
	// Minimum spacing of server initiated CryptSetup resyncs
	ResyncCooldown time.Duration

	CryptoMode crypto.Mode
	Window     crypto.WindowConfig

	// Plaintext plus crypto overhead may not exceed this
	MaxDatagramSize int

	// Flood limit for chatty message types
	MessageLimit rate.Limit
	MessageBurst int

	// Advertised in the server Version message
	Version   protocol.ProtocolVersion
	Release   string
	OS        string
	OSVersion string
}

// DefaultConfig returns the server defaults
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		AuthTimeout:      5 * time.Second,
		ResyncCooldown:   5 * time.Second,
		CryptoMode:       crypto.ModeOCB2AES128,
		Window:           crypto.DefaultWindowConfig(),
		MaxDatagramSize:  DefaultMaxDatagramSize,
		MessageLimit:     1,
		MessageBurst:     5,
		Version:          protocol.NewProtocolVersion(1, 5, 0),
		Release:          "zentalk-voice",
		OS:               "Go",
	}
}

// Options are the server-wide collaborators shared by all sessions
type Options struct {
	Config        Config
	Registry      *Registry
	Authenticator Authenticator
	Handler       Handler
	Audio         AudioHandler
	Observer      Observer
	UDP           DatagramWriter
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.Registry == nil {
		panic("session: Options.Registry is required")
	}
	if out.Authenticator == nil {
		out.Authenticator = AuthenticatorFunc(func(context.Context, AuthRequest) (*AuthResult, error) {
			return &AuthResult{UserID: -1}, nil
		})
	}
	if out.Handler == nil {
		out.Handler = NopHandler{}
	}
	if out.Audio == nil {
		out.Audio = AudioHandlerFunc(func(*Session, *protocol.Audio) {})
	}
	if out.Observer == nil {
		out.Observer = NopObserver{}
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.Config.MaxDatagramSize <= 0 {
		out.Config.MaxDatagramSize = DefaultMaxDatagramSize
	}
	if out.Config.CryptoMode == "" {
		out.Config.CryptoMode = crypto.ModeOCB2AES128
	}
	return &out
}
