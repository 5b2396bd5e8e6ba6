package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ZentaChain/zentalk-voice/pkg/api"
	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/metrics"
	"github.com/ZentaChain/zentalk-voice/pkg/network"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
	"github.com/ZentaChain/zentalk-voice/pkg/storage"
	"github.com/ZentaChain/zentalk-voice/pkg/transport"
)

const certificateLifetime = 5 * 365 * 24 * time.Hour

// SessionConfig returns the per-session tunables
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.HandshakeTimeout = c.Timeouts.Handshake.Std()
	sc.AuthTimeout = c.Timeouts.Auth.Std()
	sc.ResyncCooldown = c.Crypto.ResyncCooldown.Std()
	sc.CryptoMode = crypto.Mode(c.Crypto.Mode)
	sc.Window = crypto.WindowConfig{
		Size:          c.Crypto.ReplayWindow,
		MaxForwardGap: c.Crypto.MaxForwardGap,
		DesyncGap:     c.Crypto.DesyncGap,
		DesyncAfter:   c.Crypto.DesyncAfter,
	}
	sc.MaxDatagramSize = c.Transport.MaxDatagramSize
	sc.MessageLimit = rate.Limit(c.RateLimit.MessageLimit)
	sc.MessageBurst = c.RateLimit.MessageBurst
	return sc
}

// TransportConfig returns the control channel limits
func (c *Config) TransportConfig() transport.Config {
	tc := transport.DefaultConfig()
	tc.SoftLimit = c.Transport.SoftLimit
	tc.HardLimit = c.Transport.HardLimit
	tc.MaxMessageSize = c.Transport.MaxMessageSize
	tc.IdleTimeout = c.Timeouts.Idle.Std()
	tc.WriteTimeout = c.Timeouts.Write.Std()
	return tc
}

// AuthConfig returns the admission rules
func (c *Config) AuthConfig() (network.AuthConfig, error) {
	ac := network.DefaultAuthConfig()
	ac.ServerPassword = c.Server.Password
	ac.MaxUsernameLength = c.Server.MaxUsernameLength
	ac.RegisteredOnly = c.Server.RegisteredOnly
	ac.CertificateRequired = c.Server.CertificateRequired
	ac.MaxUsers = c.Server.MaxUsers
	if c.Server.MinClientVersion != "" {
		v, err := protocol.ParseVersion(c.Server.MinClientVersion)
		if err != nil {
			return ac, err
		}
		ac.MinClientVersion = v
	}
	if c.Server.UsernamePattern != "" {
		re, err := regexp.Compile(c.Server.UsernamePattern)
		if err != nil {
			return ac, err
		}
		ac.UsernamePattern = re
	}
	return ac, nil
}

// RosterConfig returns the announced server state
func (c *Config) RosterConfig() network.RosterConfig {
	return network.RosterConfig{
		RootName:           c.Server.RootName,
		WelcomeText:        c.Server.WelcomeText,
		MaxBandwidth:       c.Server.MaxBandwidth,
		MaxUsers:           uint32(c.Server.MaxUsers),
		MessageLength:      c.Server.MessageLength,
		ImageMessageLength: c.Server.ImageMessageLength,
		AllowHTML:          c.Server.AllowHTML,
		RecordingAllowed:   c.Server.RecordingAllowed,
		OpusThreshold:      c.Server.OpusThreshold,
	}
}

// ServerOptions assembles the voice server options
func (c *Config) ServerOptions(store *storage.DB, m *metrics.Metrics, log *zap.Logger) (network.Options, error) {
	tlsCfg, err := c.LoadTLS(log)
	if err != nil {
		return network.Options{}, err
	}
	auth, err := c.AuthConfig()
	if err != nil {
		return network.Options{}, err
	}
	return network.Options{
		Addr:                c.Server.ListenAddr,
		TLS:                 tlsCfg,
		TLSHandshakeTimeout: c.Timeouts.TLSHandshake.Std(),
		Session:             c.SessionConfig(),
		Transport:           c.TransportConfig(),
		Auth:                auth,
		Roster:              c.RosterConfig(),
		Store:               store,
		Metrics:             m,
		Logger:              log,
	}, nil
}

// APIConfig returns the HTTP API settings
func (c *Config) APIConfig() *api.Config {
	cfg := api.DefaultConfig()
	cfg.ListenAddr = c.API.ListenAddr
	cfg.APIKey = c.API.APIKey
	cfg.RateLimit = c.API.RateLimit
	cfg.EnableCORS = c.API.EnableCORS
	return cfg
}

// LoadTLS loads the server certificate, generating and saving a
// self-signed one when allowed and the files are missing
func (c *Config) LoadTLS(log *zap.Logger) (*tls.Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	certPEM, certErr := crypto.LoadKeyFromFile(c.TLS.CertFile)
	keyPEM, keyErr := crypto.LoadKeyFromFile(c.TLS.KeyFile)

	missing := errors.Is(certErr, fs.ErrNotExist) || errors.Is(keyErr, fs.ErrNotExist)
	switch {
	case missing && c.TLS.AutoGenerate:
		var err error
		certPEM, keyPEM, err = crypto.GenerateSelfSigned("zentalk-voice", certificateLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to generate certificate: %w", err)
		}
		if err := saveTLS(c.TLS.CertFile, certPEM, c.TLS.KeyFile, keyPEM); err != nil {
			return nil, err
		}
		log.Info("Generated self-signed certificate", zap.String("cert", c.TLS.CertFile))
	case certErr != nil:
		return nil, fmt.Errorf("failed to read certificate: %w", certErr)
	case keyErr != nil:
		return nil, fmt.Errorf("failed to read key: %w", keyErr)
	}

	cert, err := crypto.LoadKeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func saveTLS(certFile string, certPEM []byte, keyFile string, keyPEM []byte) error {
	for _, dir := range []string{filepath.Dir(certFile), filepath.Dir(keyFile)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := crypto.SaveKeyToFile(certFile, certPEM); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := crypto.SaveKeyToFile(keyFile, keyPEM); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	return nil
}
