// Package config loads the voiced TOML configuration
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/network"
	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

// Duration is a time.Duration written as a TOML string such as "5s"
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	TLS       TLSConfig       `toml:"tls"`
	Timeouts  TimeoutConfig   `toml:"timeouts"`
	Crypto    CryptoConfig    `toml:"crypto"`
	Transport TransportConfig `toml:"transport"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Database  DatabaseConfig  `toml:"database"`
	API       APIConfig       `toml:"api"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	// TCP and UDP share this address
	ListenAddr          string `toml:"listen_addr"`
	WelcomeText         string `toml:"welcome_text"`
	Password            string `toml:"password"`
	SuperUserPassword   string `toml:"superuser_password"`
	MaxUsers            int    `toml:"max_users"`
	MaxBandwidth        uint32 `toml:"max_bandwidth"`
	MessageLength       uint32 `toml:"message_length"`
	ImageMessageLength  uint32 `toml:"image_message_length"`
	AllowHTML           bool   `toml:"allow_html"`
	RecordingAllowed    bool   `toml:"recording_allowed"`
	RootName            string `toml:"root_name"`
	MinClientVersion    string `toml:"min_client_version"`
	UsernamePattern     string `toml:"username_pattern"`
	MaxUsernameLength   int    `toml:"max_username_length"`
	RegisteredOnly      bool   `toml:"registered_only"`
	CertificateRequired bool   `toml:"certificate_required"`
	OpusThreshold       int    `toml:"opus_threshold"`
}

type TLSConfig struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	// Generate a self-signed certificate when the files do not exist
	AutoGenerate bool `toml:"auto_generate"`
}

type TimeoutConfig struct {
	TLSHandshake Duration `toml:"tls_handshake"`
	Handshake    Duration `toml:"handshake"`
	Auth         Duration `toml:"auth"`
	Idle         Duration `toml:"idle"`
	Write        Duration `toml:"write"`
}

type CryptoConfig struct {
	Mode           string   `toml:"mode"`
	ReplayWindow   int      `toml:"replay_window"`
	MaxForwardGap  uint64   `toml:"max_forward_gap"`
	DesyncGap      uint64   `toml:"desync_gap"`
	DesyncAfter    int      `toml:"desync_after"`
	ResyncCooldown Duration `toml:"resync_cooldown"`
}

type TransportConfig struct {
	SoftLimit       int    `toml:"soft_limit"`
	HardLimit       int    `toml:"hard_limit"`
	MaxMessageSize  uint32 `toml:"max_message_size"`
	MaxDatagramSize int    `toml:"max_datagram_size"`
}

type RateLimitConfig struct {
	// Messages per second per session; zero disables the limit
	MessageLimit float64 `toml:"message_limit"`
	MessageBurst int     `toml:"message_burst"`
}

type DatabaseConfig struct {
	Path               string   `toml:"path"`
	BanCleanupInterval Duration `toml:"ban_cleanup_interval"`
}

type APIConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	// Required in the X-API-Key header when set
	APIKey string `toml:"api_key"`
	// Requests per minute per client IP
	RateLimit  int  `toml:"rate_limit"`
	EnableCORS bool `toml:"enable_cors"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the stock configuration
func Default() *Config {
	roster := network.DefaultRosterConfig()
	return &Config{
		Server: ServerConfig{
			ListenAddr:         ":64738",
			WelcomeText:        roster.WelcomeText,
			MaxUsers:           100,
			MaxBandwidth:       roster.MaxBandwidth,
			MessageLength:      roster.MessageLength,
			ImageMessageLength: roster.ImageMessageLength,
			AllowHTML:          roster.AllowHTML,
			RecordingAllowed:   roster.RecordingAllowed,
			RootName:           roster.RootName,
			UsernamePattern:    network.DefaultUsernamePattern,
			MaxUsernameLength:  128,
			OpusThreshold:      roster.OpusThreshold,
		},
		TLS: TLSConfig{
			CertFile:     "./data/cert.pem",
			KeyFile:      "./data/key.pem",
			AutoGenerate: true,
		},
		Timeouts: TimeoutConfig{
			TLSHandshake: Duration(network.DefaultTLSHandshakeTimeout),
			Handshake:    Duration(10 * time.Second),
			Auth:         Duration(5 * time.Second),
			Idle:         Duration(30 * time.Second),
			Write:        Duration(10 * time.Second),
		},
		Crypto: CryptoConfig{
			Mode:           string(crypto.ModeOCB2AES128),
			ReplayWindow:   crypto.DefaultReplayWindow,
			MaxForwardGap:  crypto.DefaultReplayWindow,
			DesyncGap:      1 << 16,
			DesyncAfter:    64,
			ResyncCooldown: Duration(5 * time.Second),
		},
		Transport: TransportConfig{
			SoftLimit:       256,
			HardLimit:       2048,
			MaxMessageSize:  protocol.DefaultMaxMessageSize,
			MaxDatagramSize: 1024,
		},
		RateLimit: RateLimitConfig{
			MessageLimit: 1,
			MessageBurst: 5,
		},
		Database: DatabaseConfig{
			Path:               "./data/voice.db",
			BanCleanupInterval: Duration(time.Hour),
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:8080",
			RateLimit:  100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration from TOML text over the defaults
func Parse(data string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode renders cfg as TOML
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes cfg to path
func (c *Config) WriteFile(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := c.Server
	if s.ListenAddr == "" {
		add("server.listen_addr is required")
	}
	if s.MaxUsers < 0 {
		add("server.max_users must not be negative")
	}
	if s.OpusThreshold < 0 || s.OpusThreshold > 100 {
		add("server.opus_threshold must be between 0 and 100")
	}
	if s.MinClientVersion != "" {
		if _, err := protocol.ParseVersion(s.MinClientVersion); err != nil {
			add("server.min_client_version: %v", err)
		}
	}
	if s.UsernamePattern != "" {
		if _, err := regexp.Compile(s.UsernamePattern); err != nil {
			add("server.username_pattern: %v", err)
		}
	}

	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		add("tls.cert_file and tls.key_file are required")
	}

	if _, err := crypto.Mode(c.Crypto.Mode).KeySize(); err != nil {
		add("crypto.mode: %v", err)
	}
	if c.Crypto.ReplayWindow <= 0 {
		add("crypto.replay_window must be positive")
	}
	if c.Crypto.DesyncGap > 0 && c.Crypto.DesyncGap < c.Crypto.MaxForwardGap {
		add("crypto.desync_gap must not be below crypto.max_forward_gap")
	}
	if c.Crypto.ResyncCooldown < 0 {
		add("crypto.resync_cooldown must not be negative")
	}

	t := c.Transport
	if t.SoftLimit <= 0 || t.HardLimit < t.SoftLimit {
		add("transport.hard_limit must be at least transport.soft_limit, which must be positive")
	}
	if t.MaxDatagramSize <= 0 {
		add("transport.max_datagram_size must be positive")
	}

	if c.RateLimit.MessageLimit < 0 {
		add("ratelimit.message_limit must not be negative")
	}
	if c.Database.Path == "" {
		add("database.path is required")
	}
	if c.API.Enabled && c.API.ListenAddr == "" {
		add("api.listen_addr is required when the API is enabled")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format must be json or console")
	}

	return errors.Join(errs...)
}
