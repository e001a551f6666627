package config

import (
	"errors"
	"fmt"
	"time"
)

// Persistence drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBunt   = "buntdb"
	DriverRedis  = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	MessageTTL         time.Duration `mapstructure:"message_ttl" yaml:"message_ttl"`
	ChallengeWindow    time.Duration `mapstructure:"challenge_window" yaml:"challenge_window"`
	MaxTextBytes       int           `mapstructure:"max_text_bytes" yaml:"max_text_bytes"`
	MaxImageBytes      int           `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
	MaxAudioBytes      int           `mapstructure:"max_audio_bytes" yaml:"max_audio_bytes"`
	MaxEventsPerMinute int           `mapstructure:"max_events_per_minute" yaml:"max_events_per_minute"`

	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SessionSecret signs connection tokens. A random one is generated at startup when empty.
	SessionSecret string        `mapstructure:"session_secret" yaml:"session_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	// AccessKeyHash is a bcrypt hash; see the hash-key command.
	AccessKeyHash string `mapstructure:"access_key_hash" yaml:"access_key_hash"`

	Admins      []string          `mapstructure:"admins" yaml:"admins"`
	DefaultRoom string            `mapstructure:"default_room" yaml:"default_room"`
	Rooms       []RoomConfig      `mapstructure:"rooms" yaml:"rooms"`
	Names       map[string]string `mapstructure:"names" yaml:"names"`

	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`
}

// RoomConfig maps identity prefixes to a room.
type RoomConfig struct {
	Key      string   `mapstructure:"key" yaml:"key"`
	Name     string   `mapstructure:"name" yaml:"name"`
	Prefixes []string `mapstructure:"prefixes" yaml:"prefixes"`
}

// PersistenceConfig selects the snapshot backend.
type PersistenceConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is a file path for sqlite and buntdb, a redis:// URL for redis.
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		MessageTTL:         30 * time.Minute,
		ChallengeWindow:    15 * time.Second,
		MaxTextBytes:       2_000,
		MaxImageBytes:      1_000_000,
		MaxAudioBytes:      2_000_000,
		MaxEventsPerMinute: 120,
		FlushInterval:      60 * time.Second,
		PruneInterval:      60 * time.Second,
		SweepInterval:      30 * time.Second,
		TokenTTL:           7 * 24 * time.Hour,
		DefaultRoom:        "lobby",
		Rooms:              []RoomConfig{{Key: "lobby", Name: "Secret Room"}},
		Names:              map[string]string{},
		Persistence: PersistenceConfig{
			Driver: DriverSQLite,
			DSN:    "chatpe.db",
			Prefix: "chatpe:",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Persistence.Driver != "" {
		c.Persistence.Driver = other.Persistence.Driver
	}
	if other.Persistence.DSN != "" {
		c.Persistence.DSN = other.Persistence.DSN
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.MessageTTL <= 0 {
		errs = append(errs, errors.New("message_ttl must be positive"))
	}
	if c.ChallengeWindow <= 0 {
		errs = append(errs, errors.New("challenge_window must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"flush_interval": c.FlushInterval,
		"prune_interval": c.PruneInterval,
		"sweep_interval": c.SweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxTextBytes <= 0 || c.MaxImageBytes <= 0 || c.MaxAudioBytes <= 0 {
		errs = append(errs, errors.New("payload bounds must be positive"))
	}
	if c.DefaultRoom == "" {
		errs = append(errs, errors.New("default_room is required"))
	}
	switch c.Persistence.Driver {
	case DriverMemory:
	case DriverSQLite, DriverBunt, DriverRedis:
		if c.Persistence.DSN == "" {
			errs = append(errs, fmt.Errorf("persistence.dsn is required for driver %q", c.Persistence.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown persistence.driver %q", c.Persistence.Driver))
	}
	return errors.Join(errs...)
}
