package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "CHATPE_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
	envPrefix            = "CHATPE"
)

// Load resolves configuration and returns it with the path it was read from.
// Precedence: defaults < config file < CHATPE_* env vars. A missing file is
// created from the defaults so operators have something to edit.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	path := resolveConfigPath(explicitPath)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := readOrCreate(v, path, cfg, logger); err != nil {
		return cfg, path, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, path, nil
}

func readOrCreate(v *viper.Viper, path string, defaults Config, logger *zerolog.Logger) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := writeDefaultConfig(path, defaults); err != nil {
		// Defaults and env still apply without a file.
		if logger != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to write default config")
		}
		return nil
	}
	if logger != nil {
		logger.Info().Str("path", path).Msg("created default config")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read generated config %s: %w", path, err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it,
// e.g. CHATPE_PERSISTENCE_DRIVER for persistence.driver.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("message_ttl", cfg.MessageTTL)
	v.SetDefault("challenge_window", cfg.ChallengeWindow)
	v.SetDefault("max_text_bytes", cfg.MaxTextBytes)
	v.SetDefault("max_image_bytes", cfg.MaxImageBytes)
	v.SetDefault("max_audio_bytes", cfg.MaxAudioBytes)
	v.SetDefault("max_events_per_minute", cfg.MaxEventsPerMinute)
	v.SetDefault("flush_interval", cfg.FlushInterval)
	v.SetDefault("prune_interval", cfg.PruneInterval)
	v.SetDefault("sweep_interval", cfg.SweepInterval)
	v.SetDefault("session_secret", cfg.SessionSecret)
	v.SetDefault("token_ttl", cfg.TokenTTL)
	v.SetDefault("access_key_hash", cfg.AccessKeyHash)
	v.SetDefault("admins", cfg.Admins)
	v.SetDefault("default_room", cfg.DefaultRoom)
	v.SetDefault("rooms", cfg.Rooms)
	v.SetDefault("names", cfg.Names)
	v.SetDefault("persistence.driver", cfg.Persistence.Driver)
	v.SetDefault("persistence.dsn", cfg.Persistence.DSN)
	v.SetDefault("persistence.prefix", cfg.Persistence.Prefix)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
