// Package config loads the ledger configuration with viper from an optional
// YAML file and SPLITLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable, e.g. SPLITLEDGER_DB_PATH
// or SPLITLEDGER_AUTH_JWT_SECRET.
const EnvPrefix = "SPLITLEDGER"

type Participants struct {
	Primary  []string `mapstructure:"primary"`
	Excluded string   `mapstructure:"excluded"`
}

type Server struct {
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
}

type Auth struct {
	// PasswordHash is the bcrypt hash of the shared password.
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the full configuration of the server and CLI.
type Config struct {
	DBPath          string       `mapstructure:"db_path"`
	IntakeDir       string       `mapstructure:"intake_dir"`
	ProcessedDir    string       `mapstructure:"processed_dir"`
	RejectedDir     string       `mapstructure:"rejected_dir"`
	DefaultCurrency string       `mapstructure:"default_currency"`
	Participants    Participants `mapstructure:"participants"`
	Server          Server       `mapstructure:"server"`
	Auth            Auth         `mapstructure:"auth"`
	Log             Log          `mapstructure:"log"`
	Metrics         Metrics      `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "./data/ledger.db")
	v.SetDefault("intake_dir", "./data/intake")
	v.SetDefault("processed_dir", "./data/processed")
	v.SetDefault("rejected_dir", "./data/rejected")
	v.SetDefault("default_currency", "PLN")
	v.SetDefault("participants.primary", []string{})
	v.SetDefault("participants.excluded", "Other")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_path", "")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
}

// Load reads the configuration. An empty path searches ./splitledger.yaml and
// $HOME/.config/splitledger/splitledger.yaml; a missing file is not an error
// unless path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(ExpandPath(path))
	} else {
		v.SetConfigName("splitledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "splitledger"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.DBPath = ExpandPath(cfg.DBPath)
	cfg.IntakeDir = ExpandPath(cfg.IntakeDir)
	cfg.ProcessedDir = ExpandPath(cfg.ProcessedDir)
	cfg.RejectedDir = ExpandPath(cfg.RejectedDir)
	cfg.Server.StaticPath = ExpandPath(cfg.Server.StaticPath)
	for i, name := range cfg.Participants.Primary {
		cfg.Participants.Primary[i] = strings.TrimSpace(name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every process needs.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if len(c.Participants.Primary) != 2 {
		return fmt.Errorf("participants.primary must name exactly two participants, got %d", len(c.Participants.Primary))
	}
	if strings.TrimSpace(c.Participants.Excluded) == "" {
		return errors.New("participants.excluded is required")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default_currency %q is not a three-letter code", c.DefaultCurrency)
	}
	return nil
}

// ValidateServer checks the settings the HTTP server needs on top of Validate.
func (c *Config) ValidateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Auth.PasswordHash == "" {
		return errors.New("auth.password_hash is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
