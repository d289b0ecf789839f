// Package config loads settings from a YAML file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix starts every environment variable read by Load. Nested keys use a
// double underscore, so NEURAPATH_BACKEND__KIND sets backend.kind.
const EnvPrefix = "NEURAPATH_"

// Backend kinds.
const (
	BackendHTTP     = "http"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendGit      = "git"
	BackendMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Backend BackendConfig `koanf:"backend"`
	Server  ServerConfig  `koanf:"server"`
	Sync    SyncConfig    `koanf:"sync"`
	Session SessionConfig `koanf:"session"`
	Data    DataConfig    `koanf:"data"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// BackendConfig selects where databases are stored.
type BackendConfig struct {
	Kind      string        `koanf:"kind" validate:"oneof=http sqlite postgres git memory"`
	URL       string        `koanf:"url" validate:"required_if=Kind http"`
	DSN       string        `koanf:"dsn" validate:"required_if=Kind sqlite,required_if=Kind postgres"`
	GitPath   string        `koanf:"git_path" validate:"required_if=Kind git"`
	GitRemote string        `koanf:"git_remote"`
	Timeout   time.Duration `koanf:"timeout" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// SyncConfig controls background saves.
type SyncConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"gte=0"`
	StaleAfter time.Duration `koanf:"stale_after" validate:"gt=0"`
}

type SessionConfig struct {
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// DataConfig is the local database file used by the memory backend.
type DataConfig struct {
	Path string `koanf:"path"`
}

// setting is one configuration key with its flag and default.
type setting struct {
	key   string
	flag  string
	def   any
	usage string
}

var settings = []setting{
	{key: "log.level", flag: "log-level", def: "info", usage: "log level: debug, info, warn or error"},
	{key: "log.format", flag: "log-format", def: "text", usage: "log format: text or json"},
	{key: "backend.kind", flag: "backend", def: BackendMemory, usage: "backend: http, sqlite, postgres, git or memory"},
	{key: "backend.url", flag: "url", def: "", usage: "server URL for the http backend"},
	{key: "backend.dsn", flag: "dsn", def: "", usage: "database file or connection string for sqlite and postgres"},
	{key: "backend.git_path", flag: "git-path", def: "", usage: "working copy for the git backend"},
	{key: "backend.git_remote", flag: "git-remote", def: "", usage: "origin URL for the git backend"},
	{key: "backend.timeout", flag: "timeout", def: 30 * time.Second, usage: "timeout for remote requests"},
	{key: "server.addr", flag: "addr", def: ":8080", usage: "listen address for serve"},
	{key: "sync.interval", flag: "sync-interval", def: time.Minute, usage: "how often to check for a stale sync"},
	{key: "sync.stale_after", flag: "stale-after", def: 5 * time.Minute, usage: "age after which the last sync is stale"},
	{key: "session.user", flag: "user", def: "", usage: "account name"},
	{key: "session.password", flag: "password", def: "", usage: "account password"},
	{key: "data.path", flag: "data", def: "neurapath.json", usage: "local database file for the memory backend"},
}

// RegisterFlags adds a flag for every setting to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	for _, s := range settings {
		switch def := s.def.(type) {
		case string:
			flags.String(s.flag, def, s.usage)
		case time.Duration:
			flags.Duration(s.flag, def, s.usage)
		}
	}
}

// Options tells Load where to look.
type Options struct {
	// File is a YAML config file. It must exist when set.
	File string
	// EnvFiles are loaded into the environment first. Missing files are
	// skipped. Empty means ".env".
	EnvFiles []string
	// Flags are usually cobra's persistent flags after parsing.
	Flags *pflag.FlagSet
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration from defaults, the file, the environment and
// the flags, in that order, and validates the result.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		// Variables already set win over the file.
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	k := koanf.New(".")
	for _, s := range settings {
		if err := k.Set(s.key, s.def); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", s.key, err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", opts.File, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if opts.Flags != nil {
		byFlag := map[string]string{}
		for _, s := range settings {
			byFlag[s.flag] = s.key
		}
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := byFlag[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps NEURAPATH_BACKEND__GIT_PATH to backend.git_path.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks field values and the settings each backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Backend.Kind == BackendMemory && c.Data.Path == "" {
		return errors.New("invalid config: data.path is required for the memory backend")
	}
	return nil
}

// NewLogger builds a slog logger writing to w in the configured format.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func (c LogConfig) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
