// Package config holds the console settings, read from a YAML file and
// overridden by THERMOS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THERMOS_"

// API configures the REST backend.
type API struct {
	URL       string        `yaml:"url"`
	Prefix    string        `yaml:"prefix"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
}

// Database configures direct PostgreSQL access. An empty URL selects the
// REST backend.
type Database struct {
	URL      string `yaml:"url"`
	Schema   string `yaml:"schema"`
	MaxConns int32  `yaml:"max_conns"`
}

// Influx configures the InfluxDB measurement store. An empty URL reads
// measurements from the REST backend.
type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full console configuration.
type Config struct {
	API      API      `yaml:"api"`
	Database Database `yaml:"database"`
	Influx   Influx   `yaml:"influx"`
	Log      Log      `yaml:"log"`
	Language string   `yaml:"language"`
	UserID   int64    `yaml:"user_id"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		API: API{
			URL:       "http://localhost:3000",
			Prefix:    "/api/thermos",
			Timeout:   30 * time.Second,
			RateLimit: 10,
		},
		Database: Database{Schema: "public", MaxConns: 4},
		Influx:   Influx{Bucket: "thermos"},
		Log:      Log{Level: "warn", Format: "text"},
		Language: "es",
	}
}

// DefaultPath is ~/.thermos/thermos.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".thermos", "thermos.yaml"), nil
}

// Load reads path over the defaults and applies environment overrides. An
// empty path reads THERMOS_CONFIG or DefaultPath; a missing default file is
// not an error, a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "CONFIG")
		explicit = path != ""
	}
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"API_URL":       &c.API.URL,
		"API_PREFIX":    &c.API.Prefix,
		"API_TOKEN":     &c.API.Token,
		"DB_URL":        &c.Database.URL,
		"DB_SCHEMA":     &c.Database.Schema,
		"INFLUX_URL":    &c.Influx.URL,
		"INFLUX_TOKEN":  &c.Influx.Token,
		"INFLUX_ORG":    &c.Influx.Org,
		"INFLUX_BUCKET": &c.Influx.Bucket,
		"LOG_LEVEL":     &c.Log.Level,
		"LOG_FORMAT":    &c.Log.Format,
		"LANG":          &c.Language,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "API_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sAPI_TIMEOUT: %w", EnvPrefix, err)
		}
		c.API.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "API_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sAPI_RATE_LIMIT: %w", EnvPrefix, err)
		}
		c.API.RateLimit = f
	}
	if v, ok := lookup(EnvPrefix + "USER_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sUSER_ID: %w", EnvPrefix, err)
		}
		c.UserID = id
	}
	return nil
}

// Validate checks values that cannot be used as given.
func (c *Config) Validate() error {
	if c.API.URL == "" && c.Database.URL == "" {
		return errors.New("either api.url or database.url must be set")
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must not be negative")
	}
	if c.UserID < 0 {
		return errors.New("user_id must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// NewLogger builds a slog logger writing to w.
func (c Log) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
