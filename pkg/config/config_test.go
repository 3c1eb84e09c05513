package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thermos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://thermos.example.com
  token: secret
  timeout: 5s
database:
  schema: thermos
language: en
user_id: 12
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://thermos.example.com", cfg.API.URL)
	assert.Equal(t, "/api/thermos", cfg.API.Prefix, "unset keys keep defaults")
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "thermos", cfg.Database.Schema)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, int64(12), cfg.UserID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestLoad_DefaultPathMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("THERMOS_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().API, cfg.API)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  url: http://file\n")
	t.Setenv("THERMOS_API_URL", "http://env")
	t.Setenv("THERMOS_DB_URL", "postgres://localhost/thermos")
	t.Setenv("THERMOS_API_TIMEOUT", "2s")
	t.Setenv("THERMOS_USER_ID", "3")
	t.Setenv("THERMOS_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env", cfg.API.URL)
	assert.Equal(t, "postgres://localhost/thermos", cfg.Database.URL)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	assert.Equal(t, int64(3), cfg.UserID)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_InvalidEnv(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("THERMOS_USER_ID", "abc")

	_, err := Load(path)
	assert.ErrorContains(t, err, "THERMOS_USER_ID")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no backend", mutate: func(c *Config) { c.API.URL = "" }, want: "must be set"},
		{name: "negative timeout", mutate: func(c *Config) { c.API.Timeout = -time.Second }, want: "timeout"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, want: "log level"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Log{Level: "info", Format: "json"}.NewLogger(&buf)

	logger.Debug("hidden")
	logger.Info("loaded", slog.String("table", "pais"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"table":"pais"`)

	buf.Reset()
	Log{Level: "debug"}.NewLogger(&buf).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
