package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/collector"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", "", "")
	require.NoError(t, err)
	assert.Equal(t, collector.DefaultConfig(), cfg)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.toml")
	require.NoError(t, os.WriteFile(path, []byte("addr = \":7000\"\nframing = \"line\"\n\n[metrics]\naddr = \":7001\"\n"), 0o600))

	cfg, err := loadConfig(path, "127.0.0.1:8000", "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr)
	assert.Equal(t, collector.FramingLine, cfg.Framing)
	assert.Equal(t, ":7001", cfg.Metrics.Addr)

	cfg, err = loadConfig(path, "", ":9000")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, ":9000", cfg.Metrics.Addr)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), "", "")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "collector.toml")
	require.NoError(t, os.WriteFile(path, []byte("framing = \"smoke\"\n"), 0o600))
	_, err = loadConfig(path, "", "")
	var cfgErr *collector.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
