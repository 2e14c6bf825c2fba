package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Run("overlays present fields", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{
			"server_url":     "http://vault.example:9000",
			"storage":        "remote",
			"encoding":       "gzip",
			"transfer_speed": 256,
			"timeout":        "30s",
		})

		cfg := &Config{TokenFile: "keep.json", Storage: "local"}
		require.NoError(t, cfg.LoadFile(path))

		assert.Equal(t, "http://vault.example:9000", cfg.ServerURL)
		assert.Equal(t, "keep.json", cfg.TokenFile)
		assert.Equal(t, "remote", cfg.Storage)
		assert.Equal(t, "gzip", cfg.Encoding)
		assert.Equal(t, 256, cfg.TransferSpeed)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
	})

	t.Run("explicit empty storage resets to server default", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{"storage": ""})
		cfg := &Config{Storage: "local"}
		require.NoError(t, cfg.LoadFile(path))
		assert.Equal(t, "", cfg.Storage)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := &Config{}
		assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "nope.json")))
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		_, err := LoadConfig(bad)
		assert.Error(t, err)
	})
}
