package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every PRMONITOR_ env var that Load() reads.
var allConfigKeys = []string{
	"PRMONITOR_GITHUB_TOKEN",
	"PRMONITOR_GITHUB_API_URL",
	"PRMONITOR_POLL_INTERVAL",
	"PRMONITOR_REFRESH_TIMEOUT",
	"PRMONITOR_LISTEN_ADDR",
	"PRMONITOR_DB_PATH",
	"PRMONITOR_SECRET_KEY",
	"PRMONITOR_OPEN_BROWSER",
}

// isolateConfigEnv saves and unsets all PRMONITOR_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server), and
// moves into an empty directory so no .env file is picked up.
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

const testSecretKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PRMONITOR_GITHUB_TOKEN", "ghp_test123")
	t.Setenv("PRMONITOR_GITHUB_API_URL", "https://ghe.example.com/api/v3/")
	t.Setenv("PRMONITOR_POLL_INTERVAL", "10m")
	t.Setenv("PRMONITOR_REFRESH_TIMEOUT", "30s")
	t.Setenv("PRMONITOR_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("PRMONITOR_DB_PATH", "/tmp/test.db")
	t.Setenv("PRMONITOR_SECRET_KEY", testSecretKey)
	t.Setenv("PRMONITOR_OPEN_BROWSER", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "ghp_test123", cfg.GitHubToken)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.GitHubAPIURL)
	assert.Equal(t, 10*time.Minute, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.RefreshTimeout)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.True(t, cfg.HasSecretKey())
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, byte(0x1f), cfg.SecretKey[31])
	assert.False(t, cfg.OpenBrowser)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "", cfg.GitHubToken)
	assert.Equal(t, "", cfg.GitHubAPIURL)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.RefreshTimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "prmonitor.db", cfg.DBPath)
	assert.False(t, cfg.HasSecretKey())
	assert.True(t, cfg.OpenBrowser)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "poll interval", key: "PRMONITOR_POLL_INTERVAL", value: "soon", wantErr: "PRMONITOR_POLL_INTERVAL"},
		{name: "negative poll interval", key: "PRMONITOR_POLL_INTERVAL", value: "-1m", wantErr: "must be positive"},
		{name: "refresh timeout", key: "PRMONITOR_REFRESH_TIMEOUT", value: "0s", wantErr: "must be positive"},
		{name: "open browser", key: "PRMONITOR_OPEN_BROWSER", value: "maybe", wantErr: "PRMONITOR_OPEN_BROWSER"},
		{name: "secret key not hex", key: "PRMONITOR_SECRET_KEY", value: strings.Repeat("z", 64), wantErr: "not valid hex"},
		{name: "secret key too short", key: "PRMONITOR_SECRET_KEY", value: "0011", wantErr: "64 hex characters"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tc.key, tc.value)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	isolateConfigEnv(t)

	dir := t.TempDir()
	content := "PRMONITOR_DB_PATH=/data/from-dotenv.db\nPRMONITOR_LISTEN_ADDR=127.0.0.1:7000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))
	t.Chdir(dir)

	// Variables already in the environment win over .env.
	t.Setenv("PRMONITOR_LISTEN_ADDR", "127.0.0.1:9000")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/data/from-dotenv.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
}
