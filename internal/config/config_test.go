package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Config reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_PATH", "COLLECTOR_MODE", "REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET",
		"REDDIT_USERNAME", "REDDIT_PASSWORD", "REDDIT_USER_AGENT", "NITTER_URL",
		"RETRY_ATTEMPTS", "RETRY_DELAY", "TREE_WORKERS", "TREE_TIMEOUT",
		"MAX_EXPANSIONS", "BATCH_WORKERS", "PORT", "LOG_LEVEL",
	} {
		if v, ok := os.LookupEnv(k); ok {
			require.NoError(t, os.Unsetenv(k))
			t.Cleanup(func() { _ = os.Setenv(k, v) })
		}
	}
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

const sampleYAML = `
mode: "api"
reddit:
  client_id: "id"
  client_secret: "secret"
  user_agent: "scraper/1.0"
retry:
  attempts: 5
  delay: 1s
tree:
  workers: 8
  timeout: 30s
  max_expansions: 10
server:
  port: "9090"
`

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDDIT_USER_AGENT", "scraper/test")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "public", cfg.Mode)
	require.Equal(t, 3, cfg.Retry.Attempts)
	require.Equal(t, 2*time.Second, cfg.Retry.Delay)
	require.Equal(t, 4, cfg.Tree.Workers)
	require.Equal(t, 60*time.Second, cfg.Tree.Timeout)
	require.Equal(t, 32, cfg.Tree.MaxExpansions)
	require.Equal(t, "https://nitter.net", cfg.Nitter.URL)
	require.Equal(t, ":8080", cfg.Server.Addr())
}

func TestLoad_FileThenEnvOverlay(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv("RETRY_ATTEMPTS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "api", cfg.Mode)
	require.Equal(t, "id", cfg.Reddit.ClientID)
	require.Equal(t, 2, cfg.Retry.Attempts, "env overlays file")
	require.Equal(t, time.Second, cfg.Retry.Delay)
	require.Equal(t, 8, cfg.Tree.Workers)
	require.Equal(t, 10, cfg.Tree.MaxExpansions)
	require.Equal(t, ":9090", cfg.Server.Addr())
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "api", cfg.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown mode", map[string]string{"COLLECTOR_MODE": "ftp"}},
		{"public without user agent", map[string]string{"COLLECTOR_MODE": "public"}},
		{"api without credentials", map[string]string{"COLLECTOR_MODE": "api", "REDDIT_USER_AGENT": "ua"}},
		{"zero attempts", map[string]string{"COLLECTOR_MODE": "mock", "RETRY_ATTEMPTS": "0"}},
		{"zero workers", map[string]string{"COLLECTOR_MODE": "mock", "TREE_WORKERS": "0"}},
		{"zero retry delay", map[string]string{"COLLECTOR_MODE": "mock", "RETRY_DELAY": "0s"}},
		{"bad nitter url", map[string]string{"COLLECTOR_MODE": "mock", "NITTER_URL": "not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoad_MockNeedsNoCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLLECTOR_MODE", "mock")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "mock", cfg.Mode)
}
