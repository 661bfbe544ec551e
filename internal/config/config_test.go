package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("test", flag.ContinueOnError)
}

func TestDefaults(t *testing.T) {
	cfg := parse(newFlagSet(), []string{"--config", filepath.Join(t.TempDir(), "missing.toml")})

	assert.Equal(t, "CHROME", cfg.Browser)
	assert.Equal(t, 5*time.Second, cfg.DefaultWait)
	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.False(t, cfg.IsHubSet())
}

func TestPropertiesFileEnvAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selenified.toml")
	props := `
browser = "firefox"
hub = "ws://grid:7317"
default_wait = "7s"
package_results = true
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(props), 0o644))

	t.Setenv("SELENIFIED_BROWSER", "edge")
	t.Setenv("SELENIFIED_GENERATE_PDF", "true")

	cfg := parse(newFlagSet(), []string{"--config=" + path, "--browser", "iphone", "--host", "127.0.0.1"})

	assert.Equal(t, "iphone", cfg.Browser, "flags override env and file")
	assert.Equal(t, "ws://grid:7317", cfg.Hub)
	assert.True(t, cfg.IsHubSet())
	assert.Equal(t, 7*time.Second, cfg.DefaultWait)
	assert.True(t, cfg.PackageResults)
	assert.True(t, cfg.GeneratePDF)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.BaseURL)
}

func TestLoadFileInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`default_wait = "soon"`), 0o644))

	cfg := DefaultConfig()
	err := cfg.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_wait")
}

func TestNormalizeClamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 50
	cfg.RateLimitRequests = 0
	cfg.PollInterval = 0
	cfg.DefaultWait = -time.Second
	cfg.Normalize()

	assert.Equal(t, 10, cfg.MaxRetries)
	assert.Equal(t, 100, cfg.RateLimitRequests)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.DefaultWait)
}
