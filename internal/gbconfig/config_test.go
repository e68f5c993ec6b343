package gbconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(NewDefault()))
}

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, NewDefault(), cfg)
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[job]
thread_count = 4
pin_threads = true

[logging]
level = "debug"
format = "json"
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Job.ThreadCount)
	require.True(t, cfg.Job.PinThreads)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "127.0.0.1", cfg.Diagnostics.Host, "unset sections keep their defaults")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := NewDefault()
	cfg.Logging.Level = "verbose"
	require.Error(t, Validate(cfg))
}

func TestValidateRequiresLedgerPathWhenEnabled(t *testing.T) {
	cfg := NewDefault()
	cfg.Ledger.Enabled = true
	cfg.Ledger.Path = ""
	require.Error(t, Validate(cfg))
}
