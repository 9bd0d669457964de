package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoaderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "[capture]\nself_identifiers = [\"A\"]\n")

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, cfg.Capture.SelfIdentifiers)

	changes := make(chan [2]*Config, 4)
	l.OnChange(func(old, updated *Config) { changes <- [2]*Config{old, updated} })
	require.NoError(t, l.Watch())
	defer l.Close()

	writeConfig(t, path, "[capture]\nself_identifiers = [\"A\", \"B\"]\n")

	select {
	case c := <-changes:
		assert.Equal(t, []string{"A"}, c[0].Capture.SelfIdentifiers)
		assert.Equal(t, []string{"A", "B"}, c[1].Capture.SelfIdentifiers)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
	assert.Equal(t, []string{"A", "B"}, l.Config().Capture.SelfIdentifiers)
}

func TestLoaderKeepsConfigOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "[logging]\nlevel = \"warn\"\n")

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())
	defer l.Close()

	writeConfig(t, path, "[logging]\nlevel = \"shout\"\n")

	select {
	case err := <-l.Errors():
		assert.ErrorContains(t, err, "logging.level")
	case <-time.After(5 * time.Second):
		t.Fatal("no reload error reported")
	}
	assert.Equal(t, "warn", l.Config().Logging.Level)
}

func TestLoaderCloseIdempotent(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, l.Watch())
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}
