package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_AppliesDefaultsOverMissingKeys(t *testing.T) {
	path := writeConfig(t, `photo-library-path = "/photos"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/photos", cfg.PhotoLibraryPath)
	assert.Equal(t, 400, cfg.FadeMS)
	assert.Equal(t, 2000, cfg.DwellMS)
	assert.Equal(t, 3, cfg.ViewerPreloadCount)
	assert.Equal(t, 4, cfg.LoaderMaxConcurrentDecs)
	assert.Equal(t, 3, cfg.Playlist.NewMultiplicity)
	assert.Equal(t, 24*time.Hour, cfg.Playlist.HalfLife)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_OverridesDefaultsFromFile(t *testing.T) {
	path := writeConfig(t, `
photo-library-path = "/photos"
fade-ms = 100
log-level = "debug"

[playlist]
new-multiplicity = 5
half-life = "12h"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.FadeMS)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Playlist.NewMultiplicity)
	assert.Equal(t, 12*time.Hour, cfg.Playlist.HalfLife)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
photo-library-path = "/photos"
this-key-does-not-exist = true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestLoad_RejectsMissingPhotoLibraryPath(t *testing.T) {
	path := writeConfig(t, `fade-ms = 100`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "photo-library-path")
}

func TestLoad_RejectsNonPositiveConcurrency(t *testing.T) {
	path := writeConfig(t, `
photo-library-path = "/photos"
loader-max-concurrent-decodes = 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loader-max-concurrent-decodes")
}

func TestLoad_RejectsNonexistentFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
