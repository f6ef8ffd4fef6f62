package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 300, cfg.Assets.ThumbnailSize)
	assert.Equal(t, 1280, cfg.Assets.PreviewSize)
	assert.True(t, cfg.Assets.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDerivedLibraryLayout(t *testing.T) {
	cfg := DefaultConfig()

	root := cfg.Library.RootDir
	assert.Equal(t, filepath.Join(root, "unsorted"), cfg.Library.UnsortedDir)
	assert.Equal(t, filepath.Join(root, "daily"), cfg.Library.DailyDir)
	assert.Equal(t, filepath.Join(root, "events"), cfg.Library.EventsDir)
	assert.Equal(t, filepath.Join(root, "inbox"), cfg.Library.InboxDir)
	assert.Equal(t, filepath.Join(root, "shoebox.db"), cfg.Database.DatabasePath)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\nlibrary:\n  root_dir: /tmp/filelib\n"), 0644))

	t.Setenv("SHOEBOX_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/tmp/filelib", cfg.Library.RootDir)
	assert.Equal(t, filepath.Join("/tmp/filelib", "unsorted"), cfg.Library.UnsortedDir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Database.Type = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Assets.Quality = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Library.RootDir = ""
	assert.Error(t, cfg.Validate())
}
