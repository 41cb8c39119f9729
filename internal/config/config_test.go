package config

import (
	"os"
	"path/filepath"
	"testing"

	"photo-compressor-go/internal/archive"
	"photo-compressor-go/internal/compressor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.8, cfg.Compression.Quality)
	assert.Equal(t, 1920, cfg.Compression.MaxDimension)
	assert.Equal(t, compressor.DefaultGroupSize, cfg.Compression.GroupSize)
	assert.Equal(t, "groups", cfg.Compression.Scheduling)
	assert.Equal(t, archive.DefaultFilename, cfg.Archive.Filename)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
compression:
  quality: 0.6
  max_dimension: 1280
  group_size: 8
  scheduling: pool
archive:
  filename: out.zip
server:
  port: 9090
logging:
  level: debug
  file_path: ""
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Compression.Quality)
	assert.Equal(t, 1280, cfg.Compression.MaxDimension)
	assert.Equal(t, "out.zip", cfg.Archive.Filename)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	cc := cfg.CompressorConfig()
	assert.Equal(t, 8, cc.GroupSize)
	assert.Equal(t, compressor.SchedulingPool, cc.Scheduling)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "compression:\n  quality: 0.6\n")
	t.Setenv("PHOTO_COMPRESSOR_COMPRESSION_QUALITY", "0.4")
	t.Setenv("PHOTO_COMPRESSOR_SERVER_PORT", "7070")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Compression.Quality)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"quality":    "compression:\n  quality: 1.5\n",
		"scheduling": "compression:\n  scheduling: lifo\n",
		"port":       "server:\n  port: 70000\n",
		"log level":  "logging:\n  level: chatty\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression.MaxDimension = 0
	cfg.Compression.GroupSize = -1
	cfg.Archive.Filename = ""
	cfg.SupportedExtensions = []string{"JPG", ".Png"}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1920, cfg.Compression.MaxDimension)
	assert.Equal(t, compressor.DefaultGroupSize, cfg.Compression.GroupSize)
	assert.Equal(t, archive.DefaultFilename, cfg.Archive.Filename)
	assert.True(t, cfg.IsImageExtension(".jpg"))
	assert.True(t, cfg.IsImageExtension(".PNG"))
	assert.False(t, cfg.IsImageExtension(".gif"))
}
