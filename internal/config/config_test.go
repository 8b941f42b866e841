package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().PassphraseAttempts, config.PassphraseAttempts)
	assert.Equal(t, "info", config.LogLevel)
	assert.Empty(t, config.Disks)
	assert.True(t, config.ScanPartitions)
	assert.Equal(t, 16, config.CacheSize)
	assert.Zero(t, config.MaxPBKDF2Iterations)
}

func TestLoadFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `disks:
  - /images/a.img
  - /images/b.img
scan_partitions: false
cache_size: 4
passphrase_attempts: 3
log_level: debug
max_pbkdf2_iterations: 500000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/images/a.img", "/images/b.img"}, config.Disks)
	assert.False(t, config.ScanPartitions)
	assert.True(t, config.CacheEnabled)
	assert.Equal(t, 4, config.CacheSize)
	assert.Equal(t, 3, config.PassphraseAttempts)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, uint32(500000), config.MaxPBKDF2Iterations)
}

func TestLoadSearchPath(t *testing.T) {
	isolate(t)

	require.NoError(t, os.Mkdir("config", 0o700))
	require.NoError(t, os.WriteFile(filepath.Join("config", "cryptodisk-config.yaml"), []byte("cache_enabled: false\n"), 0o600))

	config, err := Load("")
	require.NoError(t, err)
	assert.False(t, config.CacheEnabled)
}

func TestLoadEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("CRYPTODISK_PASSPHRASE_ATTEMPTS", "5")
	t.Setenv("CRYPTODISK_LOG_LEVEL", "warn")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, config.PassphraseAttempts)
	assert.Equal(t, "warn", config.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"zero attempts", "passphrase_attempts: 0\n"},
		{"negative cache", "cache_size: -1\n"},
		{"bad level", "log_level: loud\n"},
		{"bad yaml", "disks: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
