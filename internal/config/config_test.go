package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "nosuch")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2, cfg.MaxRoomSize)
	assert.False(t, cfg.AnnouncePeerLeft)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 30*time.Second, cfg.Peer.AnswerTimeout)
	assert.Equal(t, "main", cfg.Peer.Room)
	assert.False(t, cfg.Peer.AutoAccept)
}

func TestLoad_ReadsEnvSelectedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte(`
mode: debug
port: 9999
max_room_size: 4
announce_peer_left: true
peer:
  room: lobby
  answer_timeout: 5s
  auto_accept: true
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 4, cfg.MaxRoomSize)
	assert.True(t, cfg.AnnouncePeerLeft)
	assert.Equal(t, "lobby", cfg.Peer.Room)
	assert.Equal(t, 5*time.Second, cfg.Peer.AnswerTimeout)
	assert.True(t, cfg.Peer.AutoAccept)
	// Untouched keys keep their defaults.
	assert.Equal(t, int64(65536), cfg.ReadLimit)
}
