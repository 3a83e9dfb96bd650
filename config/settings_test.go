package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost", s.Host)
	assert.Equal(t, 180*time.Second, s.BuildTimeout)
	assert.Equal(t, int64(945), s.MaxTokens)
	assert.Equal(t, 12, s.MaxRound)
	assert.Equal(t, PortSettings{Start: 8000, End: 65535, Max: 32}, s.Ports)
	assert.Equal(t, "console", s.Log.Format)
	assert.True(t, s.Resilience.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 127.0.0.1
build_timeout: 90s
max_round: 20
ports:
  start: 9000
  end: 9100
log:
  level: debug
`), 0o644))
	t.Setenv("AGENTCREW_PORTS_END", "9010")
	t.Setenv("AGENTCREW_WORLD_SIZE", "4")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", s.Host)
	assert.Equal(t, 90*time.Second, s.BuildTimeout)
	assert.Equal(t, 20, s.MaxRound)
	assert.Equal(t, 9000, s.Ports.Start)
	assert.Equal(t, 9010, s.Ports.End)
	assert.Equal(t, 32, s.Ports.Max)
	assert.Equal(t, 4, s.WorldSize)
	assert.Equal(t, "debug", s.Log.Level)
}

func TestLoad_DiscoversWorkingDirFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentcrew.json"), []byte(`{"agent_model": "gpt-4o"}`), 0o644))

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", s.AgentModel)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ports:\n  start: 9000\n  end: 8000\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "invalid port range")
}
