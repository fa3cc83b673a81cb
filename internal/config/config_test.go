package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"KAIA_LOCALE", "KAIA_SILENCE_TIMEOUT_MS", "KAIA_MAX_DURATION_MS", "KAIA_AUTO_RESTART",
	"KAIA_MAX_RETRIES", "KAIA_MAX_RESTARTS", "KAIA_AGENT_ADDR", "KAIA_WHISPER_MODEL",
	"KAIA_WHISPER_THREADS", "KAIA_CONTROL_SOCKET", "KAIA_BEEP_FILE", "KAIA_DUCK",
	"OPENAI_API_KEY", "KAIA_OPENAI_MODEL", "KAIA_PROXY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, "pt-BR", cfg.Locale)
	assert.Equal(t, "pt", cfg.Language())
	assert.Equal(t, 1500*time.Millisecond, cfg.Capture.SilenceTimeout)
	assert.Equal(t, 30*time.Second, cfg.Capture.MaxDuration)
	assert.True(t, cfg.Capture.AutoRestart)
	assert.Equal(t, 3, cfg.Capture.MaxRetries)
	assert.Equal(t, 10, cfg.Capture.MaxRestarts)
	assert.Equal(t, "ws://127.0.0.1:5111", cfg.AgentURL())
	assert.Equal(t, "/tmp/kaia.sock", cfg.Control.Socket)
	assert.Equal(t, "beep.mp3", cfg.Cues.BeepFile)
	assert.False(t, cfg.Cues.Duck)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, "gpt-5-nano", cfg.LLM.Model)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAIA_LOCALE", "en-US")
	t.Setenv("KAIA_SILENCE_TIMEOUT_MS", "900")
	t.Setenv("KAIA_MAX_DURATION_MS", "-5")
	t.Setenv("KAIA_AUTO_RESTART", "off")
	t.Setenv("KAIA_MAX_RETRIES", "five")
	t.Setenv("KAIA_MAX_RESTARTS", "-1")
	t.Setenv("KAIA_AGENT_ADDR", "127.0.0.1:6000")
	t.Setenv("KAIA_DUCK", "yes")
	t.Setenv("OPENAI_API_KEY", "  sk-test  ")

	cfg := Load()
	assert.Equal(t, "en", cfg.Language())
	assert.Equal(t, 900*time.Millisecond, cfg.Capture.SilenceTimeout)
	assert.Equal(t, 30*time.Second, cfg.Capture.MaxDuration)
	assert.False(t, cfg.Capture.AutoRestart)
	assert.Equal(t, 3, cfg.Capture.MaxRetries)
	assert.Equal(t, 10, cfg.Capture.MaxRestarts)
	assert.Equal(t, "ws://127.0.0.1:6000", cfg.AgentURL())
	assert.True(t, cfg.Cues.Duck)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)

	s := cfg.Speech()
	assert.Equal(t, 900*time.Millisecond, s.SilenceTimeout)
	assert.False(t, s.AutoRestart)
	assert.Equal(t, 500*time.Millisecond, s.RetryDelay)
	assert.Equal(t, 100*time.Millisecond, s.RestartBase)
	assert.Equal(t, 5*time.Second, s.RestartCap)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("KAIA_LOCALE"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KAIA_LOCALE=es-ES\n"), 0o600))

	require.NoError(t, LoadEnv(path))
	t.Cleanup(func() { os.Unsetenv("KAIA_LOCALE") })
	assert.Equal(t, "es", Load().Language())
}

func TestLoadEnvMissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "nope.env")))
	assert.NoError(t, LoadEnv(""))
}
