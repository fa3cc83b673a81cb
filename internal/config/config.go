package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"kaia/internal/speech"
)

// Config stores runtime configuration shared by the kaia binaries.
type Config struct {
	Locale  string
	Capture CaptureConfig
	Agent   AgentConfig
	Whisper WhisperConfig
	Control ControlConfig
	Cues    CueConfig
	LLM     LLMConfig
}

type CaptureConfig struct {
	SilenceTimeout time.Duration
	MaxDuration    time.Duration
	AutoRestart    bool
	MaxRetries     int
	MaxRestarts    int
}

type AgentConfig struct {
	Addr string
}

type WhisperConfig struct {
	ModelPath string
	Threads   int
}

type ControlConfig struct {
	Socket string
}

type CueConfig struct {
	BeepFile string
	Duck     bool
}

type LLMConfig struct {
	APIKey string
	Model  string
	Proxy  string
}

// LoadEnv reads an optional .env file. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves configuration from environment variables and defaults.
func Load() Config {
	cfg := Config{
		Locale: envOrDefault("KAIA_LOCALE", "pt-BR"),
		Capture: CaptureConfig{
			SilenceTimeout: envOrDefaultMillis("KAIA_SILENCE_TIMEOUT_MS", 1500),
			MaxDuration:    envOrDefaultMillis("KAIA_MAX_DURATION_MS", 30000),
			AutoRestart:    envOrDefaultBool("KAIA_AUTO_RESTART", true),
			MaxRetries:     envOrDefaultInt("KAIA_MAX_RETRIES", 3),
			MaxRestarts:    envOrDefaultInt("KAIA_MAX_RESTARTS", 10),
		},
		Agent: AgentConfig{
			Addr: envOrDefault("KAIA_AGENT_ADDR", "127.0.0.1:5111"),
		},
		Whisper: WhisperConfig{
			ModelPath: envOrDefault("KAIA_WHISPER_MODEL", "models/ggml-base.bin"),
			Threads:   envOrDefaultInt("KAIA_WHISPER_THREADS", 0),
		},
		Control: ControlConfig{
			Socket: envOrDefault("KAIA_CONTROL_SOCKET", "/tmp/kaia.sock"),
		},
		Cues: CueConfig{
			BeepFile: envOrDefault("KAIA_BEEP_FILE", "beep.mp3"),
			Duck:     envOrDefaultBool("KAIA_DUCK", false),
		},
		LLM: LLMConfig{
			APIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Model:  envOrDefault("KAIA_OPENAI_MODEL", "gpt-5-nano"),
			Proxy:  strings.TrimSpace(os.Getenv("KAIA_PROXY")),
		},
	}

	if cfg.Capture.MaxRetries < 0 {
		cfg.Capture.MaxRetries = 3
	}
	if cfg.Capture.MaxRestarts < 0 {
		cfg.Capture.MaxRestarts = 10
	}
	if cfg.Whisper.Threads < 0 {
		cfg.Whisper.Threads = 0
	}

	return cfg
}

// Speech returns the capture machine settings.
func (c Config) Speech() speech.Config {
	s := speech.DefaultConfig()
	s.SilenceTimeout = c.Capture.SilenceTimeout
	s.MaxDuration = c.Capture.MaxDuration
	s.AutoRestart = c.Capture.AutoRestart
	s.MaxRetries = c.Capture.MaxRetries
	s.MaxRestarts = c.Capture.MaxRestarts
	return s
}

// Language is the primary subtag of the locale ("pt" for "pt-BR").
func (c Config) Language() string {
	lang, _, _ := strings.Cut(c.Locale, "-")
	return strings.ToLower(lang)
}

// AgentURL is the relay endpoint for the configured agent address.
func (c Config) AgentURL() string {
	return "ws://" + c.Agent.Addr
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback int) time.Duration {
	ms := envOrDefaultInt(key, fallback)
	if ms < 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
