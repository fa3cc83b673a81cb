package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level maps a flag value to a slog level. Unknown names fall back to info.
func Level(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// Setup installs a tint handler as the default logger.
func Setup(w io.Writer, level string) {
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      Level(level),
		TimeFormat: time.Kitchen,
	})))
}
