// Package logger configures the process-wide slog logger and tees every
// record into a ring buffer and a subscriber bus, which back the log history
// endpoint and the websocket log stream.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"dynamics-archiver-go/internal/config"
)

// InitFromConfig installs the default logger per LOG_LEVEL and LOG_FORMAT.
func InitFromConfig() {
	slog.SetDefault(slog.New(NewBroadcastHandler(newBaseHandler(
		os.Stdout,
		config.AppConfig.LogLevel,
		config.AppConfig.LogFormat,
	))))
}

func newBaseHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(strings.TrimSpace(format)) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) { slog.Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Default().Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Default().Error(msg, args...) }
