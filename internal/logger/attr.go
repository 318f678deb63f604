package logger

import (
	"log/slog"
	"time"
)

// Helpers return an empty Attr for zero inputs so callers can pass them
// unconditionally.

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("session_id", id)
}

func Stage(stage string) slog.Attr {
	return slog.String("stage", stage)
}

// Feed names the event source a message came from.
func Feed(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("feed", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}
