package logger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hperssn/kioskcheck/internal/logger"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("nonsense"))
}

func TestNewWithWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", "json")

	log.Info("stage advanced",
		logger.SessionID("s-1"),
		logger.Stage("ALCOHOL"),
		logger.Error(errors.New("boom")),
		logger.Feed(""),
	)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"session_id":"s-1"`)
	assert.Contains(t, out, `"stage":"ALCOHOL"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.NotContains(t, out, `"feed"`)
}

func TestEmptyAttrs(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.True(t, logger.SessionID("").Equal(slog.Attr{}))
	assert.NotNil(t, logger.OrDefault(nil))
}
