package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for value, want := range cases {
		t.Setenv("LOG_LEVEL", value)
		assert.Equal(t, want, Level(), "LOG_LEVEL=%q", value)
	}
}

type recordingHandler struct {
	level   slog.Level
	handled int
	err     error
}

func (h *recordingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *recordingHandler) Handle(context.Context, slog.Record) error {
	h.handled++
	return h.err
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandlerRespectsSinkLevels(t *testing.T) {
	stdout := &recordingHandler{level: slog.LevelInfo}
	db := &recordingHandler{level: slog.LevelError}
	m := NewMultiHandler(stdout, db)

	ctx := context.Background()
	require.NoError(t, m.Handle(ctx, slog.Record{Level: slog.LevelInfo}))
	assert.Equal(t, 1, stdout.handled)
	assert.Zero(t, db.handled)

	require.NoError(t, m.Handle(ctx, slog.Record{Level: slog.LevelError}))
	assert.Equal(t, 2, stdout.handled)
	assert.Equal(t, 1, db.handled)
}

func TestMultiHandlerDeliversPastFailingSink(t *testing.T) {
	failing := &recordingHandler{level: slog.LevelInfo, err: errors.New("sink down")}
	healthy := &recordingHandler{level: slog.LevelInfo}
	m := NewMultiHandler(failing, healthy)

	err := m.Handle(context.Background(), slog.Record{Level: slog.LevelError})
	require.Error(t, err)
	assert.Equal(t, 1, failing.handled)
	assert.Equal(t, 1, healthy.handled)
}
