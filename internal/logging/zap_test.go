package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTestZapLogger(t *testing.T) (*ZapLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		EncodeLevel: zapcore.CapitalLevelEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel)
	return NewZapLogger(zap.New(core)), &buf
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	log, buf := newTestZapLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)
	require.NoError(t, log.Sync())

	out := buf.String()
	for _, s := range []string{"DEBUG", "INFO", "WARN", "ERROR", "dbg", `"a": 1`, `"d": 4`} {
		assert.Contains(t, out, s)
	}
}

func TestZapLogger_With(t *testing.T) {
	log, buf := newTestZapLogger(t)

	log.With("module", "uploads").Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	assert.Contains(t, out, `"module": "uploads"`)
	assert.Contains(t, out, `"k": "v"`)
}

func TestNew(t *testing.T) {
	t.Run("slog json", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New("slog", "debug", &buf)
		require.NoError(t, err)
		l.Debug(context.Background(), "visible", "x", 1)
		assert.Contains(t, buf.String(), `"msg":"visible"`)
	})

	t.Run("zap level filters", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New("zap", "warn", &buf)
		require.NoError(t, err)
		l.Info(context.Background(), "hidden")
		l.Warn(context.Background(), "shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("bad backend", func(t *testing.T) {
		_, err := New("logrus", "info", &bytes.Buffer{})
		assert.Error(t, err)
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := New("slog", "loud", &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	l.With("a", 1).Info(context.Background(), "ignored")
}

func TestZapLogger_ContextFields(t *testing.T) {
	log, buf := newTestZapLogger(t)

	ctx := ContextWith(context.Background(), "rpc_id", "r1")
	log.Warn(ctx, "slow chunk", "index", 7)

	out := buf.String()
	assert.Contains(t, out, `"rpc_id": "r1"`)
	assert.Contains(t, out, `"index": 7`)
}
