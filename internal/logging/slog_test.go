package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "chunk staged", "index", 3)
	log.Info(ctx, "session opened", "chunks", 4)
	log.Warn(ctx, "subscriber dropped", "transfer_id", "t1")
	log.Error(ctx, "assembly failed", "kind", "SizeMismatch")

	out := buf.String()
	for _, s := range []string{
		"level=DEBUG", `msg="chunk staged"`, "index=3",
		"level=INFO", `msg="session opened"`, "chunks=4",
		"level=WARN", "transfer_id=t1",
		"level=ERROR", "kind=SizeMismatch",
	} {
		assert.Contains(t, out, s)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	log.With("module", "downloads", "job_id", "j1").Info(context.TODO(), "claimed", "worker", 2)

	out := buf.String()
	for _, s := range []string{"module=downloads", "job_id=j1", "worker=2", "msg=claimed"} {
		assert.Contains(t, out, s)
	}
}

func TestSlogLogger_ContextFields(t *testing.T) {
	log, buf := newTestLogger(t)

	ctx := ContextWith(context.Background(), "method", "/x/OpenSession")
	ctx = ContextWith(ctx, "peer", "p1")
	log.Info(ctx, "session opened", "session_id", "s1")

	out := buf.String()
	for _, s := range []string{"method=/x/OpenSession", "peer=p1", "session_id=s1"} {
		assert.Contains(t, out, s)
	}
}

func TestContextWith_DoesNotAlias(t *testing.T) {
	base := ContextWith(context.Background(), "a", 1)
	left := ContextWith(base, "b", 2)
	right := ContextWith(base, "c", 3)

	assert.Equal(t, []any{"a", 1, "b", 2}, fieldsFrom(left))
	assert.Equal(t, []any{"a", 1, "c", 3}, fieldsFrom(right))
	assert.Equal(t, base, ContextWith(base))
}
