package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/server/config"
	"github.com/dmitrijs2005/gophmedia/internal/server/uploads"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	dir := t.TempDir()
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.StorageRoot = filepath.Join(dir, "media")
	c.ScratchDir = filepath.Join(dir, "scratch")
	c.SweepInterval = 10 * time.Millisecond
	c.LogLevel = "error"
	return c
}

func TestNewApp_InMemory(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.Nil(t, app.db)
	assert.NoError(t, app.close())
}

func TestNewApp_RejectsUnknownLogBackend(t *testing.T) {
	c := testConfig(t)
	c.LogBackend = "syslog"
	_, err := NewApp(context.Background(), c)
	assert.Error(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	c := testConfig(t)
	c.EndpointAddrGRPC = "127.0.0.1:99999"
	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	assert.Error(t, app.Run(context.Background()))
}

func TestSweep_RemovesIdleSessions(t *testing.T) {
	c := testConfig(t)
	c.SessionIdleTimeout = -time.Minute
	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	defer app.close()

	ctx := context.Background()
	s, err := app.uploads.OpenSession(ctx, uploads.OpenRequest{Filename: "a.bin", TotalSize: 10, ChunkSize: 4})
	require.NoError(t, err)

	app.sweep(ctx)

	_, err = app.uploads.GetStatus(ctx, s.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
