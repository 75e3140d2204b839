package grpc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/gophmedia/internal/api"
	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/progress"
	"github.com/dmitrijs2005/gophmedia/internal/workerpool"
)

type nopLogger = logging.Nop

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:0", nopLogger{}, nil, nil, nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:99999", nopLogger{}, nil, nil, nil, 0)
	require.NoError(t, err)

	assert.Error(t, srv.Run(context.Background()))
}

func TestServe_ShutdownEndsOpenStreams(t *testing.T) {
	pool := workerpool.New("tasks", 1, logging.Nop{})
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	pub := progress.NewBroadcaster(progress.Options{Buffer: 4, Grace: time.Minute}, pool, logging.Nop{})
	t.Cleanup(pub.Close)

	srv, err := NewGRPCServer("bufnet", nopLogger{}, nil, nil, pub, 0)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	client := api.NewClient(conn)
	t.Cleanup(func() { _ = client.Close() })

	pub.Publish("t1", 5, "running", "")
	stream, err := client.Subscribe(context.Background(), "t1")
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "running", first.Status)

	cancel()

	_, err = stream.Recv()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF, "shutdown is reported, not a clean end of stream")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return with a stream open")
	}
}
