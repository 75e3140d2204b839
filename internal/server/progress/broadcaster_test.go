package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/dmitrijs2005/gophmedia/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualScheduler collects delayed tasks so tests decide when grace expires.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []workerpool.Task
	delay []time.Duration
}

func (m *manualScheduler) After(d time.Duration, t workerpool.Task) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.tasks)
	m.tasks = append(m.tasks, t)
	m.delay = append(m.delay, d)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.tasks[idx] == nil {
			return false
		}
		m.tasks[idx] = nil
		return true
	}
}

func (m *manualScheduler) runAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = make([]workerpool.Task, len(tasks))
	m.mu.Unlock()
	for _, t := range tasks {
		if t != nil {
			t(context.Background())
		}
	}
}

func newBroadcaster(buffer int) (*Broadcaster, *manualScheduler) {
	s := &manualScheduler{}
	return NewBroadcaster(Options{Buffer: buffer, Grace: time.Minute}, s, logging.Nop{}), s
}

func recv(t *testing.T, ch <-chan models.TransferProgress) models.TransferProgress {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "channel closed")
		return p
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	return models.TransferProgress{}
}

func assertClosed(t *testing.T, ch <-chan models.TransferProgress) {
	t.Helper()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("channel not closed")
		}
	}
}

func TestPublish_FanOutInOrder(t *testing.T) {
	b, _ := newBroadcaster(8)
	s1 := b.Subscribe("t1")
	s2 := b.Subscribe("t1")
	other := b.Subscribe("t2")

	b.Publish("t1", 10, "uploading", "")
	b.Publish("t1", 20, "uploading", "chunk 2")

	for _, s := range []*Subscription{s1, s2} {
		assert.Equal(t, 10.0, recv(t, s.Updates()).Percent)
		p := recv(t, s.Updates())
		assert.Equal(t, 20.0, p.Percent)
		assert.Equal(t, "chunk 2", p.Message)
		assert.False(t, p.UpdatedAt.IsZero())
	}
	assert.Len(t, other.Updates(), 0)
}

func TestPublish_WithoutSubscribersOnlyUpdatesSnapshot(t *testing.T) {
	b, _ := newBroadcaster(1)
	b.Publish("t1", 5, "queued", "")
	b.Publish("t1", 250, "fetching", "")

	snap, ok := b.Snapshot("t1")
	require.True(t, ok)
	assert.Equal(t, 100.0, snap.Percent, "percent is clamped")
	assert.Equal(t, "fetching", snap.Status)

	_, ok = b.Snapshot("unknown")
	assert.False(t, ok)
}

func TestSubscribe_ReplaysSnapshot(t *testing.T) {
	b, _ := newBroadcaster(2)
	b.Publish("t1", 40, "uploading", "")

	s := b.Subscribe("t1")
	assert.Equal(t, 40.0, recv(t, s.Updates()).Percent)
}

func TestSlowSubscriberIsDroppedWithoutAffectingOthers(t *testing.T) {
	b, _ := newBroadcaster(1)
	slow := b.Subscribe("t1")
	fast := b.Subscribe("t1")

	b.Publish("t1", 1, "uploading", "")
	recv(t, fast.Updates())
	b.Publish("t1", 2, "uploading", "")
	recv(t, fast.Updates())

	assert.Equal(t, 1.0, recv(t, slow.Updates()).Percent)
	assertClosed(t, slow.Updates())

	b.Publish("t1", 3, "uploading", "")
	assert.Equal(t, 3.0, recv(t, fast.Updates()).Percent)
}

func TestCancel_IsIdempotentAndStopsDelivery(t *testing.T) {
	b, _ := newBroadcaster(4)
	s := b.Subscribe("t1")
	s.Cancel()
	s.Cancel()
	assertClosed(t, s.Updates())

	require.NotPanics(t, func() { b.Publish("t1", 50, "uploading", "") })

	b.mu.Lock()
	assert.Empty(t, b.transfers["t1"].subs)
	b.mu.Unlock()
}

func TestCancel_RemovesEmptyEntry(t *testing.T) {
	b, _ := newBroadcaster(4)
	s := b.Subscribe("ghost")
	s.Cancel()

	b.mu.Lock()
	_, ok := b.transfers["ghost"]
	b.mu.Unlock()
	assert.False(t, ok)
}

func TestMarkTerminal_GraceThenCleanup(t *testing.T) {
	b, sched := newBroadcaster(4)
	s := b.Subscribe("t1")
	b.Publish("t1", 90, "assembling", "")
	recv(t, s.Updates())

	b.MarkTerminal(models.TransferProgress{TransferID: "t1", Percent: 100, Status: "COMPLETED"})
	final := recv(t, s.Updates())
	assert.True(t, final.Terminal)
	assert.Equal(t, "COMPLETED", final.Status)
	assert.Equal(t, []time.Duration{time.Minute}, sched.delay)

	// late non-terminal update is ignored
	b.Publish("t1", 10, "uploading", "")
	snap, ok := b.Snapshot("t1")
	require.True(t, ok)
	assert.Equal(t, "COMPLETED", snap.Status)

	// resubscribe within grace still sees the terminal state
	late := b.Subscribe("t1")
	assert.True(t, recv(t, late.Updates()).Terminal)

	sched.runAll()
	assertClosed(t, s.Updates())
	assertClosed(t, late.Updates())
	_, ok = b.Snapshot("t1")
	assert.False(t, ok)
}

func TestMarkTerminal_RescheduleInvalidatesOldCleanup(t *testing.T) {
	b, sched := newBroadcaster(4)
	b.MarkTerminal(models.TransferProgress{TransferID: "t1", Status: "COMPLETED"})

	sched.mu.Lock()
	first := sched.tasks[0]
	sched.mu.Unlock()

	b.MarkTerminal(models.TransferProgress{TransferID: "t1", Status: "FINALIZED"})

	first(context.Background())
	snap, ok := b.Snapshot("t1")
	require.True(t, ok, "stale cleanup must not remove the re-marked transfer")
	assert.Equal(t, "FINALIZED", snap.Status)

	sched.runAll()
	_, ok = b.Snapshot("t1")
	assert.False(t, ok)
}

func TestClose(t *testing.T) {
	b, _ := newBroadcaster(4)
	s := b.Subscribe("t1")
	b.Close()
	assertClosed(t, s.Updates())

	after := b.Subscribe("t2")
	assertClosed(t, after.Updates())
	require.NotPanics(t, func() {
		b.Publish("t1", 1, "x", "")
		b.MarkTerminal(models.TransferProgress{TransferID: "t1"})
		s.Cancel()
	})
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b, _ := newBroadcaster(2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Publish("t1", float64(j%100), "uploading", "")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := b.Subscribe("t1")
				s.Cancel()
			}
		}()
	}
	wg.Wait()
}

func TestRate(t *testing.T) {
	bps, eta := Rate(50, 150, 5*time.Second)
	assert.InDelta(t, 10.0, bps, 1e-9)
	assert.Equal(t, 10*time.Second, eta)

	bps, eta = Rate(0, 100, time.Second)
	assert.Zero(t, bps)
	assert.Zero(t, eta)

	_, eta = Rate(100, 0, time.Second)
	assert.Zero(t, eta)
}

func TestMeter(t *testing.T) {
	m := NewMeter(1000)
	start := m.start
	m.now = func() time.Time { return start.Add(2 * time.Second) }
	bps, eta := m.Observe(200)
	assert.InDelta(t, 100.0, bps, 1e-9)
	assert.Equal(t, 8*time.Second, eta)
}
