// Package progress keeps the latest progress snapshot of every live transfer
// and fans updates out to subscribers.
//
// Delivery is best effort: a subscriber whose buffer is full is dropped
// rather than allowed to stall the publisher. A subscriber that resubscribes
// within the grace period after a terminal update still receives it, since
// the latest snapshot is replayed on subscribe.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/dmitrijs2005/gophmedia/internal/workerpool"
)

// Scheduler runs a task after a delay. *workerpool.Pool implements it.
type Scheduler interface {
	After(d time.Duration, t workerpool.Task) (cancel func() bool)
}

type Options struct {
	// Buffer is the per-subscriber channel capacity, at least 1.
	Buffer int
	// Grace is how long a terminal snapshot outlives MarkTerminal.
	Grace time.Duration
}

type transfer struct {
	snapshot *models.TransferProgress
	subs     map[uint64]*Subscription
	terminal bool

	gen         uint64
	stopCleanup func() bool
}

type Broadcaster struct {
	opts   Options
	sched  Scheduler
	logger logging.Logger
	now    func() time.Time

	mu        sync.Mutex
	transfers map[string]*transfer
	nextSub   uint64
	closed    bool
}

func NewBroadcaster(opts Options, sched Scheduler, l logging.Logger) *Broadcaster {
	if opts.Buffer < 1 {
		opts.Buffer = 1
	}
	return &Broadcaster{
		opts:      opts,
		sched:     sched,
		logger:    l.With("module", "progress"),
		now:       time.Now,
		transfers: make(map[string]*transfer),
	}
}

// Subscription is one observer of one transfer.
type Subscription struct {
	id         uint64
	transferID string
	ch         chan models.TransferProgress
	b          *Broadcaster
	closed     bool // guarded by b.mu
}

// Updates yields progress in publish order. It is closed when the
// subscription is cancelled, dropped for being slow, or the transfer expires.
func (s *Subscription) Updates() <-chan models.TransferProgress { return s.ch }

func (s *Subscription) TransferID() string { return s.transferID }

// Cancel unregisters the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.unsubscribeLocked(s)
}

// Subscribe registers an observer for id. The current snapshot, if any, is
// delivered immediately.
func (b *Broadcaster) Subscribe(id string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	sub := &Subscription{
		id:         b.nextSub,
		transferID: id,
		ch:         make(chan models.TransferProgress, b.opts.Buffer),
		b:          b,
	}
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}

	t := b.transferLocked(id)
	if t.snapshot != nil {
		sub.ch <- *t.snapshot
	}
	t.subs[sub.id] = sub
	return sub
}

// Publish records and pushes a progress update built from its arguments.
func (b *Broadcaster) Publish(id string, percent float64, status, message string) {
	b.PublishProgress(models.TransferProgress{
		TransferID: id,
		Percent:    percent,
		Status:     status,
		Message:    message,
	})
}

// PublishProgress records p as the latest snapshot of p.TransferID and pushes
// it to every subscriber. Non-terminal updates after MarkTerminal are
// ignored.
func (b *Broadcaster) PublishProgress(p models.TransferProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(p)
}

// MarkTerminal publishes the final state and schedules removal of the
// transfer, closing its subscribers, after the grace period.
func (b *Broadcaster) MarkTerminal(final models.TransferProgress) {
	final.Terminal = true

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.publishLocked(final)

	t := b.transfers[final.TransferID]
	if t.stopCleanup != nil {
		t.stopCleanup()
	}
	t.gen++
	gen, id := t.gen, final.TransferID
	t.stopCleanup = b.sched.After(b.opts.Grace, func(context.Context) {
		b.expire(id, gen)
	})
}

// Snapshot returns the latest known progress for id.
func (b *Broadcaster) Snapshot(id string) (models.TransferProgress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[id]
	if !ok || t.snapshot == nil {
		return models.TransferProgress{}, false
	}
	return *t.snapshot, true
}

// Close drops every transfer and closes all subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, t := range b.transfers {
		if t.stopCleanup != nil {
			t.stopCleanup()
		}
		for _, s := range t.subs {
			b.closeSubLocked(s)
		}
		delete(b.transfers, id)
	}
}

func (b *Broadcaster) transferLocked(id string) *transfer {
	t, ok := b.transfers[id]
	if !ok {
		t = &transfer{subs: make(map[uint64]*Subscription)}
		b.transfers[id] = t
	}
	return t
}

func (b *Broadcaster) publishLocked(p models.TransferProgress) {
	if b.closed {
		return
	}
	t := b.transferLocked(p.TransferID)
	if t.terminal && !p.Terminal {
		b.logger.Debug(context.Background(), "update after terminal ignored", "transfer_id", p.TransferID, "status", p.Status)
		return
	}

	p.Percent = clamp(p.Percent)
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = b.now()
	}
	t.snapshot = &p
	t.terminal = t.terminal || p.Terminal

	for _, s := range t.subs {
		select {
		case s.ch <- p:
		default:
			b.logger.Warn(context.Background(), "slow subscriber dropped", "transfer_id", p.TransferID)
			delete(t.subs, s.id)
			b.closeSubLocked(s)
		}
	}
}

func (b *Broadcaster) unsubscribeLocked(s *Subscription) {
	if s.closed {
		return
	}
	b.closeSubLocked(s)

	t, ok := b.transfers[s.transferID]
	if !ok {
		return
	}
	delete(t.subs, s.id)
	if t.snapshot == nil && len(t.subs) == 0 {
		delete(b.transfers, s.transferID)
	}
}

func (b *Broadcaster) closeSubLocked(s *Subscription) {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (b *Broadcaster) expire(id string, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[id]
	if !ok || t.gen != gen {
		return
	}
	for _, s := range t.subs {
		b.closeSubLocked(s)
	}
	delete(b.transfers, id)
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
