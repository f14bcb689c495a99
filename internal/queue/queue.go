// Package queue serializes work per conversation key with a bounded FIFO.
//
// Each key owns one ChannelQueue. Admission is rejected (not blocked) when the
// queue is full. A queue has at most one worker goroutine; it drains items in
// arrival order, pausing ProcessingDelay between items, and exits when the
// queue empties. Different keys are processed concurrently.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxDepth        = 5
	DefaultProcessingDelay = 2500 * time.Millisecond
)

// Item is one admitted unit of work.
type Item[T any] struct {
	ID         string
	Payload    T
	EnqueuedAt time.Time
}

// ProcessFunc handles one item. An error or panic ends that item only; it is
// never re-queued.
type ProcessFunc[T any] func(ctx context.Context, key string, item Item[T]) error

// FailureFunc delivers a best-effort failure notice after ProcessFunc fails.
// Its own error is logged and dropped.
type FailureFunc[T any] func(ctx context.Context, key string, item Item[T], err error) error

// Options configures a Manager.
type Options[T any] struct {
	MaxDepth        int
	ProcessingDelay time.Duration
	Process         ProcessFunc[T]
	OnFailure       FailureFunc[T]
	Logger          *slog.Logger
}

// ChannelQueue is the FIFO for one key. The head item stays in items while it
// is being processed, so it counts toward the depth limit.
type ChannelQueue[T any] struct {
	mu    sync.Mutex
	items []Item[T]
	busy  bool
}

// Manager owns the per-key queues. Queues are created lazily and never removed.
type Manager[T any] struct {
	mu     sync.Mutex
	queues map[string]*ChannelQueue[T]
	closed bool

	maxDepth  int
	delay     time.Duration
	process   ProcessFunc[T]
	onFailure FailureFunc[T]
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager[T any](opts Options[T]) *Manager[T] {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.ProcessingDelay <= 0 {
		opts.ProcessingDelay = DefaultProcessingDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager[T]{
		queues:    make(map[string]*ChannelQueue[T]),
		maxDepth:  opts.MaxDepth,
		delay:     opts.ProcessingDelay,
		process:   opts.Process,
		onFailure: opts.OnFailure,
		logger:    opts.Logger.With("component", "queue"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *Manager[T]) queueFor(key string) *ChannelQueue[T] {
	q, ok := m.queues[key]
	if !ok {
		q = &ChannelQueue[T]{}
		m.queues[key] = q
	}
	return q
}

// Admit appends payload to key's queue and starts a worker if none is running.
// It returns false, leaving the queue untouched, when the queue is full or the
// manager is closed.
func (m *Manager[T]) Admit(key string, payload T) bool {
	// m.mu is held across the worker start so Close cannot race wg.Add.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("manager closed, rejecting item", "key", key)
		return false
	}
	q := m.queueFor(key)

	q.mu.Lock()
	if len(q.items) >= m.maxDepth {
		depth := len(q.items)
		q.mu.Unlock()
		m.mu.Unlock()
		m.logger.Warn("queue full, rejecting item", "key", key, "depth", depth, "max_depth", m.maxDepth)
		return false
	}

	item := Item[T]{ID: uuid.NewString(), Payload: payload, EnqueuedAt: time.Now()}
	q.items = append(q.items, item)
	depth := len(q.items)
	start := !q.busy
	if start {
		q.busy = true
	}
	q.mu.Unlock()

	if start {
		m.wg.Add(1)
		go m.run(key, q)
	}
	m.mu.Unlock()

	m.logger.Debug("item admitted", "key", key, "item_id", item.ID, "depth", depth)
	return true
}

// run drains q until it is empty. busy was set by the Admit call that started it.
func (m *Manager[T]) run(key string, q *ChannelQueue[T]) {
	defer m.wg.Done()

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.busy = false
			q.mu.Unlock()
			return
		}
		head := q.items[0]
		q.mu.Unlock()

		m.handle(key, head)

		q.mu.Lock()
		q.items[0] = Item[T]{}
		q.items = q.items[1:]
		remaining := len(q.items)
		if remaining == 0 {
			q.busy = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		m.pause()
	}
}

// pause waits ProcessingDelay between items; shutdown cuts it short.
func (m *Manager[T]) pause() {
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.ctx.Done():
	}
}

func (m *Manager[T]) handle(key string, item Item[T]) {
	start := time.Now()
	err := m.safeProcess(key, item)
	if err == nil {
		m.logger.Debug("item processed", "key", key, "item_id", item.ID,
			"wait_ms", start.Sub(item.EnqueuedAt).Milliseconds(),
			"duration_ms", time.Since(start).Milliseconds())
		return
	}

	m.logger.Error("item processing failed", "key", key, "item_id", item.ID, "error", err)
	if m.onFailure == nil {
		return
	}
	if nerr := m.safeNotify(key, item, err); nerr != nil {
		m.logger.Warn("failure notice not delivered", "key", key, "item_id", item.ID, "error", nerr)
	}
}

func (m *Manager[T]) safeProcess(key string, item Item[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if m.process == nil {
		return fmt.Errorf("queue: no process func configured")
	}
	return m.process(m.ctx, key, item)
}

func (m *Manager[T]) safeNotify(key string, item Item[T], cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.onFailure(m.ctx, key, item, cause)
}

// Len reports the number of items held for key, including one in progress.
func (m *Manager[T]) Len(key string) int {
	m.mu.Lock()
	q, ok := m.queues[key]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Busy reports whether key currently has a worker.
func (m *Manager[T]) Busy(key string) bool {
	m.mu.Lock()
	q, ok := m.queues[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Stats returns the depth of every known queue.
func (m *Manager[T]) Stats() map[string]int {
	m.mu.Lock()
	queues := make(map[string]*ChannelQueue[T], len(m.queues))
	for k, q := range m.queues {
		queues[k] = q
	}
	m.mu.Unlock()

	out := make(map[string]int, len(queues))
	for k, q := range queues {
		q.mu.Lock()
		out[k] = len(q.items)
		q.mu.Unlock()
	}
	return out
}

// Close stops admission, cancels the context handed to in-flight processing
// and skips pending inter-item delays. Items still queued are dropped with the
// process.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
}

// Wait blocks until every worker has exited or ctx is done.
func (m *Manager[T]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
