// Package worker provides a single-consumer, run-to-completion message loop.
//
// Messages are handled one at a time, in the order they were posted, on a
// single goroutine. Posting never blocks: the mailbox grows as needed.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// HandlerFunc handles a single message.
type HandlerFunc[M any] func(M)

// CancelFunc cancels a delayed message. It is safe to call more than once,
// and after the message has been handled.
type CancelFunc func()

// StopMode selects what happens to pending messages on Stop.
type StopMode uint8

// The different stop modes.
const (
	// Drain handles every pending message before stopping.
	Drain StopMode = iota

	// Discard drops every pending message.
	Discard
)

// envelope wraps a message in the mailbox.
type envelope[M any] struct {
	msg M

	canceled *atomic.Bool
	barrier  chan struct{}
}

// Worker is a single-consumer FIFO message loop.
type Worker[M any] struct {
	name   string
	handle HandlerFunc[M]
	logger *slog.Logger

	mu      sync.Mutex
	mailbox []envelope[M]
	timers  map[*time.Timer]struct{}
	closed  bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	started  atomic.Bool
	stopping atomic.Bool
	mode     atomic.Uint32

	processed *xsync.Counter
	dropped   *xsync.Counter
	canceled  *xsync.Counter
}

// Stats holds the message counters of a worker.
type Stats struct {
	Processed int64
	Dropped   int64
	Canceled  int64
}

// New returns a new worker that passes every message to handle.
func New[M any](name string, logger *slog.Logger, handle HandlerFunc[M]) *Worker[M] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker[M]{
		name:      name,
		handle:    handle,
		logger:    logger,
		timers:    make(map[*time.Timer]struct{}),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		processed: xsync.NewCounter(),
		dropped:   xsync.NewCounter(),
		canceled:  xsync.NewCounter(),
	}
}

// Start starts the message loop. The loop stops on Stop,
// or when ctx is done (pending messages are then discarded).
func (w *Worker[M]) Start(ctx context.Context) {
	if w.stopping.Load() || w.started.Swap(true) {
		return
	}

	go w.run(ctx)
}

// Post appends a message to the mailbox.
// It returns false if the worker is stopping.
func (w *Worker[M]) Post(msg M) bool {
	return w.enqueue(envelope[M]{msg: msg})
}

// PostDelayed posts msg after d has elapsed. If the returned CancelFunc is
// called first, the message is never handled, even if it is already queued.
func (w *Worker[M]) PostDelayed(msg M, d time.Duration) CancelFunc {
	canceled := atomic.NewBool(false)

	// The timer callback takes the lock before reading timer,
	// so it always observes the assignment below.
	var timer *time.Timer

	w.mu.Lock()
	timer = time.AfterFunc(d, func() {
		w.mu.Lock()
		delete(w.timers, timer)
		w.mu.Unlock()

		if !canceled.Load() {
			w.enqueue(envelope[M]{msg: msg, canceled: canceled})
		}
	})
	w.timers[timer] = struct{}{}
	w.mu.Unlock()

	return func() {
		if canceled.Swap(true) {
			return
		}

		w.mu.Lock()
		defer w.mu.Unlock()

		if timer.Stop() {
			delete(w.timers, timer)
		}
	}
}

// Sync waits until every message posted before the call has been handled.
func (w *Worker[M]) Sync(ctx context.Context) error {
	barrier := make(chan struct{})
	if !w.enqueue(envelope[M]{barrier: barrier}) {
		return errorkinds.ErrWorkerStopped
	}

	select {
	case <-barrier:
		return nil

	case <-w.done:
		return errorkinds.ErrWorkerStopped

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting messages, handles or drops the pending ones
// according to mode, and waits for the loop to exit.
func (w *Worker[M]) Stop(mode StopMode) {
	if w.stopping.Swap(true) {
		<-w.done
		return
	}

	w.mode.Store(uint32(mode))

	w.mu.Lock()
	for timer := range w.timers {
		timer.Stop()
	}
	clear(w.timers)
	w.mu.Unlock()

	close(w.quit)

	if !w.started.Load() {
		w.finish(false)
		return
	}

	<-w.done
}

// Done returns a channel that is closed once the loop has exited.
func (w *Worker[M]) Done() <-chan struct{} {
	return w.done
}

// Stats returns the message counters.
func (w *Worker[M]) Stats() Stats {
	return Stats{
		Processed: w.processed.Value(),
		Dropped:   w.dropped.Value(),
		Canceled:  w.canceled.Value(),
	}
}

func (w *Worker[M]) enqueue(e envelope[M]) bool {
	w.mu.Lock()
	if w.closed || w.stopping.Load() {
		w.mu.Unlock()
		w.dropped.Inc()

		return false
	}

	w.mailbox = append(w.mailbox, e)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}

	return true
}

func (w *Worker[M]) run(ctx context.Context) {
	for {
		select {
		case <-w.wake:
			w.dispatch()

		case <-w.quit:
			w.finish(StopMode(w.mode.Load()) == Drain)
			return

		case <-ctx.Done():
			w.stopping.Store(true)
			w.finish(false)
			return
		}
	}
}

// dispatch handles the mailbox contents one message at a time, so that
// a Stop arriving mid-batch does not wait for the whole batch.
func (w *Worker[M]) dispatch() {
	for {
		select {
		case <-w.quit:
			return
		default:
		}

		e, ok := w.pop()
		if !ok {
			return
		}

		w.deliver(e)
	}
}

func (w *Worker[M]) finish(drain bool) {
	for {
		e, ok := w.popOrClose()
		if !ok {
			break
		}

		switch {
		case e.barrier != nil:
			close(e.barrier)

		case drain:
			w.deliver(e)

		default:
			w.dropped.Inc()
		}
	}

	if drain {
		w.logger.Debug("worker stopped", "worker", w.name, "mode", "drain")
	} else {
		w.logger.Debug("worker stopped", "worker", w.name, "mode", "discard")
	}

	close(w.done)
}

func (w *Worker[M]) pop() (envelope[M], bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.mailbox) == 0 {
		return envelope[M]{}, false
	}

	e := w.mailbox[0]
	w.mailbox[0] = envelope[M]{}
	w.mailbox = w.mailbox[1:]

	return e, true
}

// popOrClose is like pop, but closes the mailbox once it is empty,
// so that every later enqueue is counted as dropped.
func (w *Worker[M]) popOrClose() (envelope[M], bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.mailbox) == 0 {
		w.closed = true
		return envelope[M]{}, false
	}

	e := w.mailbox[0]
	w.mailbox[0] = envelope[M]{}
	w.mailbox = w.mailbox[1:]

	return e, true
}

func (w *Worker[M]) deliver(e envelope[M]) {
	switch {
	case e.barrier != nil:
		close(e.barrier)

	case e.canceled != nil && e.canceled.Load():
		w.canceled.Inc()

	default:
		w.processed.Inc()
		w.handle(e.msg)
	}
}
