package event

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dshills/pageview/internal/logging"
)

// Loop errors.
var (
	// ErrLoopClosed is returned when posting to a closed loop.
	ErrLoopClosed = errors.New("event loop closed")

	// ErrQueueFull is returned by Post when the queue is at capacity.
	ErrQueueFull = errors.New("event loop queue full")
)

// DefaultQueueSize is the default number of pending closures.
const DefaultQueueSize = 1024

// PanicHandler is called when a posted closure panics.
type PanicHandler func(value any, stack []byte)

// Loop runs posted closures one at a time on a single goroutine.
//
// Every piece of state that the UI reads is mutated only from closures run
// by the loop, so that state needs no locks of its own. Background workers
// never touch it directly; they Post.
type Loop struct {
	queue chan func()
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	// wake is signalled after each successful post so a host event loop
	// can interleave Drain with its own polling.
	wake chan struct{}

	logger       *logging.Logger
	panicHandler PanicHandler

	posted   atomic.Uint64
	executed atomic.Uint64
	panicked atomic.Uint64
	dropped  atomic.Uint64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithQueueSize sets the queue capacity.
func WithQueueSize(size int) LoopOption {
	return func(l *Loop) {
		if size > 0 {
			l.queue = make(chan func(), size)
		}
	}
}

// WithPanicHandler sets the handler for panicking closures.
func WithPanicHandler(h PanicHandler) LoopOption {
	return func(l *Loop) {
		l.panicHandler = h
	}
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *logging.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logging.OrNull(logger).WithComponent("loop")
	}
}

// NewLoop creates a loop. It does nothing until Run or Drain is called.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:  make(chan func(), DefaultQueueSize),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		logger: logging.NullLogger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post enqueues fn without blocking.
// Returns ErrQueueFull if the queue is at capacity.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoopClosed
	}
	select {
	case l.queue <- fn:
		l.posted.Add(1)
		l.signal()
		return nil
	default:
		l.dropped.Add(1)
		return ErrQueueFull
	}
}

// PostWait enqueues fn, blocking while the queue is full.
// It gives up when ctx is done or the loop closes.
func (l *Loop) PostWait(ctx context.Context, fn func()) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLoopClosed
	}

	select {
	case l.queue <- fn:
		l.posted.Add(1)
		l.signal()
		return nil
	case <-ctx.Done():
		l.dropped.Add(1)
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	}
}

// Run executes posted closures until ctx is done or Close is called.
// Returns ctx.Err() when the context ends and nil after Close.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.queue:
			l.execute(fn)
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			l.Drain()
			return nil
		}
	}
}

// Drain runs every closure queued at the time of the call on the calling
// goroutine and returns how many ran. It must not be called concurrently
// with Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		select {
		case fn := <-l.queue:
			l.execute(fn)
			n++
		default:
			return n
		}
	}
}

// Wake returns a channel that receives after closures are posted.
func (l *Loop) Wake() <-chan struct{} {
	return l.wake
}

// Close stops accepting closures and ends Run after draining the queue.
// It is safe to call Close multiple times.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Len returns the number of queued closures.
func (l *Loop) Len() int {
	return len(l.queue)
}

// LoopStats contains loop statistics.
type LoopStats struct {
	Posted   uint64
	Executed uint64
	Panicked uint64
	Dropped  uint64
	Pending  int
}

// Stats returns loop statistics.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Posted:   l.posted.Load(),
		Executed: l.executed.Load(),
		Panicked: l.panicked.Load(),
		Dropped:  l.dropped.Load(),
		Pending:  len(l.queue),
	}
}

// execute runs fn with panic recovery.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			stack := debug.Stack()
			l.logger.Error("posted closure panicked: %v", r)
			if l.panicHandler != nil {
				func() {
					defer func() { _ = recover() }()
					l.panicHandler(r, stack)
				}()
			}
		}
	}()
	l.executed.Add(1)
	fn()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
