// Package events provides the hook bus observers use to follow a run
// without actors knowing about them.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"envload/internal/core"
)

const (
	// DefaultQueueSize bounds the events waiting for dispatch.
	DefaultQueueSize = 4096
	// DefaultHandlerBudget is the soft per-handler time budget; handlers
	// running longer are logged as slow.
	DefaultHandlerBudget = 50 * time.Millisecond
	// DefaultLifecycleWait is how long Publish waits for queue space for
	// a non-request event before dropping it.
	DefaultLifecycleWait = 250 * time.Millisecond
)

// Kind identifies an event type.
type Kind int

const (
	RequestCompleted Kind = iota
	ActorFaulted
	RunStarted
	RunStopped
)

func (k Kind) String() string {
	switch k {
	case RequestCompleted:
		return "request_completed"
	case ActorFaulted:
		return "actor_faulted"
	case RunStarted:
		return "run_started"
	case RunStopped:
		return "run_stopped"
	default:
		return "unknown"
	}
}

// RunInfo describes the run for lifecycle events.
type RunInfo struct {
	Classes  map[string]int // class name -> instance count
	Duration time.Duration  // 0 = indefinite
}

// Event is the payload delivered to handlers. Which fields are set depends on Kind.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Outcome   core.Outcome // RequestCompleted
	ActorID   int          // ActorFaulted
	Class     string       // ActorFaulted
	Err       error        // ActorFaulted
	Run       RunInfo      // RunStarted, RunStopped
}

// Handler observes events. Handlers run on the bus worker, one at a time.
type Handler func(Event)

// Bus fans events out to subscribers on a single worker fed by a bounded
// queue. A full queue drops RequestCompleted events immediately and counts
// them; fault and lifecycle events wait up to the lifecycle wait for space.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler

	queue   chan Event
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
	dropped atomic.Int64
	budget  time.Duration
	wait    time.Duration
	logger  *zap.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan Event, n)
		}
	}
}

// WithLifecycleWait sets how long non-request events wait for queue space.
func WithLifecycleWait(d time.Duration) Option {
	return func(b *Bus) { b.wait = d }
}

// WithHandlerBudget sets the soft time budget per handler call.
func WithHandlerBudget(d time.Duration) Option {
	return func(b *Bus) { b.budget = d }
}

// NewBus creates a bus and starts its dispatch worker.
func NewBus(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		handlers: make(map[Kind][]Handler),
		queue:    make(chan Event, DefaultQueueSize),
		done:     make(chan struct{}),
		budget:   DefaultHandlerBudget,
		wait:     DefaultLifecycleWait,
		logger:   logger.With(zap.String("component", "event-bus")),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.dispatch()
	return b
}

// Subscribe registers h for events of kind k.
func (b *Bus) Subscribe(k Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[k] = append(b.handlers[k], h)
}

// Publish enqueues an event. Safe for concurrent use; ignored after Close
// and on a nil bus.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- ev:
		return
	default:
	}
	if ev.Kind != RequestCompleted && b.wait > 0 {
		timer := time.NewTimer(b.wait)
		defer timer.Stop()
		select {
		case b.queue <- ev:
			return
		case <-timer.C:
		}
	}
	b.dropped.Add(1)
}

// Dropped returns how many events were discarded because the queue was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting events, delivers everything already queued and
// stops the worker. Safe to call more than once.
func (b *Bus) Close() {
	b.closeMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.closeMu.Unlock()
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for ev := range b.queue {
		b.mu.RLock()
		handlers := b.handlers[ev.Kind]
		b.mu.RUnlock()
		for i, h := range handlers {
			b.invoke(ev, i, h)
		}
	}
}

func (b *Bus) invoke(ev Event, idx int, h Handler) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.Stringer("kind", ev.Kind),
				zap.Int("handler", idx),
				zap.String("panic", fmt.Sprint(r)))
		}
		if elapsed := time.Since(start); b.budget > 0 && elapsed > b.budget {
			b.logger.Warn("slow event handler",
				zap.Stringer("kind", ev.Kind),
				zap.Int("handler", idx),
				zap.Duration("elapsed", elapsed),
				zap.Duration("budget", b.budget))
		}
	}()
	h(ev)
}
