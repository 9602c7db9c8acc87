package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"envload/internal/actor"
	"envload/internal/core"
	"envload/internal/events"
	"envload/internal/ratelimit"
)

// Scheduler starts runs. It holds the collaborators shared by every actor.
type Scheduler struct {
	client   core.Client
	reporter core.Reporter
	bus      *events.Bus
	logger   *zap.Logger
}

// New creates a scheduler. reporter usually is an *actor.Recorder.
func New(client core.Client, reporter core.Reporter, bus *events.Bus, logger *zap.Logger) *Scheduler {
	if reporter == nil {
		reporter = core.NullReporter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		client:   client,
		reporter: reporter,
		bus:      bus,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// Run validates cfg, publishes RunStarted and spawns the whole mix.
// The returned Handle controls the run until its population drains.
func (s *Scheduler) Run(ctx context.Context, cfg RunConfig) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if cfg.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	h := &Handle{
		s:       s,
		cfg:     cfg,
		ctx:     runCtx,
		cancel:  cancel,
		limiter: ratelimit.NewRateLimiter(cfg.RPS),
		classes: make(map[string]*actor.Class, len(cfg.Mix)),
		members: make(map[string][]*member, len(cfg.Mix)),
		spawned: make(map[string]int, len(cfg.Mix)),
		seed:    seed,
		rng:     rand.New(rand.NewSource(seed)),
		done:    make(chan struct{}),
	}
	for _, a := range cfg.Mix {
		h.classes[a.Class.Name] = a.Class
		h.order = append(h.order, a.Class.Name)
	}

	s.bus.Publish(events.Event{
		Kind: events.RunStarted,
		Run:  events.RunInfo{Classes: cfg.Classes(), Duration: cfg.Duration},
	})
	s.logger.Debug("run starting",
		zap.Any("classes", cfg.Classes()),
		zap.Duration("duration", cfg.Duration))

	h.mu.Lock()
	for _, a := range cfg.Mix {
		for i := 0; i < a.Count; i++ {
			h.spawnLocked(a.Class)
		}
	}
	h.mu.Unlock()

	go h.watch()
	return h, nil
}

type member struct {
	actor  *actor.Actor
	cancel context.CancelFunc
}

// Handle controls a running population.
type Handle struct {
	s       *Scheduler
	cfg     RunConfig
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *ratelimit.RateLimiter

	mu      sync.Mutex
	classes map[string]*actor.Class
	order   []string
	members map[string][]*member
	spawned map[string]int
	closed  bool
	rng     *rand.Rand
	seed    int64

	nextID atomic.Int64
	active atomic.Int32
	wg     sync.WaitGroup
	done   chan struct{}
}

// spawnLocked starts one actor of class. h.mu must be held.
func (h *Handle) spawnLocked(class *actor.Class) {
	id := int(h.nextID.Add(1))
	actx, cancel := context.WithCancel(h.ctx)
	a := actor.New(id, class, h.s.client, h.s.reporter, actor.Options{
		Seed:             h.seed + int64(id),
		ActionTimeout:    h.cfg.ActionTimeout,
		MaxIterations:    h.cfg.MaxIterations,
		WarmupIterations: h.cfg.WarmupIterations,
		Limiter:          h.limiter,
		Bus:              h.s.bus,
		Logger:           h.s.logger,
	})
	m := &member{actor: a, cancel: cancel}
	h.members[class.Name] = append(h.members[class.Name], m)
	h.spawned[class.Name]++

	var jitter time.Duration
	if h.cfg.SpawnJitter > 0 {
		jitter = time.Duration(h.rng.Int63n(int64(h.cfg.SpawnJitter)))
	}

	h.active.Add(1)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.release(class.Name, m)
		defer h.recoverPanic(id, class.Name)
		if jitter > 0 {
			timer := time.NewTimer(jitter)
			select {
			case <-actx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		a.Run(actx)
	}()
}

// recoverPanic keeps a crashing actor from taking the run down.
func (h *Handle) recoverPanic(id int, class string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("actor goroutine panic: %v", r)
		h.s.logger.Error("actor crashed", zap.Int("actor_id", id), zap.String("class", class), zap.Error(err))
		h.s.bus.Publish(events.Event{Kind: events.ActorFaulted, ActorID: id, Class: class, Err: err})
	}
}

func (h *Handle) release(class string, m *member) {
	m.cancel()
	h.mu.Lock()
	list := h.members[class]
	for i, x := range list {
		if x == m {
			h.members[class] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	// With an iteration budget the run ends once every actor has used it.
	if h.active.Add(-1) == 0 && h.cfg.MaxIterations > 0 {
		h.cancel()
	}
}

// watch publishes RunStopped once the run has ended and every actor is gone.
func (h *Handle) watch() {
	<-h.ctx.Done()
	h.mu.Lock()
	h.closed = true
	for _, list := range h.members {
		for _, m := range list {
			m.cancel()
		}
	}
	spawned := make(map[string]int, len(h.spawned))
	for k, v := range h.spawned {
		spawned[k] = v
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.s.bus.Publish(events.Event{
		Kind: events.RunStopped,
		Run:  events.RunInfo{Classes: spawned, Duration: h.cfg.Duration},
	})
	h.s.logger.Debug("run stopped", zap.Any("spawned", spawned))
	close(h.done)
}

// Stop cancels the run and waits for every actor to terminate, bounded by
// ctx and by the configured StopTimeout.
func (h *Handle) Stop(ctx context.Context) error {
	h.cancel()

	var timeout <-chan time.Time
	if h.cfg.StopTimeout > 0 {
		timer := time.NewTimer(h.cfg.StopTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-h.done:
		return nil
	case <-timeout:
		return fmt.Errorf("%w (%d still active after %v)", ErrStopTimeout, h.Active(), h.cfg.StopTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w (%d still active): %w", ErrStopTimeout, h.Active(), ctx.Err())
	}
}

// Wait blocks until the run has ended and its population drained.
func (h *Handle) Wait() {
	<-h.done
}

// Done is closed after RunStopped has been published.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Context is the run context; it ends on Stop or when Duration elapses.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Scale adds (delta > 0) or retires (delta < 0) actors of a class. Retired
// actors finish their in-flight action first. Returns the applied delta.
func (h *Handle) Scale(className string, delta int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	class, ok := h.classes[className]
	if !ok {
		return 0, fmt.Errorf("unknown class %q", className)
	}
	if h.closed || h.ctx.Err() != nil {
		return 0, ErrRunStopped
	}

	switch {
	case delta > 0:
		for i := 0; i < delta; i++ {
			h.spawnLocked(class)
		}
		return delta, nil
	case delta < 0:
		list := h.members[className]
		n := -delta
		if n > len(list) {
			n = len(list)
		}
		// retire the newest first
		for _, m := range list[len(list)-n:] {
			m.cancel()
		}
		h.members[className] = list[:len(list)-n]
		return -n, nil
	}
	return 0, nil
}

// SetRPS changes the global action rate cap, 0 meaning unlimited.
func (h *Handle) SetRPS(rps int) {
	h.limiter.SetRate(rps)
}

// Active returns the number of actors that have not terminated yet.
func (h *Handle) Active() int {
	return int(h.active.Load())
}

// ActiveByClass returns the live, non-retired population per class.
func (h *Handle) ActiveByClass() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.order))
	for _, name := range h.order {
		out[name] = len(h.members[name])
	}
	return out
}

// Classes returns the run's classes in declaration order.
func (h *Handle) Classes() []*actor.Class {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*actor.Class, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.classes[name])
	}
	return out
}
