package actor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"envload/internal/core"
	"envload/internal/events"
	"envload/internal/ratelimit"
	"envload/internal/task"
)

// State is the lifecycle position of an actor.
type State int32

const (
	Created State = iota
	Running
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options tune a single actor.
type Options struct {
	Seed             int64
	ActionTimeout    time.Duration // 0 = no per-action deadline
	MaxIterations    int           // 0 = unlimited
	WarmupIterations int           // first N actions are not recorded
	Limiter          *ratelimit.RateLimiter
	Bus              *events.Bus
	Logger           *zap.Logger
}

// Actor is one virtual user. Run must be called at most once.
type Actor struct {
	id       int
	class    *Class
	client   core.Client
	reporter core.Reporter
	opts     Options
	logger   *zap.Logger

	state      atomic.Int32
	iterations atomic.Int64
}

// New creates an actor of a compiled class.
func New(id int, class *Class, client core.Client, reporter core.Reporter, opts Options) *Actor {
	if reporter == nil {
		reporter = core.NullReporter
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Actor{
		id:       id,
		class:    class,
		client:   client,
		reporter: reporter,
		opts:     opts,
		logger:   opts.Logger.With(zap.Int("actor_id", id), zap.String("class", class.Name)),
	}
}

func (a *Actor) ID() int           { return a.id }
func (a *Actor) ClassName() string { return a.class.Name }
func (a *Actor) State() State      { return State(a.state.Load()) }

// Iterations returns how many actions the actor has executed.
func (a *Actor) Iterations() int { return int(a.iterations.Load()) }

// Run drives the actor until ctx is cancelled, the iteration limit is hit
// or OnStart fails. An action already executing when ctx is cancelled is
// allowed to finish (bounded by ActionTimeout) and is recorded.
func (a *Actor) Run(ctx context.Context) {
	a.state.Store(int32(Running))
	defer a.state.Store(int32(Terminated))
	defer func() {
		if r := recover(); r != nil {
			a.fault(fmt.Errorf("actor loop panic: %v", r))
		}
	}()

	ac := core.NewActorContext(a.id, a.class.Name, a.opts.Seed, a.opts.Logger)
	ac.Reporter = a.reporter

	if a.class.OnStart != nil {
		if err := a.start(ctx, ac); err != nil {
			a.fault(fmt.Errorf("on start: %w", err))
			return
		}
	}

	for {
		if ctx.Err() != nil {
			a.state.Store(int32(Stopping))
			return
		}
		done := int(a.iterations.Load())
		if a.opts.MaxIterations > 0 && done >= a.opts.MaxIterations {
			return
		}
		if !a.pace(ctx, ac) {
			a.state.Store(int32(Stopping))
			return
		}

		spec := a.class.table.Select(ac.Rand)

		if err := a.opts.Limiter.Wait(ctx); err != nil {
			a.state.Store(int32(Stopping))
			return
		}

		outcome := a.execute(ctx, ac, spec)
		if a.iterations.Add(1) > int64(a.opts.WarmupIterations) {
			a.reporter.Record(outcome)
		}
	}
}

// pace sleeps a drawn think time; false means ctx ended first.
func (a *Actor) pace(ctx context.Context, ac *core.ActorContext) bool {
	d := a.class.Pace.Draw(ac.Rand)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (a *Actor) start(ctx context.Context, ac *core.ActorContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	actx, cancel := a.actionContext(ctx)
	defer cancel()
	return a.class.OnStart(actx, ac, a.client)
}

// execute runs one handler detached from run cancellation, under its own
// deadline, and converts a panic into a failed outcome.
func (a *Actor) execute(ctx context.Context, ac *core.ActorContext, spec task.Spec) (out core.Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = core.Outcome{
				Action:  spec.Name,
				Latency: time.Since(started),
				Error:   fmt.Sprintf("panic: %v", r),
			}
			a.fault(fmt.Errorf("action %q panicked: %v", spec.Name, r))
		}
		out.Class = a.class.Name
		out.ActorID = a.id
		if out.Action == "" {
			out.Action = spec.Name
		}
		if out.Timestamp.IsZero() {
			out.Timestamp = started
		}
	}()

	actx, cancel := a.actionContext(ctx)
	defer cancel()
	return spec.Handler(actx, ac, a.client)
}

func (a *Actor) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	actx := core.ContextWithActorID(context.WithoutCancel(ctx), a.id)
	if a.opts.ActionTimeout > 0 {
		return context.WithTimeout(actx, a.opts.ActionTimeout)
	}
	return context.WithCancel(actx)
}

func (a *Actor) fault(err error) {
	a.logger.Warn("actor fault", zap.Error(err))
	a.opts.Bus.Publish(events.Event{
		Kind:    events.ActorFaulted,
		ActorID: a.id,
		Class:   a.class.Name,
		Err:     err,
	})
}
