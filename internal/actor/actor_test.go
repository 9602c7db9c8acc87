package actor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"envload/internal/core"
	"envload/internal/events"
	"envload/internal/task"
)

type collector struct {
	mu       sync.Mutex
	outcomes []core.Outcome
}

func (c *collector) Record(o core.Outcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

func (c *collector) all() []core.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Outcome(nil), c.outcomes...)
}

func okHandler(name string) task.Handler {
	return func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
		return core.Outcome{Action: name, Success: true, StatusCode: 200, Latency: time.Millisecond}
	}
}

func compiled(t *testing.T, c *Class) *Class {
	t.Helper()
	if err := c.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return c
}

func waitForState(t *testing.T, a *Actor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for a.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("actor never reached %v, stuck in %v", want, a.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Created, "created"},
		{Running, "running"},
		{Stopping, "stopping"},
		{Terminated, "terminated"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestActor_MaxIterations(t *testing.T) {
	class := compiled(t, &Class{Name: "c", Share: 1, Actions: []task.Spec{{Name: "a", Weight: 1, Handler: okHandler("a")}}})
	rec := &collector{}
	a := New(1, class, nil, rec, Options{MaxIterations: 5})

	if a.State() != Created {
		t.Fatalf("expected created before Run, got %v", a.State())
	}
	a.Run(context.Background())

	if a.State() != Terminated {
		t.Errorf("expected terminated, got %v", a.State())
	}
	got := rec.all()
	if len(got) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(got))
	}
	for _, o := range got {
		if o.ActorID != 1 || o.Class != "c" || o.Action != "a" || o.Timestamp.IsZero() {
			t.Errorf("outcome not stamped: %+v", o)
		}
	}
}

func TestActor_WarmupNotRecorded(t *testing.T) {
	class := compiled(t, &Class{Name: "c", Share: 1, Actions: []task.Spec{{Name: "a", Weight: 1, Handler: okHandler("a")}}})
	rec := &collector{}
	a := New(1, class, nil, rec, Options{MaxIterations: 5, WarmupIterations: 2})
	a.Run(context.Background())

	if a.Iterations() != 5 {
		t.Errorf("expected 5 iterations, got %d", a.Iterations())
	}
	if n := len(rec.all()); n != 3 {
		t.Errorf("expected 3 recorded outcomes after warmup, got %d", n)
	}
}

func TestActor_PaceIsInterruptible(t *testing.T) {
	class := compiled(t, &Class{
		Name: "slow", Share: 1,
		Pace:    PaceRange{Min: time.Hour, Max: time.Hour},
		Actions: []task.Spec{{Name: "a", Weight: 1, Handler: okHandler("a")}},
	})
	a := New(1, class, nil, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	waitForState(t, a, Running)

	start := time.Now()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("actor did not stop while pacing")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("stop took %v", elapsed)
	}
	if a.Iterations() != 0 {
		t.Errorf("expected no action, got %d", a.Iterations())
	}
}

func TestActor_InFlightActionCompletesAfterCancel(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	handler := func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
		once.Do(func() { close(started) })
		time.Sleep(50 * time.Millisecond)
		if ctx.Err() != nil {
			return core.Outcome{Action: "slow", Error: ctx.Err().Error()}
		}
		return core.Outcome{Action: "slow", Success: true, StatusCode: 201}
	}
	class := compiled(t, &Class{Name: "c", Share: 1, Actions: []task.Spec{{Name: "slow", Weight: 1, Handler: handler}}})
	rec := &collector{}
	a := New(1, class, nil, rec, Options{ActionTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	<-started
	cancel()
	<-done

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected the in-flight action to be recorded once, got %d", len(got))
	}
	if !got[0].Success {
		t.Errorf("expected in-flight action to finish unaffected, got %+v", got[0])
	}
}

func TestActor_ActionTimeout(t *testing.T) {
	handler := func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
		<-ctx.Done()
		return core.Outcome{Action: "hang", Error: ctx.Err().Error()}
	}
	class := compiled(t, &Class{Name: "c", Share: 1, Actions: []task.Spec{{Name: "hang", Weight: 1, Handler: handler}}})
	rec := &collector{}
	a := New(1, class, nil, rec, Options{ActionTimeout: 20 * time.Millisecond, MaxIterations: 1})

	start := time.Now()
	a.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("deadline not applied, took %v", elapsed)
	}
	got := rec.all()
	if len(got) != 1 || got[0].Success || !strings.Contains(got[0].Error, "deadline") {
		t.Errorf("expected a deadline failure, got %+v", got)
	}
}

func TestActor_HandlerPanicIsRecordedAndLoopContinues(t *testing.T) {
	bus := events.NewBus(nil)
	var faults []events.Event
	var mu sync.Mutex
	bus.Subscribe(events.ActorFaulted, func(ev events.Event) {
		mu.Lock()
		faults = append(faults, ev)
		mu.Unlock()
	})

	calls := 0
	handler := func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return core.Outcome{Action: "flaky", Success: true}
	}
	class := compiled(t, &Class{Name: "c", Share: 1, Actions: []task.Spec{{Name: "flaky", Weight: 1, Handler: handler}}})
	rec := &collector{}
	a := New(7, class, nil, rec, Options{MaxIterations: 3, Bus: bus})
	a.Run(context.Background())
	bus.Close()

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	if got[0].Success || got[0].Error != "panic: boom" || got[0].Action != "flaky" {
		t.Errorf("expected panic outcome, got %+v", got[0])
	}
	if !got[1].Success || !got[2].Success {
		t.Error("expected loop to continue after panic")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(faults) != 1 || faults[0].ActorID != 7 || faults[0].Class != "c" {
		t.Errorf("expected one fault event for actor 7, got %+v", faults)
	}
}

func TestActor_OnStartFailureTerminates(t *testing.T) {
	bus := events.NewBus(nil)
	var faulted []error
	bus.Subscribe(events.ActorFaulted, func(ev events.Event) { faulted = append(faulted, ev.Err) })

	errDown := errors.New("registry down")
	class := compiled(t, &Class{
		Name: "c", Share: 1,
		Actions: []task.Spec{{Name: "a", Weight: 1, Handler: okHandler("a")}},
		OnStart: func(ctx context.Context, ac *core.ActorContext, client core.Client) error {
			return errDown
		},
	})
	rec := &collector{}
	a := New(1, class, nil, rec, Options{Bus: bus})
	a.Run(context.Background())
	bus.Close()

	if a.State() != Terminated {
		t.Errorf("expected terminated, got %v", a.State())
	}
	if len(rec.all()) != 0 {
		t.Error("expected no actions after a failed start")
	}
	if len(faulted) != 1 || !errors.Is(faulted[0], errDown) {
		t.Errorf("expected wrapped start error, got %v", faulted)
	}
}

func TestActor_OnStartSharesState(t *testing.T) {
	class := compiled(t, &Class{
		Name: "c", Share: 1,
		OnStart: func(ctx context.Context, ac *core.ActorContext, client core.Client) error {
			ac.Vars.Set("sensor", "TEMP-1234")
			ac.Reporter.Record(core.Outcome{Action: "[HEALTH] registry", Success: true})
			return nil
		},
		Actions: []task.Spec{{Name: "read", Weight: 1, Handler: func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
			v, _ := ac.Vars.Get("sensor")
			return core.Outcome{Action: "read", Success: v == "TEMP-1234"}
		}}},
	})
	rec := &collector{}
	New(1, class, nil, rec, Options{MaxIterations: 2}).Run(context.Background())

	got := rec.all()
	if len(got) != 3 || got[0].Action != "[HEALTH] registry" {
		t.Fatalf("expected health check then 2 reads, got %+v", got)
	}
	if !got[1].Success || !got[2].Success {
		t.Error("expected actions to see variables set in OnStart")
	}
}

func TestActor_SeededSelectionIsReproducible(t *testing.T) {
	class := compiled(t, &Class{Name: "c", Share: 1, Actions: []task.Spec{
		{Name: "a", Weight: 1, Handler: okHandler("a")},
		{Name: "b", Weight: 1, Handler: okHandler("b")},
		{Name: "c", Weight: 1, Handler: okHandler("c")},
	}})
	run := func() []string {
		rec := &collector{}
		New(1, class, nil, rec, Options{Seed: 99, MaxIterations: 20}).Run(context.Background())
		var names []string
		for _, o := range rec.all() {
			names = append(names, o.Action)
		}
		return names
	}
	first, second := run(), run()
	if strings.Join(first, ",") != strings.Join(second, ",") {
		t.Errorf("same seed gave different sequences:\n%v\n%v", first, second)
	}
}
