package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"envload/internal/core"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{RequestCompleted, "request_completed"},
		{ActorFaulted, "actor_faulted"},
		{RunStarted, "run_started"},
		{RunStopped, "run_stopped"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestBus_DeliversToAllHandlersOfKind(t *testing.T) {
	bus := NewBus(nil)

	var first, second, other atomic.Int32
	bus.Subscribe(RequestCompleted, func(Event) { first.Add(1) })
	bus.Subscribe(RequestCompleted, func(Event) { second.Add(1) })
	bus.Subscribe(RunStopped, func(Event) { other.Add(1) })

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Kind: RequestCompleted, Outcome: core.Outcome{Action: "a"}})
	}
	bus.Close()

	if first.Load() != 10 || second.Load() != 10 {
		t.Errorf("expected both handlers to see 10 events, got %d and %d", first.Load(), second.Load())
	}
	if other.Load() != 0 {
		t.Errorf("expected RunStopped handler untouched, got %d", other.Load())
	}
}

func TestBus_SetsTimestamp(t *testing.T) {
	bus := NewBus(nil)
	var got time.Time
	bus.Subscribe(RunStarted, func(ev Event) { got = ev.Timestamp })
	bus.Publish(Event{Kind: RunStarted})
	bus.Close()

	if got.IsZero() {
		t.Error("expected publish to stamp the event")
	}
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	obsCore, logs := observer.New(zapcore.ErrorLevel)
	bus := NewBus(zap.New(obsCore))

	var after atomic.Int32
	bus.Subscribe(ActorFaulted, func(Event) { panic("boom") })
	bus.Subscribe(ActorFaulted, func(Event) { after.Add(1) })

	bus.Publish(Event{Kind: ActorFaulted})
	bus.Publish(Event{Kind: ActorFaulted})
	bus.Close()

	if after.Load() != 2 {
		t.Errorf("expected handler after the panicking one to run twice, got %d", after.Load())
	}
	if n := logs.FilterMessage("event handler panicked").Len(); n != 2 {
		t.Errorf("expected 2 panic logs, got %d", n)
	}
}

func TestBus_SlowHandlerIsLogged(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	bus := NewBus(zap.New(obsCore), WithHandlerBudget(5*time.Millisecond))

	bus.Subscribe(RequestCompleted, func(Event) { time.Sleep(20 * time.Millisecond) })
	bus.Publish(Event{Kind: RequestCompleted})
	bus.Close()

	if logs.FilterMessage("slow event handler").Len() != 1 {
		t.Errorf("expected one slow handler warning, got %d", logs.Len())
	}
}

func TestBus_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(nil, WithQueueSize(1))

	release := make(chan struct{})
	var delivered atomic.Int32
	bus.Subscribe(RequestCompleted, func(Event) {
		<-release
		delivered.Add(1)
	})

	start := time.Now()
	for i := 0; i < 100; i++ {
		bus.Publish(Event{Kind: RequestCompleted})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("publish blocked on a slow handler for %v", elapsed)
	}

	close(release)
	bus.Close()

	if bus.Dropped() == 0 {
		t.Error("expected events to be dropped with a full queue")
	}
	if int64(delivered.Load())+bus.Dropped() != 100 {
		t.Errorf("expected delivered+dropped = 100, got %d+%d", delivered.Load(), bus.Dropped())
	}
}

func TestBus_FullQueueKeepsLifecycleEvents(t *testing.T) {
	bus := NewBus(nil, WithQueueSize(2), WithLifecycleWait(time.Second))

	release := make(chan struct{})
	bus.Subscribe(RequestCompleted, func(Event) { <-release })
	var faults, stops atomic.Int32
	bus.Subscribe(ActorFaulted, func(Event) { faults.Add(1) })
	bus.Subscribe(RunStopped, func(Event) { stops.Add(1) })

	for i := 0; i < 50; i++ {
		bus.Publish(Event{Kind: RequestCompleted})
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	bus.Publish(Event{Kind: ActorFaulted, Class: "broken"})
	bus.Publish(Event{Kind: RunStopped})
	bus.Close()

	if faults.Load() != 1 || stops.Load() != 1 {
		t.Errorf("expected fault and stop delivered, got %d/%d", faults.Load(), stops.Load())
	}
	if bus.Dropped() == 0 {
		t.Error("expected request events to be dropped")
	}
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	bus := NewBus(nil)
	var count atomic.Int64
	bus.Subscribe(RequestCompleted, func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish(Event{Kind: RequestCompleted})
			}
		}()
	}
	wg.Wait()
	bus.Close()

	if count.Load()+bus.Dropped() != 1000 {
		t.Errorf("expected 1000 events accounted for, got %d delivered, %d dropped", count.Load(), bus.Dropped())
	}
}

func TestBus_PublishAfterCloseIsIgnored(t *testing.T) {
	bus := NewBus(nil)
	var count atomic.Int32
	bus.Subscribe(RunStopped, func(Event) { count.Add(1) })
	bus.Close()
	bus.Close()

	bus.Publish(Event{Kind: RunStopped})
	if count.Load() != 0 {
		t.Errorf("expected no delivery after close, got %d", count.Load())
	}
}
