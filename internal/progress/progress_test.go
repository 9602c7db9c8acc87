package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"envload/internal/core"
	"envload/internal/stats"
)

// lockedBuffer collects progress output written from the ticker goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newAggregator(t *testing.T) (*stats.Aggregator, *core.FakeClock) {
	t.Helper()
	clock := core.NewFakeClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	return stats.NewAggregator(stats.WithClock(clock), stats.WithWindow(10)), clock
}

func TestNewProgress(t *testing.T) {
	agg, _ := newAggregator(t)
	progress := NewProgress(agg, false)

	if progress.source != agg {
		t.Error("source not assigned")
	}
	if progress.quiet {
		t.Error("quiet should be false")
	}
}

func TestProgress_Line(t *testing.T) {
	agg, clock := newAggregator(t)
	for i := 0; i < 8; i++ {
		agg.Record(core.Outcome{Action: "a", Success: i%4 != 0, Latency: time.Millisecond})
	}
	clock.Advance(75 * time.Second)

	var buf bytes.Buffer
	progress := NewProgress(agg, false)
	progress.SetOutput(&buf)
	progress.SetUsers(func() int { return 10 })
	progress.printProgress()

	out := buf.String()
	for _, want := range []string{"\033[K[01:15]", "Requests: 8", "Errors: 2 (25.0%)", "Users: 10"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestProgress_Ticks(t *testing.T) {
	agg, _ := newAggregator(t)
	agg.Record(core.Outcome{Action: "a", Success: true})

	buf := &lockedBuffer{}
	progress := NewProgress(agg, false)
	progress.interval = 5 * time.Millisecond
	progress.SetOutput(buf)
	progress.Start()

	deadline := time.Now().Add(time.Second)
	for !strings.Contains(buf.String(), "Requests: 1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	progress.Stop()

	if !strings.Contains(buf.String(), "Requests: 1") {
		t.Errorf("expected a progress line, got %q", buf.String())
	}
}

func TestProgress_QuietMode(t *testing.T) {
	agg, _ := newAggregator(t)
	progress := NewProgress(agg, true)

	// Start and stop should not panic in quiet mode
	progress.Start()
	time.Sleep(10 * time.Millisecond)
	progress.Stop()
}

func TestProgress_DoubleStop(t *testing.T) {
	agg, _ := newAggregator(t)
	progress := NewProgress(agg, false)
	progress.SetOutput(&bytes.Buffer{})
	progress.Start()

	progress.Stop()
	progress.Stop()
}

func TestProgress_StopWithoutStart(t *testing.T) {
	agg, _ := newAggregator(t)
	progress := NewProgress(agg, false)
	progress.SetOutput(&bytes.Buffer{})

	progress.Stop()
}

func TestProgress_Print(t *testing.T) {
	agg, _ := newAggregator(t)

	var buf bytes.Buffer
	progress := NewProgress(agg, false)
	progress.SetOutput(&buf)

	progress.Print("Phase: peak (duration: 10s)")

	if got := buf.String(); got != "\033[KPhase: peak (duration: 10s)\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestProgress_Print_QuietModeDoesNotPrint(t *testing.T) {
	agg, _ := newAggregator(t)

	var buf bytes.Buffer
	progress := NewProgress(agg, true)
	progress.SetOutput(&buf)

	progress.Print("Phase: test")
	progress.Printf("Phase: %s", "test")

	if output := buf.String(); output != "" {
		t.Errorf("expected no output in quiet mode, got: %q", output)
	}
}

func TestProgress_Printf(t *testing.T) {
	agg, _ := newAggregator(t)

	var buf bytes.Buffer
	progress := NewProgress(agg, false)
	progress.SetOutput(&buf)

	progress.Printf("Phase: %s (users: %d)", "ramp_up", 10)

	if !strings.Contains(buf.String(), "Phase: ramp_up (users: 10)\n") {
		t.Errorf("expected formatted message, got: %q", buf.String())
	}
}
