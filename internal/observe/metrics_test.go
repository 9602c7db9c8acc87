package observe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"envload/internal/core"
	"envload/internal/events"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetrics_Exported(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	m := NewMetrics(bus)
	m.Attach(bus)
	m.TrackActive(func() map[string]int { return map[string]int{"alert-monitor": 2} })

	for i := 0; i < 3; i++ {
		bus.Publish(events.Event{Kind: events.RequestCompleted, Outcome: core.Outcome{
			Class: "alert-monitor", Action: "[MONITOR] system stats", StatusCode: 200, Success: true, Latency: 20 * time.Millisecond,
		}})
	}
	bus.Publish(events.Event{Kind: events.RequestCompleted, Outcome: core.Outcome{
		Class: "alert-monitor", Action: "[MONITOR] system stats", StatusCode: 500, Error: "HTTP 500",
	}})
	bus.Publish(events.Event{Kind: events.ActorFaulted, Class: "alert-monitor", Err: errors.New("boom")})
	bus.Close()

	out := scrape(t, m)
	for _, want := range []string{
		`envload_requests_total{action="[MONITOR] system stats",class="alert-monitor",result="success"} 3`,
		`envload_requests_total{action="[MONITOR] system stats",class="alert-monitor",result="failure"} 1`,
		`envload_request_duration_seconds_count{action="[MONITOR] system stats"} 4`,
		`envload_actor_faults_total{class="alert-monitor"} 1`,
		`envload_active_users{class="alert-monitor"} 2`,
		`envload_events_dropped_total 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMetrics_NoActiveSource(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	defer bus.Close()
	m := NewMetrics(bus)

	if out := scrape(t, m); strings.Contains(out, "envload_active_users{") {
		t.Errorf("expected no active users series before tracking, got:\n%s", out)
	}
}

func TestMetrics_ServeStopsWithContext(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	defer bus.Close()
	m := NewMetrics(bus)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx, "127.0.0.1:0", zap.NewNop()) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
