// Package observe subscribes structured logging and Prometheus metrics to
// the event bus of a run.
package observe

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"envload/internal/events"
	"envload/internal/stats"
)

// SlowSensorThreshold is the latency above which a [SENSOR] action is logged.
const SlowSensorThreshold = time.Second

const sensorPrefix = "[SENSOR]"

// StatsSource provides the statistics logged when a run stops.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// RunLogger writes request, fault and lifecycle events to a zap logger.
type RunLogger struct {
	logger *zap.Logger
	target string
	source StatsSource
	slow   time.Duration
}

// NewRunLogger creates a logger for a run against target. source may be
// nil, in which case the stop entry carries no summary.
func NewRunLogger(logger *zap.Logger, target string, source StatsSource) *RunLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunLogger{
		logger: logger.Named("run"),
		target: target,
		source: source,
		slow:   SlowSensorThreshold,
	}
}

// Attach subscribes the logger to every event kind it handles.
func (l *RunLogger) Attach(bus *events.Bus) {
	bus.Subscribe(events.RequestCompleted, l.onRequest)
	bus.Subscribe(events.ActorFaulted, l.onFault)
	bus.Subscribe(events.RunStarted, l.onStart)
	bus.Subscribe(events.RunStopped, l.onStop)
}

func (l *RunLogger) onRequest(ev events.Event) {
	o := ev.Outcome
	switch {
	case o.StatusCode == 0 && o.Error != "":
		l.logger.Error("request failed",
			zap.String("action", o.Action),
			zap.Int("actor_id", o.ActorID),
			zap.String("error", o.Error),
			zap.Duration("latency", o.Latency))
	case o.StatusCode >= 400:
		l.logger.Warn("request rejected",
			zap.String("action", o.Action),
			zap.Int("actor_id", o.ActorID),
			zap.Int("status", o.StatusCode),
			zap.Duration("latency", o.Latency))
	case strings.HasPrefix(o.Action, sensorPrefix) && o.Latency > l.slow:
		l.logger.Info("slow sensor request",
			zap.String("action", o.Action),
			zap.Int("actor_id", o.ActorID),
			zap.Duration("latency", o.Latency))
	}
}

func (l *RunLogger) onFault(ev events.Event) {
	l.logger.Warn("actor fault",
		zap.Int("actor_id", ev.ActorID),
		zap.String("class", ev.Class),
		zap.Error(ev.Err))
}

func (l *RunLogger) onStart(ev events.Event) {
	l.logger.Info("load test started",
		zap.String("target", l.target),
		zap.Any("classes", ev.Run.Classes),
		zap.Duration("duration", ev.Run.Duration))
}

func (l *RunLogger) onStop(events.Event) {
	if l.source == nil {
		l.logger.Info("load test stopped")
		return
	}
	s := l.source.Snapshot()
	l.logger.Info("load test stopped",
		zap.Int64("requests", s.Total.Requests),
		zap.Int64("failures", s.Total.Failures),
		zap.Duration("avg_latency", s.Total.AvgLatency()),
		zap.Float64("current_rps", s.CurrentRPS),
		zap.Duration("elapsed", s.Elapsed))
}
