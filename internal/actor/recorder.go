package actor

import (
	"envload/internal/core"
	"envload/internal/events"
)

// Recorder forwards every outcome to the aggregator and announces it on
// the bus as RequestCompleted.
type Recorder struct {
	reporter core.Reporter
	bus      *events.Bus
}

// NewRecorder creates a recorder. Either side may be nil.
func NewRecorder(reporter core.Reporter, bus *events.Bus) *Recorder {
	if reporter == nil {
		reporter = core.NullReporter
	}
	return &Recorder{reporter: reporter, bus: bus}
}

func (r *Recorder) Record(o core.Outcome) {
	r.reporter.Record(o)
	r.bus.Publish(events.Event{
		Kind:      events.RequestCompleted,
		Timestamp: o.Timestamp,
		Outcome:   o,
	})
}
