// Package core defines the fundamental types shared by the simulation engine.
package core

import (
	"context"
	"time"
)

// Outcome is the result of one action executed by a virtual user.
// Outcomes are values; once built they are never mutated.
type Outcome struct {
	Action     string
	Class      string
	ActorID    int
	Timestamp  time.Time
	Success    bool
	Latency    time.Duration
	StatusCode int    // 0 when the request never got a response
	Error      string // failure detail, empty on success
}

// LatencyMillis returns the latency in milliseconds, never negative.
func (o Outcome) LatencyMillis() float64 {
	if o.Latency < 0 {
		return 0
	}
	return float64(o.Latency) / float64(time.Millisecond)
}

// Reporter receives outcomes. Implementations must be safe for concurrent use.
type Reporter interface {
	Record(Outcome)
}

// Response is what the target service returned for one request.
type Response struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// Client is the narrow contract the engine has with the system under test.
// Send returns an error only for transport faults (unreachable remote,
// deadline exceeded); any HTTP status is a Response.
type Client interface {
	Send(ctx context.Context, method, path string, body any) (*Response, error)
}

// NullReporter discards all outcomes (used during warmup).
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Record(Outcome) {}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Outcome)

func (f ReporterFunc) Record(o Outcome) { f(o) }
