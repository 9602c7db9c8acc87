// Package stats aggregates action outcomes into live, concurrently updated statistics.
package stats

import (
	"sort"
	"sync"
	"time"

	"envload/internal/core"
)

// TotalName labels the global rollup bucket in reports.
const TotalName = "Aggregated"

// Bucket holds running counters for one action or for the whole run.
type Bucket struct {
	Requests     int64
	Failures     int64
	TotalLatency time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration
}

func (b *Bucket) add(o core.Outcome) {
	lat := o.Latency
	if lat < 0 {
		lat = 0
	}
	if b.Requests == 0 || lat < b.MinLatency {
		b.MinLatency = lat
	}
	if lat > b.MaxLatency {
		b.MaxLatency = lat
	}
	b.Requests++
	b.TotalLatency += lat
	if !o.Success {
		b.Failures++
	}
}

// AvgLatency returns TotalLatency / Requests, or 0 when empty.
func (b Bucket) AvgLatency() time.Duration {
	if b.Requests == 0 {
		return 0
	}
	return b.TotalLatency / time.Duration(b.Requests)
}

// FailureRate returns Failures / Requests in [0, 1], or 0 when empty.
func (b Bucket) FailureRate() float64 {
	if b.Requests == 0 {
		return 0
	}
	return float64(b.Failures) / float64(b.Requests)
}

// ErrorCount is how often one action failed with one detail.
type ErrorCount struct {
	Action string
	Detail string
	Count  int64
}

type errorKey struct {
	action string
	detail string
}

// Aggregator records outcomes from many actors. All methods are safe for
// concurrent use; every mutation happens under one mutex.
type Aggregator struct {
	mu      sync.Mutex
	actions map[string]*Bucket
	total   Bucket
	errors  map[errorKey]int64
	window  *window
	clock   core.Clock
	start   time.Time
	end     time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock used for throughput windows (tests use core.FakeClock).
func WithClock(c core.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithWindow sets the trailing window used for CurrentRPS.
func WithWindow(seconds int) Option {
	return func(a *Aggregator) {
		if seconds > 0 {
			a.window = newWindow(seconds)
		}
	}
}

// NewAggregator creates an empty aggregator whose run starts now.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		actions: make(map[string]*Bucket),
		errors:  make(map[errorKey]int64),
		window:  newWindow(DefaultWindowSeconds),
		clock:   core.RealClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.clock.Now()
	a.window.reset(a.start)
	return a
}

// Record adds one outcome. O(1).
func (a *Aggregator) Record(o core.Outcome) {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.actions[o.Action]
	if !ok {
		b = &Bucket{}
		a.actions[o.Action] = b
	}
	b.add(o)
	a.total.add(o)
	if !o.Success {
		a.errors[errorKey{o.Action, o.Error}]++
	}
	a.window.add(now)
}

// Stop freezes the elapsed run time used for overall throughput.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.end.IsZero() {
		a.end = a.clock.Now()
	}
}

// Snapshot copies the current state. Each bucket is internally consistent.
func (a *Aggregator) Snapshot() Snapshot {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Actions: make(map[string]Bucket, len(a.actions)),
		Total:   a.total,
		Errors:  make([]ErrorCount, 0, len(a.errors)),
	}
	for name, b := range a.actions {
		s.Actions[name] = *b
	}
	for k, n := range a.errors {
		s.Errors = append(s.Errors, ErrorCount{Action: k.action, Detail: k.detail, Count: n})
	}
	sort.Slice(s.Errors, func(i, j int) bool {
		if s.Errors[i].Count != s.Errors[j].Count {
			return s.Errors[i].Count > s.Errors[j].Count
		}
		if s.Errors[i].Action != s.Errors[j].Action {
			return s.Errors[i].Action < s.Errors[j].Action
		}
		return s.Errors[i].Detail < s.Errors[j].Detail
	})

	if a.end.IsZero() {
		s.Elapsed = now.Sub(a.start)
		s.CurrentRPS = a.window.rate(now)
	} else {
		s.Elapsed = a.end.Sub(a.start)
		s.CurrentRPS = a.window.rate(a.end)
	}
	return s
}

// Snapshot is a point-in-time copy of the aggregated statistics.
type Snapshot struct {
	Actions    map[string]Bucket
	Total      Bucket
	Errors     []ErrorCount
	Elapsed    time.Duration
	CurrentRPS float64
}

// RequestsPerSec is the overall throughput since the run started.
func (s Snapshot) RequestsPerSec() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Total.Requests) / s.Elapsed.Seconds()
}

// ActionNames returns action names sorted alphabetically.
func (s Snapshot) ActionNames() []string {
	names := make([]string, 0, len(s.Actions))
	for name := range s.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
