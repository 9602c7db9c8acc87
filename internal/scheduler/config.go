// Package scheduler owns the virtual user population: it spawns actors per
// class, scales them while running and shuts them down within a bound.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"envload/internal/actor"
)

var (
	// ErrInvalidConfig wraps every problem that prevents a run from starting.
	ErrInvalidConfig = errors.New("invalid run config")
	// ErrStopTimeout is returned when actors outlive the stop bound.
	ErrStopTimeout = errors.New("actors did not terminate before the stop timeout")
	// ErrRunStopped is returned by Scale once the run is ending.
	ErrRunStopped = errors.New("run is stopping")
)

// Allocation is the number of actors of one class.
type Allocation struct {
	Class *actor.Class
	Count int
}

// RunConfig is built once before a run and never changed afterwards.
type RunConfig struct {
	Duration         time.Duration // 0 = until stopped
	Mix              []Allocation
	SpawnJitter      time.Duration
	ActionTimeout    time.Duration
	StopTimeout      time.Duration
	MaxIterations    int
	WarmupIterations int
	RPS              int   // global cap, 0 = unlimited
	Seed             int64 // base for per-actor seeds, 0 = time based
}

// Validate checks the config and compiles any class not yet compiled.
func (c RunConfig) Validate() error {
	var errs []error
	if len(c.Mix) == 0 {
		errs = append(errs, errors.New("at least one class is required"))
	}
	seen := make(map[string]bool)
	for i, a := range c.Mix {
		if a.Class == nil {
			errs = append(errs, fmt.Errorf("mix[%d]: class is nil", i))
			continue
		}
		if seen[a.Class.Name] {
			errs = append(errs, fmt.Errorf("mix[%d]: duplicate class %q", i, a.Class.Name))
		}
		seen[a.Class.Name] = true
		if a.Count < 0 {
			errs = append(errs, fmt.Errorf("class %q: count must be >= 0", a.Class.Name))
		}
		if !a.Class.Compiled() {
			if err := a.Class.Compile(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if c.Duration < 0 || c.SpawnJitter < 0 || c.ActionTimeout < 0 || c.StopTimeout < 0 {
		errs = append(errs, errors.New("durations must be >= 0"))
	}
	if c.MaxIterations < 0 || c.WarmupIterations < 0 || c.RPS < 0 {
		errs = append(errs, errors.New("maxIterations, warmupIterations and rps must be >= 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Classes returns the allocation counts by class name.
func (c RunConfig) Classes() map[string]int {
	out := make(map[string]int, len(c.Mix))
	for _, a := range c.Mix {
		if a.Class != nil {
			out[a.Class.Name] = a.Count
		}
	}
	return out
}

// Distribute splits total users across classes in proportion to Share,
// using the largest remainder. When total >= len(classes) every class
// gets at least one user.
func Distribute(classes []*actor.Class, total int) []Allocation {
	out := make([]Allocation, len(classes))
	sum := 0
	for i, c := range classes {
		out[i].Class = c
		if c.Share > 0 {
			sum += c.Share
		}
	}
	if total <= 0 || sum == 0 {
		return out
	}

	type rem struct {
		idx  int
		frac int
	}
	rems := make([]rem, len(classes))
	assigned := 0
	for i, c := range classes {
		share := c.Share
		if share < 0 {
			share = 0
		}
		out[i].Count = total * share / sum
		assigned += out[i].Count
		rems[i] = rem{i, total * share % sum}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for i := 0; assigned < total; i++ {
		out[rems[i%len(rems)].idx].Count++
		assigned++
	}

	if total >= len(classes) {
		for i := range out {
			if out[i].Count > 0 {
				continue
			}
			donor := 0
			for j := range out {
				if out[j].Count > out[donor].Count {
					donor = j
				}
			}
			out[donor].Count--
			out[i].Count++
		}
	}
	return out
}
