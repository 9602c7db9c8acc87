// Package task defines actions, their weighted selection and outcome classification.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"envload/internal/core"
)

var (
	ErrEmptyTable    = errors.New("action table is empty")
	ErrInvalidWeight = errors.New("action weight must be a positive integer")
)

// Handler performs one action against the target and converts every
// failure mode into an Outcome. Handlers never return errors.
type Handler func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome

// Spec is a named action with a relative weight.
type Spec struct {
	Name    string
	Weight  int
	Handler Handler
}

// Table is an immutable cumulative weight table built once per actor class.
// Select may be called concurrently as long as each caller owns its rng.
type Table struct {
	specs      []Spec
	cumulative []int
	total      int
}

// NewTable validates the specs and precomputes cumulative weights.
func NewTable(specs []Spec) (*Table, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyTable
	}

	var errs []error
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("action %d: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("action %q: duplicate name", s.Name))
		}
		seen[s.Name] = true
		if s.Weight <= 0 {
			errs = append(errs, fmt.Errorf("action %q: %w (got %d)", s.Name, ErrInvalidWeight, s.Weight))
		}
		if s.Handler == nil {
			errs = append(errs, fmt.Errorf("action %q: handler is required", s.Name))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	t := &Table{
		specs:      make([]Spec, len(specs)),
		cumulative: make([]int, len(specs)),
	}
	copy(t.specs, specs)
	for i, s := range specs {
		t.total += s.Weight
		t.cumulative[i] = t.total
	}
	return t, nil
}

// Rand is the subset of *rand.Rand the selector needs.
type Rand interface {
	Intn(n int) int
}

// Select draws r in [0, total) and returns the matching action.
func (t *Table) Select(rng Rand) Spec {
	return t.specs[t.Index(rng.Intn(t.total))]
}

// Index maps a draw r in [0, total) to the first action whose cumulative
// weight exceeds r. Action i owns draws [cumulative[i-1], cumulative[i]).
func (t *Table) Index(r int) int {
	return sort.Search(len(t.cumulative), func(i int) bool {
		return t.cumulative[i] > r
	})
}

// IndexFloat maps a real draw u in (0, total] to an action. A draw equal to
// a cumulative boundary goes to the earlier-declared action.
func (t *Table) IndexFloat(u float64) int {
	i := sort.Search(len(t.cumulative), func(i int) bool {
		return float64(t.cumulative[i]) >= u
	})
	if i == len(t.cumulative) {
		i--
	}
	return i
}

// At returns the action selected by draw r.
func (t *Table) At(r int) Spec {
	return t.specs[t.Index(r)]
}

// Total returns the sum of all weights.
func (t *Table) Total() int {
	return t.total
}

// Len returns the number of actions.
func (t *Table) Len() int {
	return len(t.specs)
}

// Specs returns a copy of the actions in declaration order.
func (t *Table) Specs() []Spec {
	out := make([]Spec, len(t.specs))
	copy(out, t.specs)
	return out
}

// Share returns the long-run selection frequency of action i.
func (t *Table) Share(i int) float64 {
	return float64(t.specs[i].Weight) / float64(t.total)
}
