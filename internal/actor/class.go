// Package actor implements the virtual user: one goroutine that paces,
// picks a weighted action, executes it and records the outcome until the
// run is cancelled.
package actor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"envload/internal/core"
	"envload/internal/task"
)

// ErrInvalidPace reports a pace range that is negative or inverted.
var ErrInvalidPace = errors.New("invalid pace range")

// PaceRange is the think time drawn uniformly before every action.
type PaceRange struct {
	Min time.Duration
	Max time.Duration
}

// Validate requires 0 <= Min <= Max.
func (p PaceRange) Validate() error {
	if p.Min < 0 || p.Max < p.Min {
		return fmt.Errorf("%w: min %v, max %v", ErrInvalidPace, p.Min, p.Max)
	}
	return nil
}

// Draw returns a duration in [Min, Max].
func (p PaceRange) Draw(rng *rand.Rand) time.Duration {
	span := p.Max - p.Min
	if span <= 0 {
		return p.Min
	}
	return p.Min + time.Duration(rng.Int63n(int64(span)+1))
}

// StartFunc runs once per actor before its first action. A returned error
// terminates that actor.
type StartFunc func(ctx context.Context, ac *core.ActorContext, client core.Client) error

// Class describes one kind of virtual user. It must be compiled before use
// and is read-only afterwards, shared by every actor of the class.
type Class struct {
	Name    string
	Share   int
	Pace    PaceRange
	Actions []task.Spec
	OnStart StartFunc

	table *task.Table
}

// Compile validates the class and builds its selection table.
func (c *Class) Compile() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("class name is required"))
	}
	if c.Share <= 0 {
		errs = append(errs, fmt.Errorf("share must be > 0, got %d", c.Share))
	}
	if err := c.Pace.Validate(); err != nil {
		errs = append(errs, err)
	}
	table, err := task.NewTable(c.Actions)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("class %q: %w", c.Name, err)
	}
	c.table = table
	return nil
}

// Compiled reports whether Compile succeeded.
func (c *Class) Compiled() bool {
	return c.table != nil
}

// Table returns the compiled selection table, nil before Compile.
func (c *Class) Table() *task.Table {
	return c.table
}
