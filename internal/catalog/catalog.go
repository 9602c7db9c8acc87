// Package catalog holds the virtual user classes of the environmental
// monitoring scenario and turns configuration into a run mix.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"envload/internal/actor"
	"envload/internal/config"
	"envload/internal/scheduler"
)

// Builtin returns a fresh, uncompiled built-in class.
func Builtin(name string, target config.TargetConfig) (*actor.Class, error) {
	switch name {
	case config.ClassEnvironmental:
		return Environmental(target.RegistryURL), nil
	case config.ClassHighVolume:
		return HighVolume(), nil
	case config.ClassAlertMonitor:
		return AlertMonitor(), nil
	}
	return nil, fmt.Errorf("unknown builtin class %q (known: %s)", name, strings.Join(BuiltinNames(), ", "))
}

// BuiltinNames lists the built-in classes.
func BuiltinNames() []string {
	return []string{config.ClassEnvironmental, config.ClassHighVolume, config.ClassAlertMonitor}
}

// Class resolves one class config of cfg into a compiled class. Builtins
// take their name, share and pace overrides from cc.
func Class(cc config.ClassConfig, cfg *config.Config) (*actor.Class, error) {
	var class *actor.Class
	if cc.Builtin != "" {
		b, err := Builtin(cc.Builtin, cfg.Target)
		if err != nil {
			return nil, err
		}
		class = b
		if cc.Name != "" {
			class.Name = cc.Name
		}
		if cc.Share > 0 {
			class.Share = cc.Share
		}
		if cc.Pace != nil {
			class.Pace = actor.PaceRange{Min: cc.Pace.Min, Max: cc.Pace.Max}
		}
	} else {
		feeds, err := LoadFeeds(cc, cfg.Dir)
		if err != nil {
			return nil, err
		}
		class = Custom(cc, feeds)
	}
	// fixed-size classes still need a share for profile scaling
	if class.Share <= 0 {
		class.Share = cc.Users
	}
	if err := class.Compile(); err != nil {
		return nil, err
	}
	return class, nil
}

// Build compiles every enabled class and sizes it. Classes with a fixed
// users count keep it; run.users is split across the rest by share.
func Build(cfg *config.Config) ([]scheduler.Allocation, error) {
	enabled := cfg.EnabledClasses()
	mix := make([]scheduler.Allocation, len(enabled))
	var shared []*actor.Class
	var sharedIdx []int
	var errs []error

	for i, cc := range enabled {
		class, err := Class(cc, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mix[i] = scheduler.Allocation{Class: class, Count: cc.Users}
		if cc.Users == 0 {
			shared = append(shared, class)
			sharedIdx = append(sharedIdx, i)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	for j, a := range scheduler.Distribute(shared, cfg.Run.Users) {
		mix[sharedIdx[j]].Count = a.Count
	}
	return mix, nil
}

// Describe prints every class with its pace, size and the selection share
// of each action.
func Describe(w io.Writer, mix []scheduler.Allocation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, a := range mix {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		c := a.Class
		fmt.Fprintf(tw, "%s\tshare %d\tusers %d\tpace %v-%v\n", c.Name, c.Share, a.Count, c.Pace.Min, c.Pace.Max)

		table := c.Table()
		if table == nil {
			continue
		}
		specs := table.Specs()
		order := make([]int, len(specs))
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(x, y int) bool {
			return specs[order[x]].Weight > specs[order[y]].Weight
		})
		for _, k := range order {
			fmt.Fprintf(tw, "  %s\tweight %d\t%.1f%%\n", specs[k].Name, specs[k].Weight, table.Share(k)*100)
		}
	}
	return tw.Flush()
}
