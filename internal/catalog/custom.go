package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"envload/internal/actor"
	"envload/internal/config"
	"envload/internal/core"
	"envload/internal/feed"
	"envload/internal/task"
	"envload/internal/template"
)

// Custom builds a class whose actions are templated requests from config.
// ${sensor} resolves to one of cc.Sensors, or to the generated sensor IDs
// when none are configured, drawn again for every action. Every action
// also draws a row from each feed.
func Custom(cc config.ClassConfig, feeds feed.Feeds) *actor.Class {
	sensors := cc.Sensors
	class := &actor.Class{
		Name:  cc.Name,
		Share: cc.Share,
		OnStart: func(ctx context.Context, ac *core.ActorContext, client core.Client) error {
			if len(sensors) > 0 {
				ac.Vars.Set(varSensors, sensors)
			} else {
				ac.Vars.Set(varSensors, SensorIDs(ac.Rand))
			}
			return nil
		},
	}
	if cc.Pace != nil {
		class.Pace = actor.PaceRange{Min: cc.Pace.Min, Max: cc.Pace.Max}
	}
	for _, a := range cc.Actions {
		class.Actions = append(class.Actions, task.Spec{
			Name:    a.Name,
			Weight:  a.Weight,
			Handler: templated(a, feeds),
		})
	}
	return class
}

// LoadFeeds opens the data files of a class. Relative paths resolve
// against dir.
func LoadFeeds(cc config.ClassConfig, dir string) (feed.Feeds, error) {
	if len(cc.Data) == 0 {
		return nil, nil
	}
	feeds := make(feed.Feeds, len(cc.Data))
	for _, d := range cc.Data {
		mode, err := feed.ParseMode(d.Mode)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", cc.Name, err)
		}
		f, err := feed.Load(d.Name, d.File, mode, dir)
		if err != nil {
			return nil, fmt.Errorf("class %q: feed %q: %w", cc.Name, d.Name, err)
		}
		feeds[d.Name] = f
	}
	return feeds, nil
}

func templated(a config.ActionConfig, feeds feed.Feeds) task.Handler {
	method := strings.ToUpper(a.Method)
	accepted := a.Accept
	if len(accepted) == 0 {
		accepted = task.AnyBelow400
	}

	return func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
		ac.Vars.Set(varSensor, ac.Pick(ac.Vars.Strings(varSensors)))
		feeds.Inject(ac.Vars, ac.Rand)

		path, err := template.Substitute(a.Path, ac.Vars, ac.Rand)
		if err != nil {
			return failed(a.Name, "template: "+err.Error())
		}
		var body any
		if a.Body != "" {
			rendered, err := template.Substitute(a.Body, ac.Vars, ac.Rand)
			if err != nil {
				return failed(a.Name, "template: "+err.Error())
			}
			body = rendered
		}

		start := time.Now()
		resp, err := client.Send(ctx, method, path, body)
		o := task.Classify(a.Name, resp, err, accepted)
		o.Timestamp = start
		if resp == nil {
			o.Latency = time.Since(start)
			return o
		}
		if !o.Success {
			return o
		}

		if err := template.Check(resp.Body, a.Expect); err != nil {
			o.Success = false
			o.Error = "expect: " + err.Error()
			return o
		}
		if len(a.Extract) > 0 {
			values, err := template.Extract(resp.Body, a.Extract)
			if err != nil {
				o.Success = false
				o.Error = "extract: " + err.Error()
				return o
			}
			for k, v := range values {
				ac.Vars.Set(k, v)
			}
		}
		return o
	}
}

func failed(action, detail string) core.Outcome {
	return core.Outcome{Action: action, Timestamp: time.Now(), Error: detail}
}
