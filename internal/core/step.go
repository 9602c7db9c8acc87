package core

import (
	"context"
	"math/rand"

	"go.uber.org/zap"
)

// Variables holds per-actor state shared between the actions of one actor.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapVariables is a simple map-based Variables implementation.
// It is not safe for concurrent use; each actor owns its own.
type MapVariables struct {
	data map[string]any
}

func NewVariables() *MapVariables {
	return &MapVariables{data: make(map[string]any)}
}

func (v *MapVariables) Get(key string) (any, bool) {
	val, ok := v.data[key]
	return val, ok
}

func (v *MapVariables) Set(key string, value any) {
	v.data[key] = value
}

// Strings returns the value stored under key as a string slice.
func (v *MapVariables) Strings(key string) []string {
	val, ok := v.data[key]
	if !ok {
		return nil
	}
	s, _ := val.([]string)
	return s
}

// ActorContext is the private state of one virtual user. It is created when
// the actor starts and discarded when it stops; it is never shared.
type ActorContext struct {
	ActorID int
	Class   string
	Rand    *rand.Rand
	Vars    *MapVariables
	Logger  *zap.Logger

	// Reporter receives outcomes produced outside the action loop, such as
	// start-up health checks. Defaults to NullReporter.
	Reporter Reporter
}

// NewActorContext builds the state for one actor with its own random source.
func NewActorContext(actorID int, class string, seed int64, logger *zap.Logger) *ActorContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActorContext{
		ActorID:  actorID,
		Class:    class,
		Rand:     rand.New(rand.NewSource(seed)),
		Vars:     NewVariables(),
		Logger:   logger.With(zap.Int("actor_id", actorID), zap.String("class", class)),
		Reporter: NullReporter,
	}
}

// Pick returns a uniformly chosen element of options, or "" if empty.
func (ac *ActorContext) Pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[ac.Rand.Intn(len(options))]
}

// Uniform returns a float drawn uniformly from [min, max].
func (ac *ActorContext) Uniform(min, max float64) float64 {
	return min + ac.Rand.Float64()*(max-min)
}

// Context key for passing actor ID to transports.
type contextKey string

const actorIDContextKey contextKey = "actorID"

func ContextWithActorID(ctx context.Context, actorID int) context.Context {
	return context.WithValue(ctx, actorIDContextKey, actorID)
}

func ActorIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(actorIDContextKey).(int); ok {
		return id
	}
	return 0
}
