package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"envload/internal/config"
	"envload/internal/ratelimit"
)

// phaseTickInterval is how often the population is reconciled with the
// current phase target.
const phaseTickInterval = 100 * time.Millisecond

// PhaseFunc is called once when a phase begins, with its initial target.
type PhaseFunc func(phase config.Phase, targetUsers int)

// FollowProfile drives the population through phases, splitting each
// target across classes by share and applying per-phase rps. It returns
// when every phase has elapsed, the run ends or ctx is cancelled. Actors
// are left running; the caller decides when to Stop.
func (h *Handle) FollowProfile(ctx context.Context, phases []config.Phase, onPhase PhaseFunc) error {
	return h.followProfile(ctx, ratelimit.NewPhaseManager(phases), onPhase)
}

func (h *Handle) followProfile(ctx context.Context, pm *ratelimit.PhaseManager, onPhase PhaseFunc) error {
	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	currentPhase := -1
	for {
		if pm.IsComplete() {
			return nil
		}
		if idx := pm.CurrentPhaseIndex(); idx != currentPhase {
			currentPhase = idx
			phase := pm.CurrentPhase()
			h.s.logger.Info("phase started",
				zap.String("phase", phase.Name),
				zap.Duration("duration", phase.Duration),
				zap.Int("target_users", pm.TargetUsers()),
				zap.Int("rps", phase.RPS))
			if onPhase != nil {
				onPhase(*phase, pm.TargetUsers())
			}
		}
		if err := h.reconcile(pm.TargetUsers()); err != nil {
			return err
		}
		if rps := pm.CurrentRPS(); rps > 0 {
			h.SetRPS(rps)
		} else {
			h.SetRPS(h.cfg.RPS)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return nil
		case <-ticker.C:
		}
	}
}

// reconcile scales every class towards its share of target.
func (h *Handle) reconcile(target int) error {
	current := h.ActiveByClass()
	for _, a := range Distribute(h.Classes(), target) {
		if delta := a.Count - current[a.Class.Name]; delta != 0 {
			if _, err := h.Scale(a.Class.Name, delta); err != nil {
				if errors.Is(err, ErrRunStopped) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}
