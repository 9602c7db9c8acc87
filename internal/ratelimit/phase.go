package ratelimit

import (
	"time"

	"envload/internal/config"
	"envload/internal/core"
)

// PhaseManager maps elapsed run time onto a sequence of load profile phases.
type PhaseManager struct {
	phases    []config.Phase
	startTime time.Time
	clock     core.Clock
}

// NewPhaseManager creates a PhaseManager with a real clock.
func NewPhaseManager(phases []config.Phase) *PhaseManager {
	return NewPhaseManagerWithClock(phases, core.RealClock{})
}

// NewPhaseManagerWithClock creates a PhaseManager with a custom clock (for testing).
func NewPhaseManagerWithClock(phases []config.Phase, clock core.Clock) *PhaseManager {
	return &PhaseManager{
		phases:    phases,
		startTime: clock.Now(),
		clock:     clock,
	}
}

func (pm *PhaseManager) Elapsed() time.Duration {
	return pm.clock.Since(pm.startTime)
}

// CurrentPhaseIndex returns len(phases) once every phase has elapsed.
func (pm *PhaseManager) CurrentPhaseIndex() int {
	idx, _ := pm.locate()
	return idx
}

func (pm *PhaseManager) CurrentPhase() *config.Phase {
	idx := pm.CurrentPhaseIndex()
	if idx >= len(pm.phases) {
		return nil
	}
	return &pm.phases[idx]
}

func (pm *PhaseManager) IsComplete() bool {
	return pm.CurrentPhaseIndex() >= len(pm.phases)
}

// TargetUsers is the population the current phase asks for. A ramp phase
// interpolates linearly from StartUsers to EndUsers.
func (pm *PhaseManager) TargetUsers() int {
	idx, into := pm.locate()
	if idx >= len(pm.phases) {
		return 0
	}
	phase := pm.phases[idx]
	if phase.Users > 0 {
		return phase.Users
	}
	if phase.StartUsers == phase.EndUsers {
		return phase.StartUsers
	}
	progress := float64(into) / float64(phase.Duration)
	if progress > 1 {
		progress = 1
	}
	delta := float64(phase.EndUsers - phase.StartUsers)
	return phase.StartUsers + int(delta*progress)
}

func (pm *PhaseManager) CurrentRPS() int {
	phase := pm.CurrentPhase()
	if phase == nil {
		return 0
	}
	return phase.RPS
}

// locate returns the active phase index and the time spent inside it.
func (pm *PhaseManager) locate() (int, time.Duration) {
	elapsed := pm.Elapsed()
	var phaseStart time.Duration
	for i, p := range pm.phases {
		if elapsed < phaseStart+p.Duration {
			return i, elapsed - phaseStart
		}
		phaseStart += p.Duration
	}
	return len(pm.phases), 0
}
