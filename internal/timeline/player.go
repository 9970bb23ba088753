package timeline

import (
	"fmt"
	"time"
)

// Frame is one evaluated render frame
type Frame struct {
	Stage   Stage         `json:"stage" yaml:"stage"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Pose    Pose          `json:"pose" yaml:"pose"`
	Exited  bool          `json:"exited" yaml:"exited"`
}

// Player tracks the current stage and when it was entered.
// It is not safe for concurrent use; the orchestrator drives it from one loop.
type Player struct {
	tl        Timeline
	stage     Stage
	enteredAt time.Time
}

// NewPlayer creates a player at Dormant
func NewPlayer(tl Timeline) *Player {
	return &Player{tl: tl, stage: Dormant}
}

// Enter moves to stage at now if its guard allows
func (p *Player) Enter(stage Stage, now time.Time, gate Gate) error {
	if err := CanEnter(stage, gate); err != nil {
		return fmt.Errorf("enter %s from %s: %w", stage, p.stage, err)
	}
	p.stage = stage
	p.enteredAt = now
	return nil
}

// Frame evaluates the pose at now. A now before the stage entry yields elapsed zero.
func (p *Player) Frame(now time.Time, gate Gate) Frame {
	elapsed := p.Elapsed(now)
	return Frame{
		Stage:   p.stage,
		Elapsed: elapsed,
		Pose:    p.tl.Advance(p.stage, elapsed),
		Exited:  p.tl.Exited(p.stage, elapsed, gate),
	}
}

// Elapsed returns the time spent in the current stage at now
func (p *Player) Elapsed(now time.Time) time.Duration {
	if p.enteredAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(p.enteredAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Stage returns the current stage
func (p *Player) Stage() Stage {
	return p.stage
}

// Timeline returns the underlying timeline
func (p *Player) Timeline() Timeline {
	return p.tl
}

// Reset returns to Dormant
func (p *Player) Reset() {
	p.stage = Dormant
	p.enteredAt = time.Time{}
}
