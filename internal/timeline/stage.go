// Package timeline computes the reveal animation as a pure function of stage and elapsed time.
package timeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
)

// Stage is a named phase of the reveal
type Stage string

const (
	Dormant       Stage = "dormant"
	Rising        Stage = "rising"
	AwaitingClaim Stage = "awaiting_claim"
	Revealing     Stage = "revealing"
	Settled       Stage = "settled"
	Failed        Stage = "failed"
)

// ErrGuard is returned when a stage is entered without its precondition
var ErrGuard = errors.New("stage entry guard failed")

// Durations are the fixed lengths of the timed stages
type Durations struct {
	Rise   time.Duration
	Pause  time.Duration
	Reveal time.Duration
	Fail   time.Duration
}

// DefaultDurations returns the standard scene timing
func DefaultDurations() Durations {
	return Durations{
		Rise:   2 * time.Second,
		Pause:  500 * time.Millisecond,
		Reveal: 2 * time.Second,
		Fail:   time.Second,
	}
}

// Gate is the slice of orchestrator state the timeline may consult
type Gate struct {
	Claim model.ClaimStatus
}

// CanEnter checks the entry precondition of stage
func CanEnter(stage Stage, gate Gate) error {
	switch stage {
	case Revealing:
		if gate.Claim == model.ClaimNone || gate.Claim == "" {
			return fmt.Errorf("%w: %s needs a submitted claim", ErrGuard, stage)
		}
	case Settled:
		if gate.Claim != model.ClaimConfirmed {
			return fmt.Errorf("%w: %s needs a confirmed claim, have %s", ErrGuard, stage, gate.Claim)
		}
	case Failed:
		if gate.Claim != model.ClaimRejected {
			return fmt.Errorf("%w: %s needs a rejected claim, have %s", ErrGuard, stage, gate.Claim)
		}
	case Dormant, Rising, AwaitingClaim:
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	return nil
}
