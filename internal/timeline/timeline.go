package timeline

import (
	"math"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
)

const (
	platformDepth = -5.0 // platform starts below the floor
	itemRestY     = 3.0
	itemArc       = 2.0
	itemScale     = 3.0
	bobAmplitude  = 0.1
	bobSpeed      = 2.0 // rad/s
	idleSpin      = 0.6 // rad/s
)

// Transform is the visual state of one scene object
type Transform struct {
	Y         float64 `json:"y" yaml:"y"`
	RotationY float64 `json:"rotation_y" yaml:"rotation_y"`
	Scale     float64 `json:"scale" yaml:"scale"`
}

// Pose is everything the renderer needs for one frame
type Pose struct {
	Platform    Transform `json:"platform" yaml:"platform"`
	Item        Transform `json:"item" yaml:"item"`
	ItemVisible bool      `json:"item_visible" yaml:"item_visible"`
}

// Timeline evaluates poses and exit conditions for fixed durations
type Timeline struct {
	d Durations
}

// New creates a timeline; negative durations are treated as zero
func New(d Durations) Timeline {
	for _, p := range []*time.Duration{&d.Rise, &d.Pause, &d.Reveal, &d.Fail} {
		if *p < 0 {
			*p = 0
		}
	}
	return Timeline{d: d}
}

// Durations returns the configured stage lengths
func (tl Timeline) Durations() Durations {
	return tl.d
}

// Advance returns the pose for elapsed time within stage. It reads no clock.
func (tl Timeline) Advance(stage Stage, elapsed time.Duration) Pose {
	if elapsed < 0 {
		elapsed = 0
	}
	t := elapsed.Seconds()

	platformUp := Transform{Y: 0, RotationY: 2 * math.Pi, Scale: 1}

	switch stage {
	case Rising:
		f := fraction(elapsed, tl.d.Rise)
		return Pose{
			Platform: Transform{Y: platformDepth - platformDepth*f, RotationY: 2 * math.Pi * f, Scale: 1},
		}

	case AwaitingClaim:
		return Pose{Platform: platformUp}

	case Revealing:
		p := fraction(elapsed, tl.d.Reveal)
		return Pose{
			Platform: platformUp,
			Item: Transform{
				Y:         itemRestY + math.Sin(p*math.Pi)*itemArc,
				RotationY: 4 * math.Pi * p,
				Scale:     itemScale * p,
			},
			ItemVisible: p > 0,
		}

	case Settled:
		return Pose{
			Platform: platformUp,
			Item: Transform{
				Y:         itemRestY + bobAmplitude*math.Sin(bobSpeed*t),
				RotationY: 4*math.Pi + idleSpin*t,
				Scale:     itemScale,
			},
			ItemVisible: true,
		}

	case Failed:
		f := fraction(elapsed, tl.d.Fail)
		return Pose{
			Platform: platformUp,
			Item: Transform{
				Y:         itemRestY * (1 - f),
				RotationY: 4 * math.Pi,
				Scale:     itemScale * (1 - f),
			},
			ItemVisible: f < 1,
		}

	default:
		return Pose{Platform: Transform{Y: platformDepth, Scale: 1}}
	}
}

// Exited reports whether stage has finished at elapsed given gate.
// Revealing holds on its last frame until the claim settles. Failed exits
// once the item has sunk.
func (tl Timeline) Exited(stage Stage, elapsed time.Duration, gate Gate) bool {
	switch stage {
	case Rising:
		return elapsed >= tl.d.Rise
	case AwaitingClaim:
		return elapsed >= tl.d.Pause
	case Revealing:
		settled := gate.Claim == model.ClaimConfirmed || gate.Claim == model.ClaimRejected
		return elapsed >= tl.d.Reveal && settled
	case Failed:
		return elapsed >= tl.d.Fail
	default:
		return false
	}
}

// fraction returns elapsed/total clamped to [0,1]; a zero total is complete
func fraction(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 1
	}
	return math.Min(math.Max(float64(elapsed)/float64(total), 0), 1)
}
