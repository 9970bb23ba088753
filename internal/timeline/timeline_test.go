package timeline

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestAdvance_RisingCurve(t *testing.T) {
	tl := New(DefaultDurations())

	tests := []struct {
		elapsed time.Duration
		wantY   float64
		wantRot float64
	}{
		{0, -5, 0},
		{time.Second, -2.5, math.Pi},
		{2 * time.Second, 0, 2 * math.Pi},
		{5 * time.Second, 0, 2 * math.Pi}, // clamped after the rise
		{-time.Second, -5, 0},             // negative clamps to zero
	}

	for _, tt := range tests {
		pose := tl.Advance(Rising, tt.elapsed)
		if !near(pose.Platform.Y, tt.wantY) || !near(pose.Platform.RotationY, tt.wantRot) {
			t.Errorf("Rising at %v: expected y=%v rot=%v, got y=%v rot=%v",
				tt.elapsed, tt.wantY, tt.wantRot, pose.Platform.Y, pose.Platform.RotationY)
		}
		if pose.ItemVisible {
			t.Errorf("Rising at %v: expected item hidden", tt.elapsed)
		}
	}
}

func TestAdvance_RevealCurve(t *testing.T) {
	tl := New(DefaultDurations())

	mid := tl.Advance(Revealing, time.Second)
	if !near(mid.Item.Y, 5) || !near(mid.Item.RotationY, 2*math.Pi) || !near(mid.Item.Scale, 1.5) {
		t.Errorf("Expected mid-reveal y=5 rot=2π scale=1.5, got %+v", mid.Item)
	}

	end := tl.Advance(Revealing, 2*time.Second)
	held := tl.Advance(Revealing, 10*time.Second)
	if end != held {
		t.Errorf("Expected reveal to hold its last frame, got %+v then %+v", end, held)
	}
	if !near(end.Item.Y, 3) || !near(end.Item.Scale, 3) {
		t.Errorf("Expected final reveal pose y=3 scale=3, got %+v", end.Item)
	}

	// settled starts where reveal ended
	settled := tl.Advance(Settled, 0)
	if !near(settled.Item.Y, end.Item.Y) || !near(settled.Item.Scale, end.Item.Scale) {
		t.Errorf("Expected settled to continue from reveal, got %+v vs %+v", settled.Item, end.Item)
	}
}

func TestAdvance_IsPure(t *testing.T) {
	tl := New(DefaultDurations())
	stages := []Stage{Dormant, Rising, AwaitingClaim, Revealing, Settled, Failed}
	times := []time.Duration{3 * time.Second, 0, time.Second, 3 * time.Second, -time.Second}

	for _, stage := range stages {
		for _, at := range times {
			if a, b := tl.Advance(stage, at), tl.Advance(stage, at); a != b {
				t.Errorf("%s at %v: expected identical poses, got %+v and %+v", stage, at, a, b)
			}
		}
	}
}

func TestAdvance_SettledBob(t *testing.T) {
	tl := New(DefaultDurations())
	peak := math.Pi / 4 * float64(time.Second)
	pose := tl.Advance(Settled, time.Duration(peak))
	if !near(pose.Item.Y, 3.1) {
		t.Errorf("Expected bob peak 3.1, got %v", pose.Item.Y)
	}
}

func TestAdvance_FailedSinks(t *testing.T) {
	tl := New(DefaultDurations())
	start := tl.Advance(Failed, 0)
	end := tl.Advance(Failed, time.Second)

	if !start.ItemVisible || end.ItemVisible {
		t.Errorf("Expected item visible at start and hidden at end, got %v / %v", start.ItemVisible, end.ItemVisible)
	}
	if !near(end.Item.Scale, 0) {
		t.Errorf("Expected failed item to shrink to zero, got %v", end.Item.Scale)
	}
}

func TestExited(t *testing.T) {
	tl := New(DefaultDurations())
	pending := Gate{Claim: model.ClaimPending}
	confirmed := Gate{Claim: model.ClaimConfirmed}
	rejected := Gate{Claim: model.ClaimRejected}

	tests := []struct {
		name    string
		stage   Stage
		elapsed time.Duration
		gate    Gate
		want    bool
	}{
		{"rising before", Rising, 1999 * time.Millisecond, pending, false},
		{"rising at", Rising, 2 * time.Second, pending, true},
		{"pause before", AwaitingClaim, 499 * time.Millisecond, pending, false},
		{"pause at", AwaitingClaim, 500 * time.Millisecond, pending, true},
		{"reveal early confirmed", Revealing, time.Second, confirmed, false},
		{"reveal done pending holds", Revealing, time.Hour, pending, false},
		{"reveal done confirmed", Revealing, 2 * time.Second, confirmed, true},
		{"reveal done rejected", Revealing, 2 * time.Second, rejected, true},
		{"settled never", Settled, time.Hour, confirmed, false},
		{"failed sinking", Failed, 999 * time.Millisecond, rejected, false},
		{"failed sunk", Failed, time.Second, rejected, true},
		{"dormant never", Dormant, time.Hour, confirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tl.Exited(tt.stage, tt.elapsed, tt.gate); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCanEnter(t *testing.T) {
	tests := []struct {
		stage Stage
		claim model.ClaimStatus
		ok    bool
	}{
		{Rising, model.ClaimNone, true},
		{Revealing, model.ClaimNone, false},
		{Revealing, model.ClaimPending, true},
		{Settled, model.ClaimPending, false},
		{Settled, model.ClaimRejected, false},
		{Settled, model.ClaimConfirmed, true},
		{Failed, model.ClaimConfirmed, false},
		{Failed, model.ClaimRejected, true},
		{Stage("bogus"), model.ClaimConfirmed, false},
	}

	for _, tt := range tests {
		err := CanEnter(tt.stage, Gate{Claim: tt.claim})
		if (err == nil) != tt.ok {
			t.Errorf("CanEnter(%s, %s): expected ok=%v, got %v", tt.stage, tt.claim, tt.ok, err)
		}
	}
}

func TestPlayer_HoldRule(t *testing.T) {
	p := NewPlayer(New(DefaultDurations()))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pending := Gate{Claim: model.ClaimPending}

	if err := p.Enter(Revealing, base, pending); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}

	// scripted frames at 60fps for 5 seconds, claim never settles
	for i := 0; i <= 300; i++ {
		now := base.Add(time.Duration(i) * time.Second / 60)
		frame := p.Frame(now, pending)
		if frame.Exited {
			t.Fatalf("Frame %d: reveal exited while claim pending", i)
		}
		if err := p.Enter(Settled, now, pending); !errors.Is(err, ErrGuard) {
			t.Fatalf("Frame %d: expected guard to refuse Settled, got %v", i, err)
		}
	}

	frame := p.Frame(base.Add(5*time.Second), Gate{Claim: model.ClaimConfirmed})
	if !frame.Exited {
		t.Error("Expected reveal to exit once confirmed")
	}
	if err := p.Enter(Settled, base.Add(5*time.Second), Gate{Claim: model.ClaimConfirmed}); err != nil {
		t.Errorf("Expected Settled to be allowed, got %v", err)
	}
}

func TestPlayer_NonMonotonicClock(t *testing.T) {
	p := NewPlayer(New(DefaultDurations()))
	base := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	p.Enter(Rising, base, Gate{})

	late := p.Frame(base.Add(time.Second), Gate{})
	early := p.Frame(base.Add(-time.Second), Gate{})
	if early.Elapsed != 0 {
		t.Errorf("Expected clamped elapsed 0, got %v", early.Elapsed)
	}
	if early.Pose != New(DefaultDurations()).Advance(Rising, 0) {
		t.Errorf("Expected start pose for a timestamp before entry, got %+v", early.Pose)
	}
	if again := p.Frame(base.Add(time.Second), Gate{}); again != late {
		t.Errorf("Expected replayed frame to match, got %+v vs %+v", again, late)
	}

	p.Reset()
	if p.Stage() != Dormant || p.Elapsed(base) != 0 {
		t.Errorf("Expected reset to Dormant, got %s", p.Stage())
	}
}
