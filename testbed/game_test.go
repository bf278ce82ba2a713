package testbed

import (
	"testing"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
)

func TestKeyboardTwistIdle(t *testing.T) {
	if tw := KeyboardTwist(core.NewInputState(), 2, 1); !tw.IsZero() {
		t.Fatalf("idle input produced %+v", tw)
	}
}

func TestKeyboardTwistAxes(t *testing.T) {
	input := core.NewInputState()
	input.ProcessKey(core.KEY_W, true)
	input.ProcessKey(core.KEY_D, true)
	input.ProcessKey(core.KEY_LEFT, true)

	tw := KeyboardTwist(input, 2, 0.5)
	if want := math.NewVec3(2, -2, 0); tw.Linear != want {
		t.Errorf("linear = %+v, want %+v", tw.Linear, want)
	}
	if want := math.NewVec3(0, 0, 0.5); tw.Angular != want {
		t.Errorf("angular = %+v, want %+v", tw.Angular, want)
	}

	// opposite keys cancel
	input.ProcessKey(core.KEY_S, true)
	if tw := KeyboardTwist(input, 2, 0.5); tw.Linear.X != 0 {
		t.Errorf("forward and back did not cancel: %+v", tw.Linear)
	}
}

func TestKeyboardTwistBoost(t *testing.T) {
	input := core.NewInputState()
	input.ProcessKey(core.KEY_E, true)
	input.ProcessKey(core.KEY_LSHIFT, true)

	tw := KeyboardTwist(input, 2, 0.5)
	if tw.Linear.Z != 2*boostFactor {
		t.Errorf("boosted climb = %f, want %f", tw.Linear.Z, 2*boostFactor)
	}
}
