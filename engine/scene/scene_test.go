package scene

import (
	"testing"

	"github.com/spaghettifunk/simcam/engine/math"
)

func TestFrustumCulling(t *testing.T) {
	cam := NewCamera(math.NewVec3(0, 0, 5), 50, 0.1, 100)
	f := NewFrustum(cam.View().Mul(cam.Projection(16.0 / 9.0)))

	cases := []struct {
		name    string
		center  math.Vec3
		radius  float32
		visible bool
	}{
		{"in front", math.NewVec3(0, 0, 0), 1, true},
		{"behind", math.NewVec3(0, 0, 10), 1, false},
		{"far left", math.NewVec3(-50, 0, 0), 1, false},
		{"straddling left plane", math.NewVec3(-5, 0, 0), 2, true},
		{"just outside left plane", math.NewVec3(-5, 0, 0), 0.1, false},
		{"beyond far plane", math.NewVec3(0, 0, -200), 1, false},
	}
	for _, c := range cases {
		if got := f.IntersectsSphere(c.center, c.radius); got != c.visible {
			t.Errorf("%s: visible = %v, want %v", c.name, got, c.visible)
		}
	}
}

func TestCameraApply(t *testing.T) {
	cam := NewCamera(math.NewVec3Zero(), 50, 0.1, 100)
	cam.Apply(Twist{Linear: math.NewVec3(2, 0, 0)}, 0.5)
	if !cam.Position.Compare(math.NewVec3(0, 0, -1), 1e-6) {
		t.Fatalf("forward move ended at %v", cam.Position)
	}
	cam.Apply(Twist{Angular: math.NewVec3(0, 0, math.K_PI / 2)}, 1)
	if !cam.Forward().Compare(math.NewVec3(-1, 0, 0), 1e-5) {
		t.Fatalf("after a left yaw forward = %v", cam.Forward())
	}
	cam.Apply(Twist{Angular: math.NewVec3(0, -10, 0)}, 1)
	if cam.Pitch != maxPitch {
		t.Fatalf("pitch not clamped: %f", cam.Pitch)
	}
}

func TestCameraLookAt(t *testing.T) {
	cam := NewCamera(math.NewVec3(3, 2, 5), 50, 0.1, 100)
	cam.LookAt(math.NewVec3Zero())
	want := math.NewVec3(-3, -2, -5).Normalized()
	if !cam.Forward().Compare(want, 1e-5) {
		t.Fatalf("forward = %v, want %v", cam.Forward(), want)
	}
}

func TestRigSwitchingAndControl(t *testing.T) {
	rig := NewRig()
	keyboard := NewCamera(math.NewVec3Zero(), 50, 0.1, 100)
	remote := NewCamera(math.NewVec3(2, 1, 0), 50, 0.1, 100)
	if err := rig.Add("main", keyboard, ControlKeyboard); err != nil {
		t.Fatal(err)
	}
	if err := rig.Add("remote", remote, ControlRemote); err != nil {
		t.Fatal(err)
	}
	if rig.Add("main", keyboard, ControlKeyboard) == nil {
		t.Fatalf("duplicate camera accepted")
	}

	cmd := Twist{Linear: math.NewVec3(1, 0, 0)}
	rig.Update(Twist{}, cmd, 1)
	if keyboard.Position != math.NewVec3Zero() {
		t.Fatalf("keyboard camera followed the remote command")
	}
	if rig.Next().Name != "remote" {
		t.Fatalf("Next did not switch to the remote camera")
	}
	rig.Update(Twist{}, cmd, 1)
	if !remote.Position.Compare(math.NewVec3(2, 1, -1), 1e-6) {
		t.Fatalf("remote camera at %v", remote.Position)
	}
	if rig.Next().Name != "main" {
		t.Fatalf("Next did not wrap around")
	}
	if err := rig.Select("nope"); err == nil {
		t.Fatalf("selecting a missing camera succeeded")
	}
}

func TestBoxGeometry(t *testing.T) {
	v, i := BoxGeometry(math.NewVec3(2, 4, 6), math.NewVec3(1, 1, 1))
	if len(v) != 24 || len(i) != 36 {
		t.Fatalf("box has %d vertices and %d indices", len(v), len(i))
	}
	b := boundsOf(v)
	if !b.Min.Compare(math.NewVec3(-1, -2, -3), 1e-6) || !b.Max.Compare(math.NewVec3(1, 2, 3), 1e-6) {
		t.Fatalf("bounds = %+v", b)
	}
	for tri := 0; tri < len(i); tri += 3 {
		a, bb, c := v[i[tri]].Position, v[i[tri+1]].Position, v[i[tri+2]].Position
		n := bb.Sub(a).Cross(c.Sub(a))
		if n.Dot(v[i[tri]].Normal) <= 0 {
			t.Fatalf("triangle %d winds against its normal", tri/3)
		}
	}
}

func TestPointLightLimit(t *testing.T) {
	var s Scene
	for i := 0; i < MaxPointLights; i++ {
		if !s.AddPointLight(PointLight{Intensity: 1}) {
			t.Fatalf("light %d rejected", i)
		}
	}
	if s.AddPointLight(PointLight{}) {
		t.Fatalf("light beyond the limit accepted")
	}
}
