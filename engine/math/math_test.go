package math

import "testing"

func TestInverseRoundTrip(t *testing.T) {
	m := NewMat4Scale(NewVec3(2, 3, 4)).
		Mul(NewMat4EulerY(0.7)).
		Mul(NewMat4Translation(NewVec3(1, -2, 5)))
	inv, ok := m.Inverse()
	if !ok {
		t.Fatalf("matrix reported singular")
	}
	if got := m.Mul(inv); !got.Compare(NewMat4Identity(), 1e-5) {
		t.Fatalf("m * inv = %v", got.Data)
	}
}

func TestInverseSingular(t *testing.T) {
	if _, ok := (Mat4{}).Inverse(); ok {
		t.Fatalf("zero matrix inverted")
	}
}

func TestMulAppliesLeftFirst(t *testing.T) {
	translate := NewMat4Translation(NewVec3(1, 0, 0))
	scale := NewMat4Scale(NewVec3(2, 2, 2))
	p := translate.Mul(scale).TransformPoint(NewVec3(1, 0, 0))
	if !p.Compare(NewVec3(4, 0, 0), 1e-6) {
		t.Fatalf("translate then scale = %v, want (4,0,0)", p)
	}
}

func TestLookAtMapsTargetOntoNegativeZ(t *testing.T) {
	eye := NewVec3(3, 2, 5)
	target := NewVec3(0, 0, 0)
	view := NewMat4LookAt(eye, target, NewVec3Up())
	p := view.TransformPoint(target)
	dist := target.Sub(eye).Length()
	if !p.Compare(NewVec3(0, 0, -dist), 1e-4) {
		t.Fatalf("target in view space = %v, want (0,0,%f)", p, -dist)
	}
	inv, _ := view.Inverse()
	if !inv.Translation().Compare(eye, 1e-4) {
		t.Fatalf("inverse view translation = %v, want %v", inv.Translation(), eye)
	}
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := NewMat4Perspective(DegToRad(50), 16.0/9.0, 0.1, 100)
	near := p.MulVec4(NewVec4(0, 0, -0.1, 1))
	far := p.MulVec4(NewVec4(0, 0, -100, 1))
	if d := near.Z / near.W; Abs(d) > 1e-5 {
		t.Errorf("near depth = %f, want 0", d)
	}
	if d := far.Z / far.W; Abs(d-1) > 1e-4 {
		t.Errorf("far depth = %f, want 1", d)
	}
	up := p.MulVec4(NewVec4(0, 1, -1, 1))
	if up.Y/up.W >= 0 {
		t.Errorf("points above the axis must land at negative NDC y (Vulkan), got %f", up.Y/up.W)
	}
}

func TestOrthographicDepthRange(t *testing.T) {
	o := NewMat4Orthographic(-10, 10, -10, 10, 0.1, 80)
	if z := o.TransformPoint(NewVec3(0, 0, -0.1)).Z; Abs(z) > 1e-6 {
		t.Errorf("near = %f", z)
	}
	if z := o.TransformPoint(NewVec3(0, 0, -80)).Z; Abs(z-1) > 1e-6 {
		t.Errorf("far = %f", z)
	}
	if x := o.TransformPoint(NewVec3(10, 0, -1)).X; Abs(x-1) > 1e-6 {
		t.Errorf("right edge = %f", x)
	}
}

func TestSmoothstepAndClamp(t *testing.T) {
	if Smoothstep(0.7, 0.95, 0.5) != 0 || Smoothstep(0.7, 0.95, 1) != 1 {
		t.Fatalf("smoothstep edges")
	}
	if v := Smoothstep(0, 1, 0.5); v != 0.5 {
		t.Fatalf("smoothstep midpoint = %f", v)
	}
	if Clamp(5, 0, 3) != 3 || Clamp(-1.0, 0.0, 1.0) != 0 {
		t.Fatalf("clamp")
	}
}
