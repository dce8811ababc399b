package rendezvous

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestRICAxes(t *testing.T) {
	s := State{R: Vec3{geoRadius, 0, 0}, V: Vec3{0, 3000, 400}}
	f := NewRIC(s)
	if !vectorsEqual(f.R, Vec3{1, 0, 0}, 1e-15) {
		t.Fatalf("R axis=%s", f.R)
	}
	if !scalar.EqualWithinAbs(f.R.Dot(f.I), 0, 1e-15) || !scalar.EqualWithinAbs(f.I.Dot(f.C), 0, 1e-15) {
		t.Fatal("axes not orthogonal")
	}
	if !vectorsEqual(f.R.Cross(f.I), f.C, 1e-15) {
		t.Fatal("frame is not right handed")
	}
	// The in-track axis is along the velocity for a circular orbit.
	g := geoState(0.4)
	if !vectorsEqual(NewRIC(g).I, g.V.Unit(), 1e-12) {
		t.Fatal("I is not along the velocity")
	}
}

func TestRICRoundTrip(t *testing.T) {
	ref := State{R: Vec3{-3e6, 4e7, 1e6}, V: Vec3{-3000, -100, 250}}
	for _, v := range []Vec3{{1, 0, 0}, {0, 1000, 0}, {12.5, -40, 3.25}} {
		back := ECIToRIC(RICToECI(v, ref), ref)
		if !vectorsEqual(back, v, 1e-9) {
			t.Fatalf("round trip of %s gave %s", v, back)
		}
	}
	if math.Abs(ECIToRIC(Vec3{3, 4, 5}, ref).Norm()-(Vec3{3, 4, 5}).Norm()) > 1e-12 {
		t.Fatal("rotation does not preserve the norm")
	}
}

func TestRelativeMotion(t *testing.T) {
	target := geoState(0)
	θ := 1000 / geoRadius
	chase := geoState(θ)
	n := MeanMotion(EarthMu, geoRadius)
	ρ := RelativePosition(chase, target)
	if !scalar.EqualWithinAbs(ρ[1], 1000, 1e-3) || math.Abs(ρ[0]) > 0.1 || ρ[2] != 0 {
		t.Fatalf("relative position %s", ρ)
	}
	// Co-orbital spacecraft are fixed in the rotating frame.
	if v := RelativeVelocity(chase, target, n); v.Norm() > 1e-3 {
		t.Fatalf("relative velocity %s should be null", v)
	}
	if !scalar.EqualWithinAbs(Range(chase, target), 1000, 1e-3) {
		t.Fatalf("range=%f", Range(chase, target))
	}
	if rr := RangeRate(chase, target); math.Abs(rr) > 1e-6 {
		t.Fatalf("range rate=%f", rr)
	}
	if RangeRate(target, target) != 0 {
		t.Fatal("range rate at null range must be zero")
	}
	// Opening range has a positive rate.
	chase.V = chase.V.Add(RICToECI(Vec3{1, 0, 0}, target))
	chase.R = target.R.Add(RICToECI(Vec3{10, 0, 0}, target))
	if RangeRate(chase, target) <= 0 {
		t.Fatal("expected an opening range rate")
	}
}
