package rendezvous

import (
	"errors"
	"math"
	"testing"
)

func TestPreviewBurnLeavesSession(t *testing.T) {
	s := newTestSession(t, inTrackIC(1000, 1), DefaultConfig())
	s.Step(30)
	before := s.State()
	snaps := len(s.Snapshots())

	p, err := s.PreviewBurn(Vec3{0, 2, 0}, 600, 60)
	if err != nil {
		t.Fatal(err)
	}
	if p.Affordable || p.DVMag != 2 {
		t.Fatalf("a 2 m/s burn is not affordable with 1 m/s: %+v", p)
	}
	if len(p.Samples) != 11 || p.Samples[0].Time != 30 || p.Samples[10].Time != 630 {
		t.Fatalf("unexpected samples (%d)", len(p.Samples))
	}
	if s.State() != before || len(s.Snapshots()) != snaps || len(s.Burns()) != 0 {
		t.Fatal("preview altered the session")
	}
	// A partial last step lands on the duration.
	p, err = s.PreviewBurn(Vec3{}, 100, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Samples) != 5 || p.Samples[4].Time != 130 {
		t.Fatalf("unexpected samples %d ending at %f", len(p.Samples), p.Samples[len(p.Samples)-1].Time)
	}
}

func TestPreviewMatchesStep(t *testing.T) {
	s := newTestSession(t, inTrackIC(1000, 10), DefaultConfig())
	p, err := s.PreviewBurn(Vec3{0.1, 0, 0}, 120, 1)
	if err != nil {
		t.Fatal(err)
	}
	s.ApplyBurn(Vec3{0.1, 0, 0})
	s.Step(120)
	last := p.Samples[len(p.Samples)-1]
	chase, target := last.States()
	st := s.State()
	if chase != st.Chase || target != st.Target {
		t.Fatalf("preview ends at %s but the session is at %s", chase.R, st.Chase.R)
	}
	if math.Abs(last.Range-st.Range) > 1e-9 {
		t.Fatal("range mismatch")
	}
	for _, sample := range p.Samples {
		if sample.Range < p.Closest.Range {
			t.Fatalf("closest approach %f is not the minimum", p.Closest.Range)
		}
		if math.Abs(sample.ChaseECEF.Norm()-sample.ChaseECI.Norm()) > 1e-6 {
			t.Fatal("ECEF rotation changed the radius")
		}
	}
}

func TestPreviewBurnErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preview.MaxSamples = 100
	s := newTestSession(t, inTrackIC(1000, 10), cfg)
	if _, err := s.PreviewBurn(Vec3{math.Inf(1), 0, 0}, 10, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	for _, c := range [][2]float64{{-1, 1}, {10, 0}, {10, math.NaN()}, {1000, 1}, {1e20, 1}, {1e300, 1e-10}, {math.MaxFloat64, math.SmallestNonzeroFloat64}} {
		if _, err := s.PreviewBurn(Vec3{}, c[0], c[1]); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("duration %f step %f: expected ErrInvalidDuration, got %v", c[0], c[1], err)
		}
	}
	if p, err := s.PreviewBurn(Vec3{}, 0, 1); err != nil || len(p.Samples) != 1 {
		t.Fatalf("a null duration has one sample: %v", err)
	}
}
