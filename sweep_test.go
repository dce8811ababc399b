package rendezvous

import (
	"context"
	"errors"
	"testing"
)

func TestSweep(t *testing.T) {
	chase, target := geoPair(1000)
	sv := testSolver()
	opts := SolveOptions{MatchVelocity: true, MaxIterations: 20}
	res, err := sv.Sweep(context.Background(), chase, target, Vec3{}, 1800, 7200, 6, opts, 500, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.All) != 7 {
		t.Fatalf("expected steps+1=7 samples, got %d", len(res.All))
	}
	for k, sol := range res.All {
		if exp := 1800 + float64(k)*900; sol.TOF != exp {
			t.Fatalf("sample %d has tof %f instead of %f", k, sol.TOF, exp)
		}
	}
	if res.Best == nil || res.BestIndex < 0 {
		t.Fatal("no best solution")
	}
	if res.Best != &res.All[res.BestIndex] {
		t.Fatal("best does not point into the samples")
	}
	for k, sol := range res.All {
		if !sol.Valid {
			continue
		}
		if sol.TotalDV < res.Best.TotalDV || (sol.TotalDV == res.Best.TotalDV && k < res.BestIndex) {
			t.Fatalf("sample %d (%f m/s) beats the best (%f m/s)", k, sol.TotalDV, res.Best.TotalDV)
		}
	}

	// Parallel sweeps give the same answer.
	par, err := sv.Sweep(context.Background(), chase, target, Vec3{}, 1800, 7200, 6, opts, 500, 4)
	if err != nil {
		t.Fatal(err)
	}
	if par.BestIndex != res.BestIndex {
		t.Fatalf("parallel best %d != sequential best %d", par.BestIndex, res.BestIndex)
	}
	for k := range res.All {
		if par.All[k] != res.All[k] {
			t.Fatalf("sample %d differs between sequential and parallel sweeps", k)
		}
	}
}

func TestSweepThresholdAndTies(t *testing.T) {
	chase, target := geoPair(1000)
	sv := testSolver()
	res, err := sv.Sweep(context.Background(), chase, target, Vec3{}, 1800, 3600, 2, SolveOptions{}, 1e-6, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Best != nil || res.BestIndex != -1 || len(res.All) != 3 {
		t.Fatalf("nothing should pass a 1e-6 m/s ceiling: %+v", res.Best)
	}
	// A degenerate interval samples the same tof: the first one wins.
	res, err = sv.Sweep(context.Background(), chase, target, Vec3{}, 3600, 3600, 3, SolveOptions{}, 500, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.BestIndex != 0 {
		t.Fatalf("first minimum should win, got %d", res.BestIndex)
	}
}

func TestSweepErrors(t *testing.T) {
	chase, target := geoPair(1000)
	sv := testSolver()
	for _, tc := range []struct {
		min, max float64
		steps    int
	}{
		{0, 100, 2},
		{200, 100, 2},
		{100, 200, 0},
	} {
		if _, err := sv.Sweep(context.Background(), chase, target, Vec3{}, tc.min, tc.max, tc.steps, SolveOptions{}, 500, 1); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("%+v: expected ErrInvalidDuration, got %v", tc, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sv.Sweep(ctx, chase, target, Vec3{}, 100, 200, 2, SolveOptions{}, 500, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancellation, got %v", err)
	}
	if _, err := sv.Sweep(ctx, chase, target, Vec3{}, 100, 200, 2, SolveOptions{}, 500, 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancellation from the parallel sweep, got %v", err)
	}
}
