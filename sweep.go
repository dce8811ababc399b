package rendezvous

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepResult holds every sampled intercept and the cheapest sensible one.
type SweepResult struct {
	Best      *Solution  `json:"best,omitempty"`
	BestIndex int        `json:"best_index"`
	All       []Solution `json:"all"`
}

// Sweep solves the intercept for steps+1 evenly spaced times of flight in [tofMin, tofMax].
// Solutions which did not converge, or which cost maxDV or more, are never selected.
// On equal cost, the earliest sample wins. Samples may be solved in parallel with workers > 1,
// which does not change the result.
func (sv Solver) Sweep(ctx context.Context, chase, target State, offsetRIC Vec3, tofMin, tofMax float64, steps int, opts SolveOptions, maxDV float64, workers int) (SweepResult, error) {
	res := SweepResult{BestIndex: -1}
	switch {
	case steps < 1:
		return res, fmt.Errorf("%w: sweep needs at least one step, got %d", ErrInvalidDuration, steps)
	case !(tofMin > 0) || math.IsInf(tofMax, 0) || !(tofMax >= tofMin):
		return res, fmt.Errorf("%w: sweep bounds [%f, %f]", ErrInvalidDuration, tofMin, tofMax)
	}
	start := time.Now()
	res.All = make([]Solution, steps+1)
	Δtof := (tofMax - tofMin) / float64(steps)
	solve := func(k int) {
		// Failures are already recorded in the Solution.
		res.All[k], _ = sv.Solve(chase, target, offsetRIC, tofMin+float64(k)*Δtof, opts)
	}

	if workers <= 1 {
		for k := range res.All {
			if err := ctx.Err(); err != nil {
				return SweepResult{BestIndex: -1}, err
			}
			solve(k)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for k := range res.All {
			k := k
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				solve(k)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return SweepResult{BestIndex: -1}, err
		}
	}

	for k := range res.All {
		sol := res.All[k]
		if !sol.Valid || !(sol.TotalDV < maxDV) {
			continue
		}
		if res.Best == nil || sol.TotalDV < res.Best.TotalDV {
			res.Best = &res.All[k]
			res.BestIndex = k
		}
	}
	sv.logger.Log("level", "info", "subsys", "sweep", "samples", len(res.All), "best", res.BestIndex, "duration", time.Since(start))
	return res, nil
}
