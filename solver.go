package rendezvous

import (
	"errors"
	"fmt"
	"math"
	"strings"

	kitlog "github.com/go-kit/kit/log"
)

var (
	// ErrSingularJacobian is wrapped by solver errors when ∂r/∂v0 cannot be inverted.
	ErrSingularJacobian = errors.New("singular Jacobian")
	// ErrNotConverged is wrapped by solver errors when the iteration budget is exhausted.
	ErrNotConverged = errors.New("did not converge")
)

// SolverErrorKind classifies a solver failure.
type SolverErrorKind uint8

const (
	// InvalidInput means the states, time of flight or offset cannot be used.
	InvalidInput SolverErrorKind = iota + 1
	// SingularJacobian means a pivot fell below the singularity threshold.
	SingularJacobian
	// NotConverged means the position tolerance was not met within the iteration budget.
	NotConverged
)

func (k SolverErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case SingularJacobian:
		return "singular"
	case NotConverged:
		return "not_converged"
	default:
		return "unknown"
	}
}

// SolverError is returned by the solver instead of a usable Solution.
type SolverError struct {
	Kind      SolverErrorKind
	Iteration int     // Iteration at which the failure occurred, or the iteration count.
	PosErr    float64 // Last position error in meters.
	Err       error   // Underlying cause for invalid inputs.
}

func (e *SolverError) Error() string {
	switch e.Kind {
	case SingularJacobian:
		return fmt.Sprintf("Singular Jacobian at iteration %d", e.Iteration)
	case NotConverged:
		return fmt.Sprintf("Did not converge after %d iterations (pos err: %.3f km)", e.Iteration, e.PosErr/1e3)
	default:
		return fmt.Sprintf("invalid input: %s", e.Err)
	}
}

// Unwrap returns the matching sentinel error, or the underlying cause.
func (e *SolverError) Unwrap() error {
	switch e.Kind {
	case SingularJacobian:
		return ErrSingularJacobian
	case NotConverged:
		return ErrNotConverged
	default:
		return e.Err
	}
}

// GuessMethod selects how the first burn is initialized.
type GuessMethod uint8

const (
	// GuessHeuristic uses a fraction of the coasting miss distance over the time of flight.
	GuessHeuristic GuessMethod = iota
	// GuessCW uses a Clohessy-Wiltshire transfer.
	GuessCW
	// GuessLambert uses a zero revolution Lambert arc, falling back to the heuristic.
	GuessLambert
)

func (g GuessMethod) String() string {
	switch g {
	case GuessCW:
		return "cw"
	case GuessLambert:
		return "lambert"
	default:
		return "heuristic"
	}
}

// ParseGuessMethod parses "heuristic", "cw" or "lambert" (case insensitive, empty is heuristic).
func ParseGuessMethod(s string) (GuessMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "heuristic":
		return GuessHeuristic, nil
	case "cw":
		return GuessCW, nil
	case "lambert":
		return GuessLambert, nil
	default:
		return GuessHeuristic, fmt.Errorf("unknown guess method %q", s)
	}
}

const (
	guessMissFraction   = 0.8  // Fraction of the coasting miss over tof.
	guessAlongTrackBias = 0.05 // Fraction of the guess magnitude added along the chase velocity.
)

// SolveOptions tune a single solve. Zero values use the solver defaults.
type SolveOptions struct {
	MatchVelocity bool
	MaxIterations int
	PosTol        float64
	Guess         GuessMethod
	InitialGuess  *Vec3 // Explicit ECI Δv, overrides Guess.
}

// Solution is a two-burn intercept. Burns are given both in ECI and in the target RIC frame
// at the time of each burn, so that DV1RIC can be committed as is.
type Solution struct {
	Valid       bool    `json:"valid"`
	Converged   bool    `json:"converged"`
	DV1ECI      Vec3    `json:"dv1_eci_ms"`
	DV1RIC      Vec3    `json:"dv1_ric_ms"`
	DV1Mag      float64 `json:"dv1_mag_ms"`
	DV2ECI      Vec3    `json:"dv2_eci_ms"`
	DV2RIC      Vec3    `json:"dv2_ric_ms"`
	DV2Mag      float64 `json:"dv2_mag_ms"`
	TotalDV     float64 `json:"total_dv_ms"`
	Iterations  int     `json:"iterations"`
	FinalPosErr float64 `json:"final_pos_err_m"`
	TOF         float64 `json:"tof_s"`
	HasFuel     bool    `json:"has_fuel"`
	Error       string  `json:"error,omitempty"`
}

// Solver finds the first burn placing the chase at a RIC offset of the target after a time of flight.
// It uses Newton-Raphson differential correction on ∂r(tof)/∂v0 from the state transition matrix.
type Solver struct {
	Propagator
	MaxIterations int
	PosTol        float64 // Meters.
	MaxHalvings   int     // Line search halvings.
	PivotTol      float64
	logger        kitlog.Logger
}

// NewSolver returns a solver with the provided settings. A nil logger discards logs.
func NewSolver(p Propagator, cfg SolverConfig, logger kitlog.Logger) Solver {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return Solver{Propagator: p, MaxIterations: cfg.MaxIterations, PosTol: cfg.PosTol,
		MaxHalvings: cfg.MaxHalvings, PivotTol: cfg.PivotTol, logger: logger}
}

func (sv Solver) invalid(sol Solution, err error) (Solution, error) {
	serr := &SolverError{Kind: InvalidInput, Err: err}
	sol.Error = serr.Error()
	return sol, serr
}

// Solve computes the intercept of target's RIC offset after tof seconds.
// It never panics: failures are reported by a *SolverError, alongside a Solution whose Valid is false.
func (sv Solver) Solve(chase, target State, offsetRIC Vec3, tof float64, opts SolveOptions) (Solution, error) {
	sol := Solution{TOF: tof}
	maxIter := sv.MaxIterations
	if opts.MaxIterations > 0 {
		maxIter = opts.MaxIterations
	}
	posTol := sv.PosTol
	if opts.PosTol > 0 {
		posTol = opts.PosTol
	}
	if tof <= 0 || math.IsNaN(tof) || math.IsInf(tof, 0) {
		return sv.invalid(sol, fmt.Errorf("%w: tof=%f", ErrInvalidDuration, tof))
	}
	if !offsetRIC.IsFinite() {
		return sv.invalid(sol, fmt.Errorf("offset %s is not finite", offsetRIC))
	}
	if err := sv.check(chase); err != nil {
		return sv.invalid(sol, fmt.Errorf("chase: %w", err))
	}
	if err := sv.check(target); err != nil {
		return sv.invalid(sol, fmt.Errorf("target: %w", err))
	}

	targetFinal, err := sv.Propagate(target, tof)
	if err != nil {
		return sv.invalid(sol, err)
	}
	aimPoint := targetFinal.R.Add(RICToECI(offsetRIC, targetFinal))

	Δv, err := sv.guess(chase, target, targetFinal, aimPoint, offsetRIC, tof, opts)
	if err != nil {
		return sv.invalid(sol, err)
	}

	var posErr float64
	converged := false
	iter := 0
	for iter < maxIter {
		burnt := State{R: chase.R, V: chase.V.Add(Δv)}
		final, Φ, err := sv.PropagateWithSTM(burnt, tof)
		if err != nil {
			return sv.invalid(sol, err)
		}
		residual := final.R.Sub(aimPoint)
		posErr = residual.Norm()
		iter++
		if posErr < posTol {
			converged = true
			sv.logger.Log("level", "debug", "subsys", "solver", "iter", iter, "posErr", posErr, "det(Φ)", Φ.Det())
			break
		}
		correction, ok := Solve3(Φ.RV(), residual, sv.PivotTol)
		if !ok {
			serr := &SolverError{Kind: SingularJacobian, Iteration: iter, PosErr: posErr}
			sv.logger.Log("level", "warning", "subsys", "solver", "status", "singular", "iter", iter, "posErr", posErr)
			sol.Iterations = iter
			sol.FinalPosErr = posErr
			sol.Error = serr.Error()
			return sol, serr
		}
		Δv = sv.lineSearch(chase, aimPoint, tof, Δv, correction, posErr)
	}
	sol.Iterations = iter
	sol.FinalPosErr = posErr
	if !converged {
		serr := &SolverError{Kind: NotConverged, Iteration: iter, PosErr: posErr}
		sv.logger.Log("level", "warning", "subsys", "solver", "status", "not converged", "iter", iter, "posErr", posErr)
		sol.Error = serr.Error()
		return sol, serr
	}

	// Second burn, matching the target velocity at arrival.
	sol.Valid = true
	sol.Converged = true
	sol.DV1ECI = Δv
	sol.DV1RIC = ECIToRIC(Δv, target)
	sol.DV1Mag = Δv.Norm()
	if opts.MatchVelocity {
		arrival, err := sv.Propagate(State{R: chase.R, V: chase.V.Add(Δv)}, tof)
		if err != nil {
			return sv.invalid(Solution{TOF: tof}, err)
		}
		sol.DV2ECI = targetFinal.V.Sub(arrival.V)
		sol.DV2RIC = ECIToRIC(sol.DV2ECI, targetFinal)
		sol.DV2Mag = sol.DV2ECI.Norm()
	}
	sol.TotalDV = sol.DV1Mag + sol.DV2Mag
	return sol, nil
}

// lineSearch damps the Newton step until the state-only residual decreases.
// The baseline is the residual of the STM propagation: both integrate the same dynamics.
// If no trial improves, the smallest step is kept.
func (sv Solver) lineSearch(chase State, aimPoint Vec3, tof float64, Δv, correction Vec3, posErr float64) Vec3 {
	α := 1.0
	var trial Vec3
	for halving := 0; halving <= sv.MaxHalvings; halving++ {
		trial = Δv.Sub(correction.Scale(α))
		final, err := sv.Propagate(State{R: chase.R, V: chase.V.Add(trial)}, tof)
		if err == nil && final.R.Sub(aimPoint).Norm() < posErr {
			return trial
		}
		α /= 2
	}
	return trial
}

// guess returns the initial ECI Δv.
func (sv Solver) guess(chase, target, targetFinal State, aimPoint, offsetRIC Vec3, tof float64, opts SolveOptions) (Vec3, error) {
	if opts.InitialGuess != nil {
		if !opts.InitialGuess.IsFinite() {
			return Vec3{}, fmt.Errorf("initial guess %s is not finite", *opts.InitialGuess)
		}
		return *opts.InitialGuess, nil
	}
	switch opts.Guess {
	case GuessCW:
		n := NewElements(target, sv.Mu).MeanMotion()
		if n > 0 {
			rel := NewRelState(chase, target, n)
			if v0, _, err := CWTransfer(rel.Pos, offsetRIC, tof, n); err == nil {
				return RICToECI(v0.Sub(rel.Vel), target), nil
			}
		}
		sv.logger.Log("level", "info", "subsys", "solver", "guess", "cw", "fallback", "heuristic")
	case GuessLambert:
		if Vi, _, err := Lambert(chase.R, aimPoint, tof, TTypeAuto, sv.Mu); err == nil {
			return Vi.Sub(chase.V), nil
		}
		sv.logger.Log("level", "info", "subsys", "solver", "guess", "lambert", "fallback", "heuristic")
	}
	coast, err := sv.Propagate(chase, tof)
	if err != nil {
		return Vec3{}, err
	}
	v := aimPoint.Sub(coast.R).Scale(guessMissFraction / tof)
	return v.Add(chase.V.Unit().Scale(guessAlongTrackBias * v.Norm())), nil
}
