package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

var (
	// ErrInsufficientFuel is returned when a burn exceeds the remaining Δv budget.
	ErrInsufficientFuel = errors.New("insufficient fuel")
	// ErrRewindOutOfRange is returned when no retained snapshot precedes the rewind time.
	ErrRewindOutOfRange = errors.New("rewind time out of range")
)

// cadenceε absorbs the rounding of accumulated simulation time.
const cadenceε = 1e-9

// Snapshot is a full copy of the session state at a given simulation time.
type Snapshot struct {
	Time      float64 `json:"time_s"`
	Chase     State   `json:"chase"`
	Target    State   `json:"target"`
	Fuel      float64 `json:"fuel_remaining_ms"`
	BurnCount int     `json:"burn_count"`
}

// BurnRecord is a committed impulsive burn.
type BurnRecord struct {
	Time      float64 `json:"time_s"`
	DVRIC     Vec3    `json:"dv_ric_ms"`
	DVECI     Vec3    `json:"dv_eci_ms"`
	DVMag     float64 `json:"dv_mag_ms"`
	FuelAfter float64 `json:"fuel_after_ms"`
}

// TrailPoint is a low rate position sample for display.
type TrailPoint struct {
	Time   float64 `json:"time_s"`
	Chase  Vec3    `json:"chase_eci_m"`
	Target Vec3    `json:"target_eci_m"`
	RIC    Vec3    `json:"relative_ric_m"`
}

// StateReport is the current state of the session.
type StateReport struct {
	SimTime       float64  `json:"sim_time_s"`
	Epoch         string   `json:"epoch"`
	Chase         State    `json:"chase"`
	Target        State    `json:"target"`
	RelPosRIC     Vec3     `json:"rel_pos_ric_m"`
	RelVelRIC     Vec3     `json:"rel_vel_ric_ms"`
	Range         float64  `json:"range_m"`
	RangeRate     float64  `json:"range_rate_ms"`
	FuelRemaining float64  `json:"fuel_remaining_ms"`
	FuelBudget    float64  `json:"fuel_budget_ms"`
	BurnCount     int      `json:"burn_count"`
	ChaseOrbit    Elements `json:"chase_orbit"`
	TargetOrbit   Elements `json:"target_orbit"`
}

// Session is a chase/target simulation with a Δv budget, a rewindable history and planning tools.
// It is not safe for concurrent use: callers must serialize their calls.
type Session struct {
	Name       string
	cfg        Config
	prop       Propagator
	solver     Solver
	logger     kitlog.Logger
	epoch      time.Time
	meanMotion float64

	initChase, initTarget State
	chase, target         State
	simTime               float64
	fuel, budget          float64

	burns                   []BurnRecord
	snapshots               *Ring[Snapshot]
	trails                  *Ring[TrailPoint]
	lastSnapshot, lastTrail float64
}

// NewSession validates the initial conditions and returns a session at t=0 with a full budget.
// A nil logger logs in logfmt to stdout.
func NewSession(ic InitialConditions, cfg Config, logger kitlog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ic.Validate(); err != nil {
		return nil, err
	}
	chase, _ := ic.Chase.State()
	target, _ := ic.Target.State()
	epoch, _ := ic.Epoch()
	name := ic.Metadata.Scenario
	if name == "" {
		name = "rendezvous"
	}
	if logger == nil {
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	}
	logger = kitlog.With(logger, "session", name)

	prop := Propagator{Mu: ic.Metadata.EarthMu, MaxStep: cfg.MaxStep}
	n := ic.Metadata.GeoMeanMotion
	if !(n > 0) {
		n = NewElements(target, prop.Mu).MeanMotion()
	}
	s := &Session{
		Name:       name,
		cfg:        cfg,
		prop:       prop,
		solver:     NewSolver(prop, cfg.Solver, logger),
		logger:     logger,
		epoch:      epoch,
		meanMotion: n,
		initChase:  chase,
		initTarget: target,
		budget:     ic.BurnBudget,
		snapshots:  NewRing[Snapshot](cfg.SnapshotCapacity),
		trails:     NewRing[TrailPoint](cfg.TrailCapacity),
	}
	s.Reset()
	s.logger.Log("level", "notice", "subsys", "session", "status", "created", "budget(m/s)", s.budget, "range(m)", Range(chase, target), "epoch", epoch)
	return s, nil
}

// Reset restores the initial conditions, the full budget and an empty history.
func (s *Session) Reset() {
	s.chase = s.initChase
	s.target = s.initTarget
	s.simTime = 0
	s.fuel = s.budget
	s.burns = nil
	s.snapshots.Clear()
	s.trails.Clear()
	s.recordSnapshot()
	s.recordTrail()
	s.logger.Log("level", "info", "subsys", "session", "status", "reset")
}

// recordSnapshot appends the current state, or replaces the newest snapshot if it has the same time
// so that a snapshot always accounts for every burn at or before its time.
func (s *Session) recordSnapshot() {
	snap := Snapshot{Time: s.simTime, Chase: s.chase, Target: s.target, Fuel: s.fuel, BurnCount: len(s.burns)}
	if last, ok := s.snapshots.Last(); ok && last.Time == s.simTime {
		s.snapshots.SetLast(snap)
	} else {
		s.snapshots.Push(snap)
	}
	s.lastSnapshot = s.simTime
}

func (s *Session) recordTrail() {
	s.trails.Push(TrailPoint{Time: s.simTime, Chase: s.chase.R, Target: s.target.R, RIC: RelativePosition(s.chase, s.target)})
	s.lastTrail = s.simTime
}

// Step advances both spacecraft by dt seconds. The propagation is split in chunks
// no longer than the snapshot interval so that the history keeps its cadence.
func (s *Session) Step(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: step of %f s", ErrInvalidDuration, dt)
	}
	if chunks := math.Ceil(dt / s.cfg.SnapshotInterval); chunks > float64(s.cfg.MaxStepChunks) {
		return fmt.Errorf("%w: step of %f s needs %g chunks, at most %d allowed", ErrInvalidDuration, dt, chunks, s.cfg.MaxStepChunks)
	}
	for remaining := dt; remaining > 0; {
		h := math.Min(remaining, s.cfg.SnapshotInterval)
		chase, err := s.prop.Propagate(s.chase, h)
		if err != nil {
			return fmt.Errorf("chase: %w", err)
		}
		target, err := s.prop.Propagate(s.target, h)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		s.chase, s.target = chase, target
		s.simTime += h
		remaining -= h
		if s.simTime-s.lastSnapshot >= s.cfg.SnapshotInterval-cadenceε {
			s.recordSnapshot()
		}
		if s.simTime-s.lastTrail >= s.cfg.TrailInterval-cadenceε {
			s.recordTrail()
		}
	}
	return nil
}

// ApplyBurn commits an impulsive burn on the chase, given in the target's current RIC frame.
// The fuel check and the commit are atomic: on error nothing changed.
func (s *Session) ApplyBurn(dvRIC Vec3) (BurnRecord, error) {
	if !dvRIC.IsFinite() {
		return BurnRecord{}, fmt.Errorf("%w: burn %s is not finite", ErrInvalidState, dvRIC)
	}
	mag := dvRIC.Norm()
	if mag > s.fuel {
		s.logger.Log("level", "warning", "subsys", "session", "status", "burn rejected", "Δv(m/s)", mag, "fuel(m/s)", s.fuel)
		return BurnRecord{}, fmt.Errorf("%w: burn of %.4f m/s with %.4f m/s remaining", ErrInsufficientFuel, mag, s.fuel)
	}
	dvECI := RICToECI(dvRIC, s.target)
	s.chase.V = s.chase.V.Add(dvECI)
	s.fuel -= mag
	rec := BurnRecord{Time: s.simTime, DVRIC: dvRIC, DVECI: dvECI, DVMag: mag, FuelAfter: s.fuel}
	s.burns = append(s.burns, rec)
	s.recordSnapshot()
	s.logger.Log("level", "info", "subsys", "session", "status", "burn", "t(s)", s.simTime, "Δv(m/s)", mag, "ric", dvRIC, "fuel(m/s)", s.fuel)
	return rec, nil
}

// RewindTo restores the session at time t from the latest snapshot taken at or before t,
// propagating the remainder. Later snapshots, burns and trail points are discarded.
func (s *Session) RewindTo(t float64) error {
	if math.IsNaN(t) || t < 0 || t > s.simTime {
		return fmt.Errorf("%w: %f not in [0, %f]", ErrRewindOutOfRange, t, s.simTime)
	}
	k := s.snapshots.Search(func(snap Snapshot) bool { return snap.Time <= t })
	if k == 0 {
		return fmt.Errorf("%w: history starts after %f", ErrRewindOutOfRange, t)
	}
	snap := s.snapshots.At(k - 1)
	chase, target := snap.Chase, snap.Target
	if residual := t - snap.Time; residual > 0 {
		var err error
		if chase, err = s.prop.Propagate(chase, residual); err != nil {
			return err
		}
		if target, err = s.prop.Propagate(target, residual); err != nil {
			return err
		}
	}
	s.chase, s.target = chase, target
	s.fuel = snap.Fuel
	s.simTime = t
	s.snapshots.Truncate(k)
	s.lastSnapshot = snap.Time
	kept := 0
	for kept < len(s.burns) && s.burns[kept].Time <= t {
		kept++
	}
	s.burns = s.burns[:kept:kept]
	s.trails.Truncate(s.trails.Search(func(p TrailPoint) bool { return p.Time <= t }))
	if last, ok := s.trails.Last(); ok {
		s.lastTrail = last.Time
	} else {
		s.lastTrail = snap.Time
	}
	s.logger.Log("level", "info", "subsys", "session", "status", "rewind", "t(s)", t, "snapshot(s)", snap.Time, "burns", kept)
	return nil
}

// State returns the current state of the session.
func (s *Session) State() StateReport {
	return StateReport{
		SimTime:       s.simTime,
		Epoch:         s.Now().Format(time.RFC3339Nano),
		Chase:         s.chase,
		Target:        s.target,
		RelPosRIC:     RelativePosition(s.chase, s.target),
		RelVelRIC:     RelativeVelocity(s.chase, s.target, s.meanMotion),
		Range:         Range(s.chase, s.target),
		RangeRate:     RangeRate(s.chase, s.target),
		FuelRemaining: s.fuel,
		FuelBudget:    s.budget,
		BurnCount:     len(s.burns),
		ChaseOrbit:    NewElements(s.chase, s.prop.Mu),
		TargetOrbit:   NewElements(s.target, s.prop.Mu),
	}
}

// SolveInterceptBurn solves the burn placing the chase at the target's RIC offset after tof seconds.
func (s *Session) SolveInterceptBurn(offsetRIC Vec3, tof float64, opts SolveOptions) (Solution, error) {
	sol, err := s.solver.Solve(s.chase, s.target, offsetRIC, tof, opts)
	sol.HasFuel = sol.Valid && sol.TotalDV <= s.fuel
	return sol, err
}

// SweepInterceptTOF solves the intercept over steps+1 times of flight in [tofMin, tofMax]
// with the reduced sweep iteration budget, and selects the cheapest one under the sweep Δv ceiling.
func (s *Session) SweepInterceptTOF(ctx context.Context, offsetRIC Vec3, tofMin, tofMax float64, steps int, opts SolveOptions) (SweepResult, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = s.cfg.Sweep.MaxIterations
	}
	res, err := s.solver.Sweep(ctx, s.chase, s.target, offsetRIC, tofMin, tofMax, steps, opts, s.cfg.Sweep.MaxDV, s.cfg.Sweep.Workers)
	if err != nil {
		return res, err
	}
	for k := range res.All {
		res.All[k].HasFuel = res.All[k].Valid && res.All[k].TotalDV <= s.fuel
	}
	return res, nil
}

// Snapshots returns a copy of the retained snapshots, oldest first.
func (s *Session) Snapshots() []Snapshot {
	return s.snapshots.Slice()
}

// Burns returns a copy of the committed burns.
func (s *Session) Burns() []BurnRecord {
	return append([]BurnRecord(nil), s.burns...)
}

// Trails returns a copy of the retained trail points, oldest first.
func (s *Session) Trails() []TrailPoint {
	return s.trails.Slice()
}

// SimTime returns the simulation time in seconds since the epoch.
func (s *Session) SimTime() float64 {
	return s.simTime
}

// FuelRemaining returns the remaining Δv budget in m/s.
func (s *Session) FuelRemaining() float64 {
	return s.fuel
}

// Epoch returns the scenario epoch.
func (s *Session) Epoch() time.Time {
	return s.epoch
}

// Now returns the current simulation date.
func (s *Session) Now() time.Time {
	return s.epoch.Add(seconds(s.simTime))
}

// MeanMotion returns the mean motion used for relative velocities.
func (s *Session) MeanMotion() float64 {
	return s.meanMotion
}

// Config returns the engine settings.
func (s *Session) Config() Config {
	return s.cfg
}
