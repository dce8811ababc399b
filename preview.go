package rendezvous

import (
	"fmt"
	"math"
)

// PreviewSample is one point of a predicted trajectory.
type PreviewSample struct {
	Time       float64 `json:"time_s"`
	ChaseECI   Vec3    `json:"chase_eci_m"`
	TargetECI  Vec3    `json:"target_eci_m"`
	ChaseECEF  Vec3    `json:"chase_ecef_m"`
	TargetECEF Vec3    `json:"target_ecef_m"`
	RIC        Vec3    `json:"relative_ric_m"`
	Range      float64 `json:"range_m"`
	chase      State
	target     State
}

// ClosestApproach is the sample of minimum range.
type ClosestApproach struct {
	Time  float64 `json:"time_s"`
	Range float64 `json:"range_m"`
	RIC   Vec3    `json:"relative_ric_m"`
}

// Preview is the predicted outcome of a burn which was not committed.
type Preview struct {
	DVRIC      Vec3            `json:"dv_ric_ms"`
	DVMag      float64         `json:"dv_mag_ms"`
	Affordable bool            `json:"affordable"`
	Samples    []PreviewSample `json:"samples"`
	Closest    ClosestApproach `json:"closest_approach"`
}

// States returns the chase and target states of this sample.
func (p PreviewSample) States() (chase, target State) {
	return p.chase, p.target
}

// PreviewBurn predicts the trajectories after the burn for the duration, sampling every step seconds.
// It works on copies: the session is left untouched.
func (s *Session) PreviewBurn(dvRIC Vec3, duration, step float64) (Preview, error) {
	if !dvRIC.IsFinite() {
		return Preview{}, fmt.Errorf("%w: burn %s is not finite", ErrInvalidState, dvRIC)
	}
	if !(duration >= 0) || math.IsInf(duration, 0) || !(step > 0) || math.IsInf(step, 0) {
		return Preview{}, fmt.Errorf("%w: duration=%f step=%f", ErrInvalidDuration, duration, step)
	}
	// Compared as floats: the sample count may not fit an int.
	if n := math.Ceil(duration/step) + 1; n > float64(s.cfg.Preview.MaxSamples) {
		return Preview{}, fmt.Errorf("%w: %g samples requested, at most %d allowed", ErrInvalidDuration, n, s.cfg.Preview.MaxSamples)
	}
	count := int(math.Ceil(duration/step)) + 1
	chase, target := s.chase, s.target
	chase.V = chase.V.Add(RICToECI(dvRIC, target))
	mag := dvRIC.Norm()
	p := Preview{DVRIC: dvRIC, DVMag: mag, Affordable: mag <= s.fuel, Samples: make([]PreviewSample, 0, count)}
	p.Closest.Range = math.Inf(1)

	for t := 0.0; ; {
		sample := s.sample(s.simTime+t, chase, target)
		p.Samples = append(p.Samples, sample)
		if sample.Range < p.Closest.Range {
			p.Closest = ClosestApproach{Time: sample.Time, Range: sample.Range, RIC: sample.RIC}
		}
		if t >= duration {
			break
		}
		h := math.Min(step, duration-t)
		var err error
		if chase, err = s.prop.Propagate(chase, h); err != nil {
			return Preview{}, fmt.Errorf("chase: %w", err)
		}
		if target, err = s.prop.Propagate(target, h); err != nil {
			return Preview{}, fmt.Errorf("target: %w", err)
		}
		t += h
	}
	s.logger.Log("level", "debug", "subsys", "preview", "Δv(m/s)", mag, "samples", len(p.Samples), "closest(m)", p.Closest.Range)
	return p, nil
}

func (s *Session) sample(t float64, chase, target State) PreviewSample {
	θgst := GMST(s.epoch.Add(seconds(t)))
	return PreviewSample{
		Time:       t,
		ChaseECI:   chase.R,
		TargetECI:  target.R,
		ChaseECEF:  ECI2ECEF(chase.R, θgst),
		TargetECEF: ECI2ECEF(target.R, θgst),
		RIC:        RelativePosition(chase, target),
		Range:      Range(chase, target),
		chase:      chase,
		target:     target,
	}
}
