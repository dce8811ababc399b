package rendezvous

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// ErrLambertNoSolution is returned when the Lambert problem cannot be solved.
var ErrLambertNoSolution = errors.New("no Lambert solution")

// TransferType defines the type of Lambert transfer
type TransferType uint8

const (
	// TTypeAuto lets the Lambert solver determine the type
	TTypeAuto TransferType = iota + 1
	// TType1 is transfer of type 1 (zero revolution, short way)
	TType1
	// TType2 is transfer of type 2 (zero revolution, long way)
	TType2
	lambertε  = 1e-4 // General epsilon
	lambertTε = 1e-4 // Time epsilon
)

func (t TransferType) String() string {
	switch t {
	case TTypeAuto:
		return "auto"
	case TType1:
		return "type-1"
	case TType2:
		return "type-2"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Lambert solves the zero revolution Lambert boundary value problem with universal variables.
// It returns the initial and final velocities of the arc going from Ri to Rf in tof seconds.
// In auto mode, the direction of motion is the prograde one about +Z.
func Lambert(Ri, Rf Vec3, tof float64, ttype TransferType, μ float64) (Vi, Vf Vec3, err error) {
	if tof <= 0 || μ <= 0 {
		err = fmt.Errorf("%w: tof=%f μ=%f", ErrLambertNoSolution, tof, μ)
		return
	}
	rI := Ri.Norm()
	rF := Rf.Norm()
	cosΔν := Ri.Dot(Rf) / (rI * rF)
	dm := 1.0
	switch ttype {
	case TType2:
		dm = -1.0
	case TTypeAuto:
		if Ri.Cross(Rf)[2] < 0 {
			dm = -1.0
		}
	}

	A := dm * math.Sqrt(rI*rF*(1+cosΔν))
	if scalar.EqualWithinAbs(A, 0, lambertε) {
		err = fmt.Errorf("%w: Δν ~= 0 or π and A ~= 0", ErrLambertNoSolution)
		return
	}

	φup := 4 * math.Pi * math.Pi
	φlow := -4 * math.Pi
	// Initial guesses for c2 and c3
	c2 := 1 / 2.
	c3 := 1 / 6.
	var Δt, y, φ float64
	for iteration := 0; math.Abs(Δt-tof) > lambertTε; iteration++ {
		if iteration > 10000 {
			err = fmt.Errorf("%w: did not converge after 10000 iterations", ErrLambertNoSolution)
			return
		}
		y = rI + rF + A*(φ*c3-1)/math.Sqrt(c2)
		if A > 0 && y < 0 {
			for tmpIt := 0; y < 0; tmpIt++ {
				if tmpIt > 10000 {
					err = fmt.Errorf("%w: did not converge after 10000 attempts to increase φ", ErrLambertNoSolution)
					return
				}
				φ += 0.1
				y = rI + rF + A*(φ*c3-1)/math.Sqrt(c2)
			}
		}
		χ := math.Sqrt(y / c2)
		Δt = (χ*χ*χ*c3 + A*math.Sqrt(y)) / math.Sqrt(μ)
		if Δt <= tof {
			φlow = φ
		} else {
			φup = φ
		}
		φ = (φup + φlow) / 2
		if φ > lambertε {
			sφ := math.Sqrt(φ)
			ssφ, csφ := math.Sincos(sφ)
			c2 = (1 - csφ) / φ
			c3 = (sφ - ssφ) / math.Sqrt(φ*φ*φ)
		} else if φ < -lambertε {
			sφ := math.Sqrt(-φ)
			c2 = (1 - math.Cosh(sφ)) / φ
			c3 = (math.Sinh(sφ) - sφ) / math.Sqrt(-φ*φ*φ)
		} else {
			c2 = 1 / 2.
			c3 = 1 / 6.
		}
		if math.IsNaN(φ) || scalar.EqualWithinAbs(φup, φlow, 1e-14) && math.Abs(Δt-tof) > lambertTε {
			err = fmt.Errorf("%w: bisection collapsed", ErrLambertNoSolution)
			return
		}
	}
	f := 1 - y/rI
	gDot := 1 - y/rF
	g := A * math.Sqrt(y/μ)
	Vi = Rf.Sub(Ri.Scale(f)).Scale(1 / g)
	Vf = Rf.Scale(gDot).Sub(Ri).Scale(1 / g)
	return
}
