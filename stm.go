package rendezvous

import (
	"fmt"
	"math"

	"github.com/orbitalarena/rendezvous/integrator"
)

// GravityGradient returns ∂a/∂r of the point mass acceleration at R.
func GravityGradient(R Vec3, μ float64) (G Mat3) {
	r2 := R.Dot(R)
	r := math.Sqrt(r2)
	r3 := r2 * r
	r5 := r3 * r2
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			G[i][j] = 3 * μ * R[i] * R[j] / r5
		}
		G[i][i] -= μ / r3
	}
	return
}

// stateMatrix returns the A matrix of the linearized two-body dynamics.
func stateMatrix(R Vec3, μ float64) (A Mat6) {
	// Top right is Identity 3x3
	A[0][3] = 1
	A[1][4] = 1
	A[2][5] = 1
	// Bottom left is the gravity gradient.
	G := GravityGradient(R, μ)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			A[3+i][j] = G[i][j]
		}
	}
	return
}

// PropagateWithSTM propagates the state along with its state transition matrix Φ(t, t0), Φ(t0, t0) being identity.
// Both are integrated together, the matrix being carried through every RK4 stage.
func (p Propagator) PropagateWithSTM(s State, dt float64) (State, Mat6, error) {
	if err := p.check(s); err != nil {
		return State{}, Mat6{}, err
	}
	if dt == 0 {
		return s, Identity6(), nil
	}
	n, h, err := p.substeps(dt)
	if err != nil {
		return State{}, Mat6{}, err
	}
	tb := &twoBodySTM{μ: p.Mu, state: make([]float64, 42), steps: n}
	copy(tb.state, s.vector())
	sIdx := 6
	for i := 0; i < 6; i++ {
		tb.state[sIdx+i*6+i] = 1
	}
	rk, err := integrator.NewRK4(0, h, tb)
	if err != nil {
		return State{}, Mat6{}, err
	}
	rk.Solve()
	final := stateFromVector(tb.state)
	Φ := tb.phi(tb.state)
	if !final.R.IsFinite() || !final.V.IsFinite() {
		return State{}, Mat6{}, fmt.Errorf("%w: propagation diverged", ErrInvalidState)
	}
	return final, Φ, nil
}

// PropagateWithSTM propagates a state and its STM with the default maximum step.
func PropagateWithSTM(s State, dt, μ float64) (State, Mat6, error) {
	return NewPropagator(μ).PropagateWithSTM(s, dt)
}

// twoBodySTM integrates [r v Φ], i.e. 6 + 36 elements.
type twoBodySTM struct {
	μ     float64
	state []float64
	steps uint64
}

func (tb *twoBodySTM) GetState() []float64 {
	return tb.state
}

func (tb *twoBodySTM) SetState(i uint64, s []float64) {
	tb.state = s
}

func (tb *twoBodySTM) Stop(i uint64) bool {
	return i >= tb.steps
}

func (tb *twoBodySTM) phi(f []float64) (Φ Mat6) {
	fIdx := 6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			Φ[i][j] = f[fIdx]
			fIdx++
		}
	}
	return
}

func (tb *twoBodySTM) Func(t float64, f []float64) []float64 {
	fDot := make([]float64, 42)
	R := Vec3{f[0], f[1], f[2]}
	r := R.Norm()
	bodyAcc := -tb.μ / (r * r * r)
	fDot[0] = f[3]
	fDot[1] = f[4]
	fDot[2] = f[5]
	fDot[3] = bodyAcc * f[0]
	fDot[4] = bodyAcc * f[1]
	fDot[5] = bodyAcc * f[2]

	ΦDot := stateMatrix(R, tb.μ).Mul(tb.phi(f))
	fIdx := 6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			fDot[fIdx] = ΦDot[i][j]
			fIdx++
		}
	}
	return fDot
}
