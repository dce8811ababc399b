package integrator

import (
	"errors"
	"math"
)

// ErrStepSize is returned when the step is zero or not finite.
var ErrStepSize = errors.New("integrator: step size must be finite and non zero")

// RK4 defines a fixed step, classical fourth order Runge-Kutta integrator.
type RK4 struct {
	X0         float64    // The initial x0.
	StepSize   float64    // The step size, may be negative to integrate backward.
	Integrator Integrable // What is to be integrated.
}

// NewRK4 returns a new RK4 integrator instance.
func NewRK4(x0 float64, stepSize float64, inte Integrable) (*RK4, error) {
	if stepSize == 0 || math.IsNaN(stepSize) || math.IsInf(stepSize, 0) {
		return nil, ErrStepSize
	}
	if inte == nil {
		return nil, errors.New("integrator: Integrable may not be nil")
	}
	return &RK4{X0: x0, StepSize: stepSize, Integrator: inte}, nil
}

// Solve solves the configured RK4.
// Returns the number of iterations performed and the last X_i.
func (r *RK4) Solve() (uint64, float64) {
	const (
		half     = 1 / 2.0
		oneSixth = 1 / 6.0
		oneThird = 1 / 3.0
	)

	h := r.StepSize
	halfStep := h * half
	iterNum := uint64(0)
	xi := r.X0
	var k1, k2, k3, tState []float64
	for !r.Integrator.Stop(iterNum) {
		state := r.Integrator.GetState()
		if len(k1) != len(state) {
			k1 = make([]float64, len(state))
			k2 = make([]float64, len(state))
			k3 = make([]float64, len(state))
			tState = make([]float64, len(state))
		}
		// The new state is handed over to the integrable, so it cannot be a shared buffer.
		newState := make([]float64, len(state))

		for i, y := range r.Integrator.Func(xi, state) {
			k1[i] = y * h
			tState[i] = state[i] + k1[i]*half
		}
		for i, y := range r.Integrator.Func(xi+halfStep, tState) {
			k2[i] = y * h
			tState[i] = state[i] + k2[i]*half
		}
		for i, y := range r.Integrator.Func(xi+halfStep, tState) {
			k3[i] = y * h
			tState[i] = state[i] + k3[i]
		}
		for i, y := range r.Integrator.Func(xi+h, tState) {
			newState[i] = state[i] + oneSixth*(k1[i]+y*h) + oneThird*(k2[i]+k3[i])
		}
		r.Integrator.SetState(iterNum, newState)

		xi += h
		iterNum++
	}
	return iterNum, xi
}
