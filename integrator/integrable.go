package integrator

// Integrable is a system of first order ODEs integrated one fixed step at a time.
// The integrator never keeps the slices it hands over: the implementation owns its state.
type Integrable interface {
	GetState() []float64                   // State at the start of the next step.
	SetState(i uint64, s []float64)        // New state after step i; s is freshly allocated.
	Stop(i uint64) bool                    // Whether to stop before step i, e.g. after a fixed number of substeps.
	Func(t float64, s []float64) []float64 // Derivative of s at t; t runs backward with a negative step.
}
