package rendezvous

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func TestSTMIdentityAtZero(t *testing.T) {
	s := geoState(0)
	final, Φ, err := PropagateWithSTM(s, 0, EarthMu)
	if err != nil {
		t.Fatal(err)
	}
	if final != s || Φ != Identity6() {
		t.Fatal("Φ(t0, t0) must be identity")
	}
}

func TestSTMStateMatchesPropagate(t *testing.T) {
	s := State{R: Vec3{geoRadius, 1e5, -2e4}, V: Vec3{-10, 3070, 15}}
	a, err := Propagate(s, 5000, EarthMu)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := PropagateWithSTM(s, 5000, EarthMu)
	if err != nil {
		t.Fatal(err)
	}
	if a.R.Sub(b.R).Norm() > 1e-6 || a.V.Sub(b.V).Norm() > 1e-9 {
		t.Fatalf("STM propagation diverges from the plain propagation: %s vs %s", a.R, b.R)
	}
}

func TestSTMFiniteDifferences(t *testing.T) {
	s := geoState(0.7)
	tof := 3600.0
	nominal, Φ, err := PropagateWithSTM(s, tof, EarthMu)
	if err != nil {
		t.Fatal(err)
	}
	Φrv := Φ.RV()
	const ε = 0.1 // m/s
	for j := 0; j < 3; j++ {
		perturbed := s
		perturbed.V[j] += ε
		final, err := Propagate(perturbed, tof, EarthMu)
		if err != nil {
			t.Fatal(err)
		}
		Δr := final.R.Sub(nominal.R)
		var col Vec3
		for i := 0; i < 3; i++ {
			col[i] = Φrv[i][j] * ε
		}
		if Δr.Sub(col).Norm() > 0.01*col.Norm() {
			t.Fatalf("column %d: finite difference %s vs STM %s", j, Δr, col)
		}
	}
}

func TestSTMSymplectic(t *testing.T) {
	s := State{R: Vec3{geoRadius, 0, 0}, V: Vec3{0, 3000, 500}}
	_, Φ, err := PropagateWithSTM(s, 3000, EarthMu)
	if err != nil {
		t.Fatal(err)
	}
	if det := Φ.Det(); !scalar.EqualWithinAbs(det, 1, 1e-6) {
		t.Fatalf("det(Φ)=%f", det)
	}
	// Φ' J Φ = J for a Hamiltonian flow.
	J := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		J.Set(i, i+3, 1)
		J.Set(i+3, i, -1)
	}
	d := Φ.Dense()
	var tmp, res mat.Dense
	tmp.Mul(d.T(), J)
	res.Mul(&tmp, d)
	if !mat.EqualApprox(&res, J, 1e-6) {
		t.Fatalf("Φ is not symplectic:\n%v", mat.Formatted(&res))
	}
}

func TestGravityGradient(t *testing.T) {
	R := Vec3{geoRadius, 0, 0}
	G := GravityGradient(R, EarthMu)
	n2 := EarthMu / (geoRadius * geoRadius * geoRadius)
	if !scalar.EqualWithinRel(G[0][0], 2*n2, 1e-12) || !scalar.EqualWithinRel(G[1][1], -n2, 1e-12) || !scalar.EqualWithinRel(G[2][2], -n2, 1e-12) {
		t.Fatalf("unexpected gradient %v", G)
	}
	if G[0][1] != 0 || G[1][2] != 0 {
		t.Fatal("off diagonal terms should be null on the x axis")
	}
}
