package rendezvous

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

const (
	deg2rad = math.Pi / 180
	// zeroTol is the threshold under which a norm is considered null.
	zeroTol = 1e-12
)

// Vec3 is a 3x1 vector. It is a value type: assignment copies it.
type Vec3 [3]float64

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns s*v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v[0], s * v[1], s * v[2]}
}

// Dot returns the inner product.
func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Cross returns v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0]}
}

// Norm returns the Euclidean norm.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Unit returns the unit vector, or the zero vector if v is null.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if scalar.EqualWithinAbs(n, 0, zeroTol) {
		return Vec3{}
	}
	return v.Scale(1 / n)
}

// IsFinite returns false if any component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// IsZero returns whether all components are exactly zero.
func (v Vec3) IsZero() bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

// Slice returns a fresh []float64 copy of the vector.
func (v Vec3) Slice() []float64 {
	return []float64{v[0], v[1], v[2]}
}

func (v Vec3) String() string {
	return fmt.Sprintf("[%g %g %g]", v[0], v[1], v[2])
}

// Vec3FromSlice converts a slice into a Vec3. It fails if the length is not three.
func Vec3FromSlice(s []float64) (Vec3, error) {
	if len(s) != 3 {
		return Vec3{}, fmt.Errorf("expected 3 components, got %d", len(s))
	}
	return Vec3{s[0], s[1], s[2]}, nil
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Identity3 returns the 3x3 identity.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// MulVec returns m*v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Mul returns m*o.
func (m Mat3) Mul(o Mat3) (r Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				r[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return
}

// T returns the transpose.
func (m Mat3) T() (r Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[j][i]
		}
	}
	return
}

// Mat6 is a row-major 6x6 matrix, used for state transition matrices.
type Mat6 [6][6]float64

// Identity6 returns the 6x6 identity.
func Identity6() (m Mat6) {
	for i := 0; i < 6; i++ {
		m[i][i] = 1
	}
	return
}

// Mul returns m*o.
func (m Mat6) Mul(o Mat6) (r Mat6) {
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			for k := 0; k < 6; k++ {
				r[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return
}

// Block returns the 3x3 sub-matrix starting at (row, col), each of which must be 0 or 3.
func (m Mat6) Block(row, col int) (b Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b[i][j] = m[row+i][col+j]
		}
	}
	return
}

// RR returns ∂r/∂r0.
func (m Mat6) RR() Mat3 { return m.Block(0, 0) }

// RV returns ∂r/∂v0, the block used by the differential corrector.
func (m Mat6) RV() Mat3 { return m.Block(0, 3) }

// VR returns ∂v/∂r0.
func (m Mat6) VR() Mat3 { return m.Block(3, 0) }

// VV returns ∂v/∂v0.
func (m Mat6) VV() Mat3 { return m.Block(3, 3) }

// Dense returns a gonum copy of this matrix.
func (m Mat6) Dense() *mat.Dense {
	d := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		d.SetRow(i, m[i][:])
	}
	return d
}

// Det returns the determinant. A two-body STM has a unit determinant.
func (m Mat6) Det() float64 {
	return mat.Det(m.Dense())
}

func (m Mat6) String() string {
	return fmt.Sprintf("%v", mat.Formatted(m.Dense(), mat.Squeeze()))
}

// Solve3 solves A*x = b with Gaussian elimination and partial pivoting.
// It returns false if any pivot magnitude falls below pivotTol.
func Solve3(A Mat3, b Vec3, pivotTol float64) (x Vec3, ok bool) {
	// Augmented copy, A and b are values so the caller's are untouched.
	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(A[row][col]) > math.Abs(A[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(A[pivot][col]) < pivotTol {
			return Vec3{}, false
		}
		if pivot != col {
			A[pivot], A[col] = A[col], A[pivot]
			b[pivot], b[col] = b[col], b[pivot]
		}
		for row := col + 1; row < 3; row++ {
			f := A[row][col] / A[col][col]
			for k := col; k < 3; k++ {
				A[row][k] -= f * A[col][k]
			}
			b[row] -= f * b[col]
		}
	}
	for i := 2; i >= 0; i-- {
		s := b[i]
		for k := i + 1; k < 3; k++ {
			s -= A[i][k] * x[k]
		}
		x[i] = s / A[i][i]
	}
	return x, true
}

// sign returns the sign of a given number, with zero being positive.
func sign(v float64) float64 {
	if scalar.EqualWithinAbs(v, 0, zeroTol) {
		return 1
	}
	return v / math.Abs(v)
}

// Deg2rad converts degrees to radians.
func Deg2rad(a float64) float64 {
	return a * deg2rad
}

// Rad2deg converts radians to degrees, and enforced only positive numbers.
func Rad2deg(a float64) float64 {
	if a < 0 {
		a += 2 * math.Pi
	}
	return math.Mod(a/deg2rad, 360)
}
