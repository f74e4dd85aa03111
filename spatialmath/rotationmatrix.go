package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix represents an orientation as a 3x3 rotation matrix, row-major.
type RotationMatrix struct {
	m *mat.Dense
}

// NewRotationMatrix builds a RotationMatrix from 9 row-major elements.
func NewRotationMatrix(data []float64) (*RotationMatrix, error) {
	if len(data) != 9 {
		return nil, errors.Errorf("rotation matrix requires 9 elements, got %d", len(data))
	}
	return &RotationMatrix{m: mat.NewDense(3, 3, append([]float64(nil), data...))}, nil
}

// NewRotationMatrixFromDense wraps an existing 3x3 gonum matrix.
func NewRotationMatrixFromDense(m *mat.Dense) *RotationMatrix {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		panic("spatialmath: RotationMatrix must be 3x3")
	}
	return &RotationMatrix{m: mat.DenseCopyOf(m)}
}

// NewIdentityRotationMatrix returns the 3x3 identity.
func NewIdentityRotationMatrix() *RotationMatrix {
	m := mat.NewDense(3, 3, nil)
	m.Set(0, 0, 1)
	m.Set(1, 1, 1)
	m.Set(2, 2, 1)
	return &RotationMatrix{m: m}
}

// At returns the element at (row, col).
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.m.At(row, col)
}

// Dense returns the underlying gonum matrix. Callers must not mutate it.
func (rm *RotationMatrix) Dense() *mat.Dense {
	return rm.m
}

// Transpose returns the transpose of rm, which for a rotation matrix is also its inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	var t mat.Dense
	t.CloneFrom(rm.m.T())
	return &RotationMatrix{m: &t}
}

// Mul returns rm * other.
func (rm *RotationMatrix) Mul(other *RotationMatrix) *RotationMatrix {
	var out mat.Dense
	out.Mul(rm.m, other.m)
	return &RotationMatrix{m: &out}
}

// Quaternion converts the rotation matrix to a unit quaternion.
func (rm *RotationMatrix) Quaternion() quat.Number {
	// Shepperd's method, the standard numerically stable rotation-matrix-to-quaternion
	// conversion.
	m := rm.m
	tr := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)

	var w, x, y, z float64
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1.0) * 2
		w = 0.25 * s
		x = (m.At(2, 1) - m.At(1, 2)) / s
		y = (m.At(0, 2) - m.At(2, 0)) / s
		z = (m.At(1, 0) - m.At(0, 1)) / s
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := math.Sqrt(1.0+m.At(0, 0)-m.At(1, 1)-m.At(2, 2)) * 2
		w = (m.At(2, 1) - m.At(1, 2)) / s
		x = 0.25 * s
		y = (m.At(0, 1) + m.At(1, 0)) / s
		z = (m.At(0, 2) + m.At(2, 0)) / s
	case m.At(1, 1) > m.At(2, 2):
		s := math.Sqrt(1.0+m.At(1, 1)-m.At(0, 0)-m.At(2, 2)) * 2
		w = (m.At(0, 2) - m.At(2, 0)) / s
		x = (m.At(0, 1) + m.At(1, 0)) / s
		y = 0.25 * s
		z = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := math.Sqrt(1.0+m.At(2, 2)-m.At(0, 0)-m.At(1, 1)) * 2
		w = (m.At(1, 0) - m.At(0, 1)) / s
		x = (m.At(0, 2) + m.At(2, 0)) / s
		y = (m.At(1, 2) + m.At(2, 1)) / s
		z = 0.25 * s
	}
	q := quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
	return quat.Scale(1/quat.Abs(q), q)
}

// AxisAngles converts the rotation matrix to an axis-angle representation.
func (rm *RotationMatrix) AxisAngles() *R4AA {
	return QuatToR4AA(rm.Quaternion())
}

// EulerAngles converts the rotation matrix to a ZYX Euler decomposition.
func (rm *RotationMatrix) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(rm.Quaternion())
}

// RotationMatrix returns rm itself, satisfying the Orientation interface.
func (rm *RotationMatrix) RotationMatrix() *RotationMatrix {
	return rm
}

// QuatToRotationMatrix converts a unit quaternion to its rotation matrix.
func QuatToRotationMatrix(q quat.Number) *RotationMatrix {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	n := w*w + x*x + y*y + z*z
	if n == 0 {
		return NewIdentityRotationMatrix()
	}
	s := 2 / n
	wx, wy, wz := s*w*x, s*w*y, s*w*z
	xx, xy, xz := s*x*x, s*x*y, s*x*z
	yy, yz, zz := s*y*y, s*y*z, s*z*z

	data := []float64{
		1 - (yy + zz), xy - wz, xz + wy,
		xy + wz, 1 - (xx + zz), yz - wx,
		xz - wy, yz + wx, 1 - (xx + yy),
	}
	m, _ := NewRotationMatrix(data)
	return m
}

// AxisFromRotationMatrix returns (R[2,1]-R[1,2], R[0,2]-R[2,0], R[1,0]-R[0,1]), which is
// 2*sin(theta)*axis for the rotation R represents. The result is not normalized.
func AxisFromRotationMatrix(rm *RotationMatrix) r3.Vector {
	return r3.Vector{
		X: rm.At(2, 1) - rm.At(1, 2),
		Y: rm.At(0, 2) - rm.At(2, 0),
		Z: rm.At(1, 0) - rm.At(0, 1),
	}
}

// AngleFromRotationMatrix returns the rotation angle of R via acos((trace(R)-1)/2), with the
// input to acos clamped to [-1, 1] to absorb floating-point slack.
func AngleFromRotationMatrix(rm *RotationMatrix) float64 {
	trace := rm.At(0, 0) + rm.At(1, 1) + rm.At(2, 2)
	return math.Acos(clamp((trace-1)/2, -1, 1))
}
