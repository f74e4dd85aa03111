package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// quaternion is an orientation backed directly by a unit quaternion, in the Hamilton
// (w, x, y, z) convention.
type quaternion quat.Number

// NewOrientationFromQuaternion wraps a quaternion as an Orientation. The quaternion is not
// re-normalized; callers that build one from arithmetic should call quat.Abs to check it
// first if the 1e-9 unit-norm invariant matters to them.
func NewOrientationFromQuaternion(q quat.Number) Orientation {
	qq := quaternion(q)
	return &qq
}

func (q *quaternion) Quaternion() quat.Number {
	return quat.Number(*q)
}

func (q *quaternion) AxisAngles() *R4AA {
	return QuatToR4AA(quat.Number(*q))
}

func (q *quaternion) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(quat.Number(*q))
}

func (q *quaternion) RotationMatrix() *RotationMatrix {
	return QuatToRotationMatrix(quat.Number(*q))
}

// Norm returns the norm of the imaginary (vector) part of a quaternion.
func Norm(q quat.Number) float64 {
	return quat.Abs(quat.Number{Imag: q.Imag, Jmag: q.Jmag, Kmag: q.Kmag})
}

// Flip multiplies a quaternion by -1, giving a quaternion that represents the same rotation
// from the opposing octant of the double cover.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// RotateVector rotates v by q using the standard q*v*q' sandwich product, where v is lifted
// to a pure quaternion.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	vq := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, vq), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
