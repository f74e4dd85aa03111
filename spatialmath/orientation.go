package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Orientation is an interface used to express the different parameterizations of the orientation
// of a rigid pose in 3D Euclidean space.
type Orientation interface {
	Quaternion() quat.Number
	AxisAngles() *R4AA
	EulerAngles() *EulerAngles
	RotationMatrix() *RotationMatrix
}

// NewZeroOrientation returns an orientatation which signifies no rotation.
func NewZeroOrientation() Orientation {
	q := quaternion{1, 0, 0, 0}
	return &q
}

// OrientationAlmostEqual will return a bool describing whether 2 orientations are approximately equal.
func OrientationAlmostEqual(o1, o2 Orientation) bool {
	return QuaternionAlmostEqual(o1.Quaternion(), o2.Quaternion(), 1e-5)
}

// OrientationBetween returns the orientation representing the difference between the two given Orientations.
func OrientationBetween(o1, o2 Orientation) Orientation {
	q := quaternion(quat.Mul(o2.Quaternion(), quat.Conj(o1.Quaternion())))
	return &q
}

// QuaternionAlmostEqual reports whether two quaternions represent the same rotation to within
// tolerance on each component, accounting for the double cover of SO(3) (q and -q are the same
// rotation).
func QuaternionAlmostEqual(a, b quat.Number, tolerance float64) bool {
	if quatComponentsAlmostEqual(a, b, tolerance) {
		return true
	}
	return quatComponentsAlmostEqual(a, quat.Number{Real: -b.Real, Imag: -b.Imag, Jmag: -b.Jmag, Kmag: -b.Kmag}, tolerance)
}

func quatComponentsAlmostEqual(a, b quat.Number, tolerance float64) bool {
	return math.Abs(a.Real-b.Real) < tolerance &&
		math.Abs(a.Imag-b.Imag) < tolerance &&
		math.Abs(a.Jmag-b.Jmag) < tolerance &&
		math.Abs(a.Kmag-b.Kmag) < tolerance
}

// clamp restricts v to [lo, hi]. Used to absorb floating-point slack before acos/asin so a
// mathematically in-range value that has drifted a hair outside it doesn't come back NaN.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
