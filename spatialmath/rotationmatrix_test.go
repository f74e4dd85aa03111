package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestQuatRotationMatrixRoundTrip(t *testing.T) {
	rm := QuatToRotationMatrix(q45x)
	back := rm.Quaternion()
	test.That(t, QuaternionAlmostEqual(back, q45x, 1e-9), test.ShouldBeTrue)
}

func TestAxisAngleFromIdentity(t *testing.T) {
	rm := NewIdentityRotationMatrix()
	test.That(t, AngleFromRotationMatrix(rm), test.ShouldAlmostEqual, 0.0, 1e-9)
	axis := AxisFromRotationMatrix(rm)
	test.That(t, axis.Norm(), test.ShouldAlmostEqual, 0.0, 1e-9)
}

func TestAxisAngleFrom90DegreeZ(t *testing.T) {
	rm, err := NewRotationMatrix([]float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, AngleFromRotationMatrix(rm), test.ShouldAlmostEqual, math.Pi/2, 1e-9)
	axis := AxisFromRotationMatrix(rm)
	// direction should point along +Z; magnitude is 2*sin(theta), not unit.
	test.That(t, axis.Z, test.ShouldBeGreaterThan, 0)
	test.That(t, axis.X, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, axis.Y, test.ShouldAlmostEqual, 0.0, 1e-9)
}

func TestRotationMatrixTransposeIsInverse(t *testing.T) {
	rm := QuatToRotationMatrix(q45x)
	product := rm.Mul(rm.Transpose())
	identity := NewIdentityRotationMatrix()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			test.That(t, product.At(r, c), test.ShouldAlmostEqual, identity.At(r, c), 1e-9)
		}
	}
}

func TestNewRotationMatrixWrongSize(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
}
