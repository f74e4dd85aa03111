package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestPoseAlmostEqual(t *testing.T) {
	a := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, NewOrientationFromQuaternion(quat.Number{Real: 1}))
	b := NewPose(r3.Vector{X: 1.0001, Y: 2, Z: 3}, NewOrientationFromQuaternion(quat.Number{Real: 1}))
	test.That(t, PoseAlmostEqual(a, b, 0.001), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(a, b, 0.00001), test.ShouldBeFalse)
}

func TestComposeInvertRoundTrip(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, NewOrientationFromQuaternion(q45x))
	inv := Invert(p)
	identity := Compose(p, inv)
	test.That(t, PoseAlmostEqual(identity, NewZeroPose(), 1e-9), test.ShouldBeTrue)
}

func TestComposeWithZeroIsIdentity(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: -2, Z: 0.5}, NewOrientationFromQuaternion(q45x))
	test.That(t, PoseAlmostEqual(Compose(NewZeroPose(), p), p, 1e-9), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(p, NewZeroPose()), p, 1e-9), test.ShouldBeTrue)
}

func TestIsUnitQuaternion(t *testing.T) {
	unit := NewPose(r3.Vector{}, NewOrientationFromQuaternion(quat.Number{Real: 1}))
	test.That(t, IsUnitQuaternion(unit), test.ShouldBeTrue)

	notUnit := NewPose(r3.Vector{}, NewOrientationFromQuaternion(quat.Number{Real: 2}))
	test.That(t, IsUnitQuaternion(notUnit), test.ShouldBeFalse)
}

func TestRotationMatrixOf(t *testing.T) {
	p := NewPose(r3.Vector{}, NewOrientationFromQuaternion(q45x))
	rm := RotationMatrixOf(p)
	test.That(t, QuaternionAlmostEqual(rm.Quaternion(), q45x, 1e-9), test.ShouldBeTrue)
}
