package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const (
	radToDeg = 180 / math.Pi
	degToRad = math.Pi / 180
)

// unitNormTolerance is the invariant from spec: a Pose's rotation quaternion must be unit
// norm to within this tolerance.
const unitNormTolerance = 1e-9

// Pose is a rigid transform in world space: a rotation plus a translation. Distances are in
// meters unless a method or field explicitly says otherwise.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type pose struct {
	point       r3.Vector
	orientation Orientation
}

// NewPose builds a Pose from a translation and an orientation.
func NewPose(point r3.Vector, orientation Orientation) Pose {
	if orientation == nil {
		orientation = NewZeroOrientation()
	}
	return &pose{point: point, orientation: orientation}
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return NewPose(r3.Vector{}, NewZeroOrientation())
}

func (p *pose) Point() r3.Vector {
	return p.point
}

func (p *pose) Orientation() Orientation {
	return p.orientation
}

// IsUnitQuaternion reports whether p's rotation quaternion is unit-norm to within the
// tolerance spec.md requires (1e-9).
func IsUnitQuaternion(p Pose) bool {
	return math.Abs(quat.Abs(p.Orientation().Quaternion())-1) < unitNormTolerance
}

// PoseAlmostEqual reports whether two poses have approximately the same translation (within
// posTolerance) and the same orientation (within 1e-5 on each quaternion component).
func PoseAlmostEqual(a, b Pose, posTolerance float64) bool {
	d := a.Point().Sub(b.Point())
	return d.Norm() < posTolerance && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}

// Compose returns the pose representing "apply b, then apply a": rotation a.rot*b.rot,
// translation a.trans + a.rot*b.trans.
func Compose(a, b Pose) Pose {
	rot := quat.Mul(a.Orientation().Quaternion(), b.Orientation().Quaternion())
	trans := a.Point().Add(RotateVector(a.Orientation().Quaternion(), b.Point()))
	return NewPose(trans, NewOrientationFromQuaternion(rot))
}

// Invert returns the pose that undoes p.
func Invert(p Pose) Pose {
	invRot := quat.Conj(p.Orientation().Quaternion())
	invTrans := RotateVector(invRot, p.Point()).Mul(-1)
	return NewPose(invTrans, NewOrientationFromQuaternion(invRot))
}

// RotationMatrixOf returns p's orientation as a 3x3 rotation matrix, a shorthand used
// throughout the estimator's pairwise delta computations.
func RotationMatrixOf(p Pose) *RotationMatrix {
	return p.Orientation().RotationMatrix()
}
