package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// DriverPose is a pose as published by a hardware driver, in the driver's own coordinate
// frame. Every field is fixed-size (no pointers, slices, or strings) so that it can be
// written to and read from the shared-memory ring verbatim; see the shmem package's codec.
//
// Velocity, acceleration and head-model fields are carried through for wire compatibility
// with the upstream driver format but are not read by anything in this module.
type DriverPose struct {
	PoseTimeOffset float64

	QWorldFromDriverRotation      quat.Number
	VecWorldFromDriverTranslation r3.Vector

	QDriverFromHeadRotation      quat.Number
	VecDriverFromHeadTranslation r3.Vector

	VecPosition     r3.Vector
	VecVelocity     r3.Vector
	VecAcceleration r3.Vector

	QRotation              quat.Number
	VecAngularVelocity     r3.Vector
	VecAngularAcceleration r3.Vector

	Result int32

	PoseIsValid          bool
	WillDriftInYaw       bool
	ShouldApplyHeadModel bool
	DeviceIsConnected    bool
}

// ConvertPose composes a DriverPose's world-from-driver transform with its driver-space
// device pose to produce a world-space Pose:
//
//	rot_world = qWorldFromDriver . qRotation
//	pos_world = vecWorldFromDriver + qWorldFromDriver . vecPosition
func ConvertPose(dp DriverPose) Pose {
	rotWorld := quat.Mul(dp.QWorldFromDriverRotation, dp.QRotation)
	posWorld := dp.VecWorldFromDriverTranslation.Add(RotateVector(dp.QWorldFromDriverRotation, dp.VecPosition))
	return NewPose(posWorld, NewOrientationFromQuaternion(rotWorld))
}
