package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// EulerAngles is a ZYX-order Euler decomposition, expressed in degrees. Z is applied first
// (Roll, in the OpenVR Y-up convention this system was built against), then Y (Yaw), then X
// (Pitch) -- see AxisFromRotationMatrix and the original driver's CalibrateRotation logging,
// which labels its `rot.eulerAngles(2, 1, 0)` output the same way.
type EulerAngles struct {
	Roll  float64 // rotation about Z, degrees
	Pitch float64 // rotation about X, degrees
	Yaw   float64 // rotation about Y, degrees
}

// NewEulerAngles returns the zero rotation.
func NewEulerAngles() *EulerAngles {
	return &EulerAngles{}
}

func (ea *EulerAngles) Quaternion() quat.Number {
	return ea.RotationMatrix().Quaternion()
}

func (ea *EulerAngles) AxisAngles() *R4AA {
	return QuatToR4AA(ea.Quaternion())
}

func (ea *EulerAngles) EulerAngles() *EulerAngles {
	return ea
}

func (ea *EulerAngles) RotationMatrix() *RotationMatrix {
	z := ea.Roll * degToRad
	y := ea.Yaw * degToRad
	x := ea.Pitch * degToRad

	cz, sz := math.Cos(z), math.Sin(z)
	cy, sy := math.Cos(y), math.Sin(y)
	cx, sx := math.Cos(x), math.Sin(x)

	// R = Rz(roll) * Ry(yaw) * Rx(pitch)
	rz, _ := NewRotationMatrix([]float64{
		cz, -sz, 0,
		sz, cz, 0,
		0, 0, 1,
	})
	ry, _ := NewRotationMatrix([]float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	rx, _ := NewRotationMatrix([]float64{
		1, 0, 0,
		0, cx, -sx,
		0, sx, cx,
	})
	return rz.Mul(ry).Mul(rx)
}

// QuatToEuler converts a rotation unit quaternion to a ZYX Euler decomposition in degrees,
// returned as the raw (Z, Y, X) triple.
func QuatToEuler(q quat.Number) (z, y, x float64) {
	rm := QuatToRotationMatrix(q)
	return matToEulerZYX(rm)
}

// QuatToEulerAngles converts a rotation unit quaternion to an EulerAngles value.
func QuatToEulerAngles(q quat.Number) *EulerAngles {
	z, y, x := QuatToEuler(q)
	return &EulerAngles{Roll: z, Yaw: y, Pitch: x}
}

// matToEulerZYX decomposes a rotation matrix R = Rz(z) * Ry(y) * Rx(x), returning degrees.
// Follows the standard closed-form ZYX (Tait-Bryan) extraction, gimbal-locking gracefully
// when the Y rotation is near +-90 degrees.
func matToEulerZYX(rm *RotationMatrix) (z, y, x float64) {
	sy := clamp(-rm.At(2, 0), -1, 1)
	yRad := math.Asin(sy)

	const gimbalEpsilon = 1e-6
	cy := math.Cos(yRad)
	if math.Abs(cy) < gimbalEpsilon {
		// Gimbal lock: roll and yaw rotate about the same axis. Convention: dump the whole
		// rotation into z (roll) and leave x (pitch) at zero.
		zRad := math.Atan2(-rm.At(0, 1), rm.At(1, 1))
		return zRad * radToDeg, yRad * radToDeg, 0
	}

	zRad := math.Atan2(rm.At(1, 0), rm.At(0, 0))
	xRad := math.Atan2(rm.At(2, 1), rm.At(2, 2))
	return zRad * radToDeg, yRad * radToDeg, xRad * radToDeg
}
