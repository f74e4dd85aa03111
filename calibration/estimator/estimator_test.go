package estimator

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
	"go.viam.com/test"

	"github.com/spacecalibrator/core/spatialmath"
)

// yQuat returns the unit quaternion for a rotation of angleRad radians about
// the Y axis, matching OpenVR's yaw convention.
func yQuat(angleRad float64) quat.Number {
	return quat.Number{Real: math.Cos(angleRad / 2), Jmag: math.Sin(angleRad / 2)}
}

// spreadReferencePoses returns n reference poses whose orientations tumble
// across all three axes (so pairwise rotation deltas span 3D and a fitted
// rotation is well-determined, not just constrained along one axis), spaced
// widely enough apart that nearly every pairwise delta clears the gating
// thresholds, with positions that wander so jitter metrics are nonzero.
func spreadReferencePoses(n int) []spatialmath.Pose {
	poses := make([]spatialmath.Pose, n)
	for i := 0; i < n; i++ {
		fi := float64(i)
		axis := r3.Vector{X: math.Sin(fi * 0.9), Y: math.Cos(fi * 1.7), Z: math.Sin(fi*0.53 + 1)}.Normalize()
		orientation := spatialmath.NewOrientationFromQuaternion(quatAboutAxis(axis, 0.8+0.05*fi))
		point := r3.Vector{X: 0.01 * float64(i%5), Y: 1.2, Z: 0.02 * float64(i%3)}
		poses[i] = spatialmath.NewPose(point, orientation)
	}
	return poses
}

func TestComputeOneshotRotationRecovery(t *testing.T) {
	mount := yQuat(30 * degToRad)
	refs := spreadReferencePoses(24)

	e := New(len(refs), false)
	for i, ref := range refs {
		target := spatialmath.Compose(spatialmath.NewPose(r3.Vector{}, spatialmath.NewOrientationFromQuaternion(mount)), ref)
		e.AddSample(Sample{Reference: ref, Target: target, Timestamp: float64(i), Valid: true})
	}

	result, err := e.ComputeOneshot(true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.IsValid(), test.ShouldBeTrue)

	euler := result.RotationEuler
	test.That(t, math.Abs(euler.Yaw-30), test.ShouldBeLessThan, 0.5)
	test.That(t, math.Abs(euler.Pitch), test.ShouldBeLessThan, 0.5)
	test.That(t, math.Abs(euler.Roll), test.ShouldBeLessThan, 0.5)
}

func TestComputeOneshotIdentityCalibration(t *testing.T) {
	refs := spreadReferencePoses(20)

	e := New(len(refs), false)
	for i, ref := range refs {
		e.AddSample(Sample{Reference: ref, Target: ref, Timestamp: float64(i), Valid: true})
	}

	result, err := e.ComputeOneshot(true)
	test.That(t, err, test.ShouldBeNil)

	euler := result.RotationEuler
	test.That(t, math.Abs(euler.Yaw), test.ShouldBeLessThan, 0.5)
	test.That(t, math.Abs(euler.Pitch), test.ShouldBeLessThan, 0.5)
	test.That(t, math.Abs(euler.Roll), test.ShouldBeLessThan, 0.5)
	test.That(t, result.TranslationCentimeters.Norm(), test.ShouldBeLessThan, 0.1)
}

func TestComputeOneshotTranslationRecovery(t *testing.T) {
	refs := spreadReferencePoses(20)
	offset := r3.Vector{X: 0.5, Y: 0, Z: 0}

	e := New(len(refs), false)
	for i, ref := range refs {
		target := spatialmath.NewPose(ref.Point().Add(offset), ref.Orientation())
		e.AddSample(Sample{Reference: ref, Target: target, Timestamp: float64(i), Valid: true})
	}

	result, err := e.ComputeOneshot(true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.TranslationMeters.Sub(offset).Norm(), test.ShouldBeLessThan, 0.001)
	test.That(t, result.TranslationCentimeters.Sub(offset.Mul(100)).Norm(), test.ShouldBeLessThan, 0.1)
}

func TestComputeOneshotFailsOnStaticStream(t *testing.T) {
	still := spatialmath.NewPose(r3.Vector{X: 1, Y: 1, Z: 1}, spatialmath.NewZeroOrientation())

	e := New(100, false)
	for i := 0; i < 100; i++ {
		e.AddSample(Sample{Reference: still, Target: still, Timestamp: float64(i), Valid: true})
	}

	_, err := e.ComputeOneshot(true)
	test.That(t, err, test.ShouldEqual, ErrTooFewDeltas)
	test.That(t, e.IsValid(), test.ShouldBeFalse)
}

func TestSampleCountNeverExceedsWindow(t *testing.T) {
	e := New(5, false)
	for i := 0; i < 20; i++ {
		e.AddSample(Sample{Timestamp: float64(i), Valid: true})
	}
	test.That(t, e.SampleCount(), test.ShouldEqual, 5)
	test.That(t, e.Full(), test.ShouldBeTrue)
}

func TestIsValidFalseBeforeFirstSolve(t *testing.T) {
	e := New(10, false)
	test.That(t, e.IsValid(), test.ShouldBeFalse)
}

func TestResetClearsWindowAndValidity(t *testing.T) {
	refs := spreadReferencePoses(20)
	e := New(len(refs), false)
	for i, ref := range refs {
		e.AddSample(Sample{Reference: ref, Target: ref, Timestamp: float64(i), Valid: true})
	}
	_, err := e.ComputeOneshot(true)
	test.That(t, err, test.ShouldBeNil)

	e.Reset()
	test.That(t, e.SampleCount(), test.ShouldEqual, 0)
	test.That(t, e.IsValid(), test.ShouldBeFalse)
}

func TestJitterZeroForStationaryPositions(t *testing.T) {
	still := spatialmath.NewPose(r3.Vector{X: 2, Y: 1, Z: 0}, spatialmath.NewZeroOrientation())
	e := New(10, false)
	for i := 0; i < 10; i++ {
		e.AddSample(Sample{Reference: still, Target: still, Timestamp: float64(i), Valid: true})
	}
	test.That(t, e.ReferenceJitter(), test.ShouldEqual, 0)
	test.That(t, e.TargetJitter(), test.ShouldEqual, 0)
}

func TestJitterPositiveForScatteredPositions(t *testing.T) {
	e := New(10, false)
	for i := 0; i < 10; i++ {
		p := spatialmath.NewPose(r3.Vector{X: float64(i % 2), Y: 0, Z: 0}, spatialmath.NewZeroOrientation())
		e.AddSample(Sample{Reference: p, Target: p, Timestamp: float64(i), Valid: true})
	}
	test.That(t, e.ReferenceJitter(), test.ShouldBeGreaterThan, 0)
}

func TestComputeIncrementalAcceptsFirstSolveUnconditionally(t *testing.T) {
	refs := spreadReferencePoses(20)
	e := New(len(refs), false)
	for i, ref := range refs {
		e.AddSample(Sample{Reference: ref, Target: ref, Timestamp: float64(i), Valid: true})
	}

	_, accepted, err := e.ComputeIncremental(0.01, 1.0, true, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, accepted, test.ShouldBeTrue)
	test.That(t, e.IsValid(), test.ShouldBeTrue)
}

func TestComputeIncrementalRejectsLargeJump(t *testing.T) {
	const windowSize = 20
	e := New(windowSize, false)

	for i, ref := range spreadReferencePoses(windowSize) {
		e.AddSample(Sample{Reference: ref, Target: ref, Timestamp: float64(i), Valid: true})
	}
	firstResult, accepted, err := e.ComputeIncremental(0.01, 1.0, true, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, accepted, test.ShouldBeTrue)

	// A full window of freshly-offset samples: appending exactly windowSize
	// more samples flushes every zero-offset sample out, so this solve
	// reflects the new offset cleanly rather than a diluted blend.
	shift := r3.Vector{X: 0.05}
	for i, ref := range spreadReferencePoses(windowSize) {
		target := spatialmath.NewPose(ref.Point().Add(shift), ref.Orientation())
		e.AddSample(Sample{Reference: ref, Target: target, Timestamp: float64(windowSize + i), Valid: true})
	}

	_, accepted, err = e.ComputeIncremental(0.01, 1.0, true, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, accepted, test.ShouldBeFalse)
	// The last applied estimate stands.
	test.That(t, e.RelativeTransformation().TranslationMeters, test.ShouldResemble, firstResult.TranslationMeters)
}

// nearStaticReferencePoses returns n reference poses that tumble across all
// three axes like spreadReferencePoses, but by at most a tenth of a radian
// each, so most pairwise deltas clear the relaxed static-gate thresholds
// while none clears the default ones.
func nearStaticReferencePoses(n int) []spatialmath.Pose {
	poses := make([]spatialmath.Pose, n)
	for i := 0; i < n; i++ {
		fi := float64(i)
		axis := r3.Vector{X: math.Sin(fi * 0.9), Y: math.Cos(fi * 1.7), Z: math.Sin(fi*0.53 + 1)}.Normalize()
		orientation := spatialmath.NewOrientationFromQuaternion(quatAboutAxis(axis, 0.001*fi))
		poses[i] = spatialmath.NewPose(r3.Vector{X: 1, Y: 1, Z: 1}, orientation)
	}
	return poses
}

func TestComputeOneshotFailsOnStaticStreamByDefault(t *testing.T) {
	refs := nearStaticReferencePoses(100)

	e := New(len(refs), false)
	for i, ref := range refs {
		e.AddSample(Sample{Reference: ref, Target: ref, Timestamp: float64(i), Valid: true})
	}

	_, err := e.ComputeOneshot(true)
	test.That(t, err, test.ShouldEqual, ErrTooFewDeltas)
	test.That(t, e.IsValid(), test.ShouldBeFalse)
}

func TestComputeOneshotSucceedsOnStaticStreamWithStaticRecalibrationEnabled(t *testing.T) {
	refs := nearStaticReferencePoses(100)

	e := New(len(refs), true)
	for i, ref := range refs {
		e.AddSample(Sample{Reference: ref, Target: ref, Timestamp: float64(i), Valid: true})
	}

	_, err := e.ComputeOneshot(true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.IsValid(), test.ShouldBeTrue)
}

const degToRad = math.Pi / 180
