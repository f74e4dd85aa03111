// Package estimator implements the windowed closed-form rotation and
// translation solver the calibration state machine drives: Kabsch on
// paired rotation-axis deltas for rotation, linear least squares for
// translation, with optional MAD-based outlier rejection and a jitter
// metric used as an entry gate.
package estimator

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/stat"

	"github.com/spacecalibrator/core/spatialmath"
)

// ErrTooFewDeltas is returned when fewer than 4 rotation-axis deltas in the
// window pass the gating thresholds; the Kabsch solve is not attempted.
var ErrTooFewDeltas = errors.New("estimator: fewer than 4 usable rotation deltas")

// ErrSingularSystem is returned when an SVD factorization fails.
var ErrSingularSystem = errors.New("estimator: SVD failed to factorize")

// minValidDeltas is the numerical guard from spec: reject the rotation
// solve outright below this many usable deltas.
const minValidDeltas = 4

// deltaAngleThreshold and deltaAxisNormThreshold gate which sample pairs
// contribute a usable rotation delta: both between-sample rotation angles
// must exceed the angle threshold and both raw (pre-normalized) axis norms
// must exceed the norm threshold, which rejects near-static pairs.
const (
	deltaAngleThreshold    = 0.4  // radians
	deltaAxisNormThreshold = 0.01
)

// staticAngleThreshold and staticAxisNormThreshold replace the thresholds
// above when an Estimator is configured to allow static recalibration,
// admitting the near-stationary delta pairs the default gate rejects.
const (
	staticAngleThreshold    = 0.02
	staticAxisNormThreshold = 0.001
)

// Sample is one paired (reference, target) pose observation.
type Sample struct {
	Reference spatialmath.Pose
	Target    spatialmath.Pose
	Timestamp float64
	Valid     bool
}

// deltaSample is the paired, normalized rotation axis between two Samples,
// used as the Kabsch solve's raw material instead of the poses themselves:
// the two devices share no fixed offset, so only the *axis* of a rigid
// mount's rotation is invariant between them.
type deltaSample struct {
	refAxis    r3.Vector
	targetAxis r3.Vector
	valid      bool
}

// Result is one accepted or attempted solve.
type Result struct {
	RotationQuat           quat.Number
	RotationEuler          *spatialmath.EulerAngles
	TranslationMeters      r3.Vector
	TranslationCentimeters r3.Vector
	Residual               float64
}

// Estimator holds a bounded sliding window of Samples and the last accepted
// solve.
type Estimator struct {
	sampleCount              int
	allowStaticRecalibration bool
	window                   []Sample

	valid            bool
	lastResult       Result
	lastAppliedTrans r3.Vector
}

// New creates an Estimator with the given window size. When
// allowStaticRecalibration is true, the delta-sample gate that ordinarily
// rejects near-stationary pairs is relaxed, so a near-stationary stream can
// still accumulate enough usable deltas to re-estimate.
func New(sampleCount int, allowStaticRecalibration bool) *Estimator {
	return &Estimator{sampleCount: sampleCount, allowStaticRecalibration: allowStaticRecalibration}
}

// AddSample appends s to the window, trimming from the front if the window
// exceeds the configured sample count.
func (e *Estimator) AddSample(s Sample) {
	e.window = append(e.window, s)
	if len(e.window) > e.sampleCount {
		e.window = e.window[len(e.window)-e.sampleCount:]
	}
}

// SampleCount returns the current window occupancy, always <= the
// configured window size.
func (e *Estimator) SampleCount() int {
	return len(e.window)
}

// Full reports whether the window has reached its configured size.
func (e *Estimator) Full() bool {
	return len(e.window) >= e.sampleCount
}

// Reset empties the window and clears the last solve.
func (e *Estimator) Reset() {
	e.window = e.window[:0]
	e.valid = false
}

// DropOldest removes the oldest n samples from the window (used by
// incremental mode's "drop stride" to keep the window responsive).
func (e *Estimator) DropOldest(n int) {
	if n >= len(e.window) {
		e.window = e.window[:0]
		return
	}
	e.window = e.window[n:]
}

// IsValid reports whether the estimator holds a prior successful solve.
func (e *Estimator) IsValid() bool {
	return e.valid
}

// RelativeTransformation returns the last accepted solve. Only meaningful
// when IsValid is true.
func (e *Estimator) RelativeTransformation() Result {
	return e.lastResult
}

// SeedRelativeTransformation primes the incremental solver's baseline with a
// pose obtained outside a fresh Compute call, e.g. the pose already applied
// from a prior one-shot calibration. When calibrated is true, the next
// ComputeIncremental call is judged against pose's translation instead of
// being accepted unconditionally as a first solve.
func (e *Estimator) SeedRelativeTransformation(pose spatialmath.Pose, calibrated bool) {
	e.valid = calibrated
	e.lastAppliedTrans = pose.Point()
}

// ReferenceJitter returns the standard deviation of the window's reference
// position samples: the Euclidean spread about the window centroid, i.e. the
// square root of the summed per-axis variances.
func (e *Estimator) ReferenceJitter() float64 {
	return jitterOf(e.referencePositions())
}

// TargetJitter returns the equivalent jitter metric for the target device.
func (e *Estimator) TargetJitter() float64 {
	return jitterOf(e.targetPositions())
}

func (e *Estimator) referencePositions() []r3.Vector {
	out := make([]r3.Vector, len(e.window))
	for i, s := range e.window {
		out[i] = s.Reference.Point()
	}
	return out
}

func (e *Estimator) targetPositions() []r3.Vector {
	out := make([]r3.Vector, len(e.window))
	for i, s := range e.window {
		out[i] = s.Target.Point()
	}
	return out
}

func jitterOf(positions []r3.Vector) float64 {
	if len(positions) == 0 {
		return 0
	}
	xs := make([]float64, len(positions))
	ys := make([]float64, len(positions))
	zs := make([]float64, len(positions))
	for i, p := range positions {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	sx, sy, sz := stat.StdDev(xs, nil), stat.StdDev(ys, nil), stat.StdDev(zs, nil)
	return math.Sqrt(sx*sx + sy*sy + sz*sz)
}

// buildDeltaSamples forms every unordered pair of Samples in the window and
// computes their gated, normalized rotation-axis deltas, using the relaxed
// static-recalibration thresholds when e is configured to allow them.
func (e *Estimator) buildDeltaSamples() []deltaSample {
	angleThreshold, axisNormThreshold := deltaAngleThreshold, deltaAxisNormThreshold
	if e.allowStaticRecalibration {
		angleThreshold, axisNormThreshold = staticAngleThreshold, staticAxisNormThreshold
	}
	var deltas []deltaSample
	for i := 0; i < len(e.window); i++ {
		for j := i + 1; j < len(e.window); j++ {
			deltas = append(deltas, deltaSampleForThresholds(e.window[i], e.window[j], angleThreshold, axisNormThreshold))
		}
	}
	return deltas
}

// deltaSampleFor gates a and b against the default rejection thresholds.
func deltaSampleFor(a, b Sample) deltaSample {
	return deltaSampleForThresholds(a, b, deltaAngleThreshold, deltaAxisNormThreshold)
}

func deltaSampleForThresholds(a, b Sample, angleThreshold, axisNormThreshold float64) deltaSample {
	refI := spatialmath.RotationMatrixOf(a.Reference)
	refJ := spatialmath.RotationMatrixOf(b.Reference)
	targetI := spatialmath.RotationMatrixOf(a.Target)
	targetJ := spatialmath.RotationMatrixOf(b.Target)

	dRef := refI.Mul(refJ.Transpose())
	dTarget := targetI.Mul(targetJ.Transpose())

	refAngle := spatialmath.AngleFromRotationMatrix(dRef)
	targetAngle := spatialmath.AngleFromRotationMatrix(dTarget)

	refAxisRaw := spatialmath.AxisFromRotationMatrix(dRef)
	targetAxisRaw := spatialmath.AxisFromRotationMatrix(dTarget)

	valid := refAngle > angleThreshold && targetAngle > angleThreshold &&
		refAxisRaw.Norm() > axisNormThreshold && targetAxisRaw.Norm() > axisNormThreshold

	if !valid {
		return deltaSample{valid: false}
	}
	return deltaSample{
		refAxis:    refAxisRaw.Normalize(),
		targetAxis: targetAxisRaw.Normalize(),
		valid:      true,
	}
}

// ComputeOneshot runs a single rotation + translation solve on the current
// window and, if it succeeds, records it as the last accepted solve.
func (e *Estimator) ComputeOneshot(ignoreOutliers bool) (Result, error) {
	result, err := e.solve(ignoreOutliers, false, r3.Vector{})
	if err != nil {
		return Result{}, err
	}
	e.valid = true
	e.lastResult = result
	e.lastAppliedTrans = result.TranslationMeters
	return result, nil
}

// ComputeIncremental re-solves the current window and accepts the new
// estimate only if it is close enough to the previously-applied one
// (thresholdPos meters) and its residual is low enough (thresholdErr). On
// acceptance it drops the oldest 10% of the window (minimum 1 sample) to
// keep the window responsive to drift.
func (e *Estimator) ComputeIncremental(thresholdPos, thresholdErr float64, ignoreOutliers, lockRelativePosition bool) (Result, bool, error) {
	lockedTrans := e.lastAppliedTrans
	result, err := e.solve(ignoreOutliers, lockRelativePosition, lockedTrans)
	if err != nil {
		return Result{}, false, err
	}

	if !e.valid {
		// First-ever solve in continuous mode: accept unconditionally, there
		// is nothing to compare against yet.
		e.valid = true
		e.lastResult = result
		e.lastAppliedTrans = result.TranslationMeters
		e.dropStride()
		return result, true, nil
	}

	delta := result.TranslationMeters.Sub(e.lastAppliedTrans).Norm()
	if delta >= thresholdPos || result.Residual >= thresholdErr {
		return result, false, nil
	}

	e.lastResult = result
	e.lastAppliedTrans = result.TranslationMeters
	e.dropStride()
	return result, true, nil
}

// dropStride removes sampleCount/10 samples, with a floor of 1, per the
// original's undocumented "make room for new ones" behavior.
func (e *Estimator) dropStride() {
	n := e.sampleCount / 10
	if n < 1 {
		n = 1
	}
	e.DropOldest(n)
}

func (e *Estimator) solve(ignoreOutliers, lockTranslation bool, lockedTranslation r3.Vector) (Result, error) {
	deltas := e.buildDeltaSamples()
	var valid []deltaSample
	for _, d := range deltas {
		if d.valid {
			valid = append(valid, d)
		}
	}
	if len(valid) < minValidDeltas {
		return Result{}, ErrTooFewDeltas
	}

	rot, err := solveRotation(valid)
	if err != nil {
		return Result{}, err
	}

	var trans r3.Vector
	var residual float64
	if lockTranslation {
		trans = lockedTranslation
	} else {
		trans, residual, err = solveTranslation(e.window, ignoreOutliers)
		if err != nil {
			return Result{}, err
		}
	}

	if math.IsNaN(trans.X) || math.IsNaN(trans.Y) || math.IsNaN(trans.Z) {
		return Result{}, errors.Wrap(ErrSingularSystem, "translation solve produced NaN")
	}

	return Result{
		RotationQuat:           rot.Quaternion(),
		RotationEuler:          rot.EulerAngles(),
		TranslationMeters:      trans,
		TranslationCentimeters: trans.Mul(100),
		Residual:               residual,
	}, nil
}
