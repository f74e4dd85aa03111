// Package calibration drives the tick-based calibration state machine and
// the per-tick profile push, on top of the estimator's rotation/translation
// solves.
package calibration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/spacecalibrator/core/calibcontext"
	"github.com/spacecalibrator/core/calibration/estimator"
	"github.com/spacecalibrator/core/spatialmath"
)

// State is the calibration state machine's current mode.
type State int

const (
	StateNone State = iota
	StateBegin
	StateRotation
	StateTranslation
	StateContinuous
	StateContinuousStandby
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateBegin:
		return "Begin"
	case StateRotation:
		return "Rotation"
	case StateTranslation:
		return "Translation"
	case StateContinuous:
		return "Continuous"
	case StateContinuousStandby:
		return "ContinuousStandby"
	case StateEditing:
		return "Editing"
	default:
		return "Unknown"
	}
}

// hmdDeviceID is the tracked device index OpenVR always assigns to the HMD.
const hmdDeviceID = 0

const (
	tickInterval           = 0.05 // seconds, minimum spacing between acted-on ticks
	scanIntervalIdle       = 1.0
	scanIntervalEditing    = 0.1
	scanIntervalContinuous = 1.0
	rescanInterval         = 10.0
)

// StateMachine drives one calibration run: gating on device validity and
// jitter, collecting paired samples, and handing them to an Estimator. It is
// not safe for concurrent use; callers serialize Tick from a single loop.
type StateMachine struct {
	ctx       *calibcontext.Context
	estimator *estimator.Estimator
	applier   *ProfileApplier

	state State

	lastTickTime   float64
	lastScanTime   float64
	lastRescanTime float64

	lastHMDPosition r3.Vector
	hmdPositionSeen bool

	deviceIDsCaptured bool
	lastReferenceID   int
	lastTargetID      int
}

// NewStateMachine builds a StateMachine in StateNone.
func NewStateMachine(ctx *calibcontext.Context, est *estimator.Estimator, applier *ProfileApplier) *StateMachine {
	return &StateMachine{ctx: ctx, estimator: est, applier: applier, state: StateNone}
}

// State returns the current mode.
func (m *StateMachine) State() State {
	return m.state
}

// StartCalibration begins a one-shot rotation+translation calibration.
func (m *StateMachine) StartCalibration() {
	m.state = StateBegin
	m.estimator.Reset()
	m.deviceIDsCaptured = false
}

// StartContinuousCalibration reassigns targets, seeds the estimator's
// incremental baseline from whatever calibration is already applied, and
// jumps straight into StateContinuous (never through Begin, so Begin's
// device/jitter gate never runs for continuous mode).
func (m *StateMachine) StartContinuousCalibration() error {
	m.ctx.HasAppliedCalibrationResult = false
	if err := m.ctx.TargetAssigner.AssignTargets(m.ctx); err != nil {
		return err
	}
	m.StartCalibration()
	m.state = StateContinuous
	m.estimator.SeedRelativeTransformation(m.ctx.RefToTargetPose, m.ctx.RelativePosCalibrated)

	if m.ctx.LockRelativePosition {
		m.ctx.Log("Relative position locked")
	} else {
		m.ctx.Log("Collecting initial samples...")
	}
	return nil
}

// EndContinuousCalibration returns to StateNone and persists the last
// accepted profile.
func (m *StateMachine) EndContinuousCalibration() error {
	m.state = StateNone
	m.ctx.RelativePosCalibrated = false
	if err := m.ctx.ProfileSaver.SaveProfile(m.ctx); err != nil {
		return err
	}
	m.ctx.Log("Continuous calibration stopped, profile saved")
	return nil
}

// Tick advances the state machine by one host-loop iteration at time t
// (seconds, monotonic). Ticks arriving faster than tickInterval are no-ops;
// a stale or origin-pinned HMD reading skips sample collection for this
// tick entirely, since it usually means the fallback tracking API hasn't
// refreshed since the last call.
func (m *StateMachine) Tick(t float64) error {
	if (t - m.lastTickTime) < tickInterval {
		return nil
	}

	if m.state == StateContinuous || m.state == StateContinuousStandby {
		m.ctx.ClearLogOnMessage()
		if err := m.maybeRescan(t); err != nil {
			return err
		}
	}

	m.lastTickTime = t

	if m.hmdStale() {
		return nil
	}

	m.trackDeviceIDChanges()

	if m.state == StateContinuous || m.state == StateContinuousStandby {
		if t-m.lastScanTime >= scanIntervalContinuous {
			if err := m.applyProfile(); err != nil {
				return err
			}
			m.lastScanTime = t
		}
	}

	switch m.state {
	case StateNone:
		if t-m.lastScanTime >= scanIntervalIdle {
			if err := m.applyProfile(); err != nil {
				return err
			}
			m.lastScanTime = t
		}
		return nil
	case StateEditing:
		if t-m.lastScanTime >= scanIntervalEditing {
			if err := m.applyProfile(); err != nil {
				return err
			}
			m.lastScanTime = t
		}
		return nil
	case StateBegin:
		return m.tickBegin()
	default:
		return m.tickCollectAndSolve(t)
	}
}

// maybeRescan re-selects reference/target devices every rescanInterval
// seconds while a profile set up via controller trigger press is running
// continuously, so a dropped/reconnected controller gets picked back up
// without restarting calibration.
func (m *StateMachine) maybeRescan(t float64) error {
	if !m.ctx.RequireTriggerPressToApply {
		return nil
	}
	if t-m.lastRescanTime <= rescanInterval {
		return nil
	}
	m.lastRescanTime = t
	return m.ctx.TargetAssigner.AssignTargets(m.ctx)
}

// hmdStale reports whether the fallback tracking API's HMD pose is at the
// origin (device not yet reporting a real pose) or identical to the last
// tick's, either of which means this tick would otherwise process a sample
// that isn't actually fresh. A nil HMD pose (fallback API never populated
// slot 0) does not count as stale; it simply carries no information.
func (m *StateMachine) hmdStale() bool {
	hmd := m.ctx.DevicePoses[hmdDeviceID]
	if hmd == nil {
		return false
	}
	pos := hmd.Point()
	if pos == (r3.Vector{}) {
		return true
	}
	if m.hmdPositionSeen && pos == m.lastHMDPosition {
		return true
	}
	m.lastHMDPosition = pos
	m.hmdPositionSeen = true
	return false
}

// trackDeviceIDChanges warns if the reference/target device IDs change
// mid-calibration, without resetting the estimator's window: a UI-driven
// reassignment during Continuous/Rotation/Translation is unusual enough to
// flag but not itself invalid. StateContinuousStandby and StateEditing are
// deliberately excluded to match the original.
func (m *StateMachine) trackDeviceIDChanges() {
	scoped := m.state == StateContinuous || m.state == StateRotation || m.state == StateTranslation
	if !scoped {
		if m.state == StateNone {
			m.deviceIDsCaptured = false
		}
		return
	}

	if !m.deviceIDsCaptured {
		m.lastReferenceID = m.ctx.ReferenceID
		m.lastTargetID = m.ctx.TargetID
		m.deviceIDsCaptured = true
		m.ctx.Log("calibration started", "referenceId", m.ctx.ReferenceID, "targetId", m.ctx.TargetID)
		return
	}

	if m.lastReferenceID != m.ctx.ReferenceID || m.lastTargetID != m.ctx.TargetID {
		m.ctx.Warn("device ids changed during calibration",
			"oldReferenceId", m.lastReferenceID, "oldTargetId", m.lastTargetID,
			"newReferenceId", m.ctx.ReferenceID, "newTargetId", m.ctx.TargetID,
			"sampleCount", m.estimator.SampleCount())
		m.lastReferenceID = m.ctx.ReferenceID
		m.lastTargetID = m.ctx.TargetID
	}
}

// tickBegin validates the reference/target devices and tracking jitter
// before committing to Rotation. Continuous calibration never reaches
// Begin (StartContinuousCalibration jumps straight to StateContinuous), so
// a failure here always aborts to StateNone. The jitter check reads the
// estimator's window, which StartCalibration has just emptied, so it sees no
// samples and does not reject a run on jitter.
func (m *StateMachine) tickBegin() error {
	ok := true

	if m.ctx.ReferenceID == -1 {
		m.ctx.Log("Missing reference device")
		ok = false
	} else if !m.ctx.DriverPoses[m.ctx.ReferenceID].PoseIsValid {
		m.ctx.Log("Reference device is not tracking")
		ok = false
	}

	if m.ctx.TargetID == -1 {
		m.ctx.Log("Missing target device")
		ok = false
	} else if !m.ctx.DriverPoses[m.ctx.TargetID].PoseIsValid {
		m.ctx.Log("Target device is not tracking")
		ok = false
	}

	if m.estimator.ReferenceJitter() > m.ctx.JitterThreshold {
		m.ctx.Log("Reference device tracking is too jittery")
		ok = false
	}
	if m.estimator.TargetJitter() > m.ctx.JitterThreshold {
		m.ctx.Log("Target device tracking is too jittery")
		ok = false
	}

	if !ok {
		m.state = StateNone
		m.ctx.Log("Aborting calibration!")
		return nil
	}

	if err := m.applier.ResetAndDisableOffsets(m.ctx.TargetID); err != nil {
		return err
	}
	m.state = StateRotation
	m.ctx.Log("Starting calibration...")
	return nil
}

// tickCollectAndSolve collects one paired sample (skipping collection
// entirely in ContinuousStandby, which exists precisely to hold a
// calibration steady without absorbing new samples) and, once the window is
// full, solves and applies it.
func (m *StateMachine) tickCollectAndSolve(t float64) error {
	if m.state == StateContinuousStandby {
		return nil
	}

	sample, ok := m.collectSample(t)
	if !ok {
		return nil
	}
	m.estimator.AddSample(sample)

	if !m.estimator.Full() {
		return nil
	}

	m.ctx.ClearLogOnMessage()

	var result estimator.Result
	var success bool
	var err error
	if m.state == StateContinuous {
		result, success, err = m.estimator.ComputeIncremental(
			m.ctx.ContinuousCalibrationThreshold, m.ctx.MaxRelativeErrorThreshold,
			m.ctx.IgnoreOutliers, m.ctx.LockRelativePosition)
	} else {
		result, err = m.estimator.ComputeOneshot(m.ctx.IgnoreOutliers)
		success = err == nil
	}

	if cause := errors.Cause(err); err != nil && cause != estimator.ErrTooFewDeltas && cause != estimator.ErrSingularSystem {
		return err
	}

	if success && m.estimator.IsValid() {
		return m.applyResult(result)
	}

	if m.state != StateContinuous {
		m.ctx.Log("Calibration failed!")
		m.state = StateNone
		m.estimator.Reset()
	}
	return nil
}

// collectSample reads the reference/target world poses for this tick,
// applying the continuous-calibration offset to the reference position
// while in Continuous/ContinuousStandby. A device that has stopped
// tracking aborts a one-shot calibration back to StateNone; Continuous
// tolerates it and simply produces no sample this tick.
func (m *StateMachine) collectSample(t float64) (estimator.Sample, bool) {
	reference := m.ctx.DriverPoses[m.ctx.ReferenceID]
	target := m.ctx.DriverPoses[m.ctx.TargetID]

	ok := true
	if !reference.PoseIsValid {
		m.ctx.Log("Reference device is not tracking")
		ok = false
	}
	if !target.PoseIsValid {
		m.ctx.Log("Target device is not tracking")
		ok = false
	}
	if !ok {
		if m.state != StateContinuous {
			m.ctx.Log("Aborting calibration!")
			m.state = StateNone
		}
		return estimator.Sample{}, false
	}

	if m.state == StateContinuous || m.state == StateContinuousStandby {
		reference.VecPosition = reference.VecPosition.Add(m.ctx.ContinuousCalibrationOffset)
	}

	return estimator.Sample{
		Reference: spatialmath.ConvertPose(reference),
		Target:    spatialmath.ConvertPose(target),
		Timestamp: t,
		Valid:     true,
	}, true
}

// applyResult stores an accepted solve into Context, persists it, and
// pushes it to every device. Continuous mode stays running; one-shot modes
// return to StateNone and clear the window for the next run.
func (m *StateMachine) applyResult(result estimator.Result) error {
	orientation := spatialmath.NewOrientationFromQuaternion(result.RotationQuat)
	m.ctx.RefToTargetPose = spatialmath.NewPose(result.TranslationMeters, orientation)
	m.ctx.RelativePosCalibrated = true
	m.ctx.ValidProfile = true

	// Euler gives the per-axis breakdown operators expect; axis-angle gives
	// the single net rotation magnitude that's easier to eyeball for drift
	// between successive continuous solves.
	aa := orientation.AxisAngles()
	m.ctx.Log("calibrated rotation",
		"yawDeg", result.RotationEuler.Yaw, "pitchDeg", result.RotationEuler.Pitch, "rollDeg", result.RotationEuler.Roll,
		"angleDeg", aa.Theta*180/math.Pi, "axisX", aa.RX, "axisY", aa.RY, "axisZ", aa.RZ)
	m.ctx.Log("calibrated translation",
		"xCm", result.TranslationCentimeters.X, "yCm", result.TranslationCentimeters.Y, "zCm", result.TranslationCentimeters.Z)

	if err := m.ctx.ProfileSaver.SaveProfile(m.ctx); err != nil {
		return err
	}
	if err := m.applyProfile(); err != nil {
		return err
	}
	m.ctx.HasAppliedCalibrationResult = true

	if m.state == StateContinuous {
		m.ctx.Log("Continuous calibration updated")
		return nil
	}

	m.ctx.Log("Finished calibration, profile saved")
	m.state = StateNone
	m.estimator.DropOldest(m.estimator.SampleCount())
	return nil
}

// applyProfile pushes the current profile to every device, logging and
// swallowing IPC transport errors rather than propagating them: a dropped
// driver connection should not kill the tick loop, and ipc.Client already
// tears down and reconnects on its next Send.
func (m *StateMachine) applyProfile() error {
	if err := m.applier.Scan(m.state); err != nil {
		m.ctx.Warn("profile scan failed, will retry next tick", "err", err)
	}
	return nil
}
