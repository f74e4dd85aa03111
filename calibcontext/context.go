package calibcontext

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/spacecalibrator/core/spatialmath"
)

// deviceSlots bounds the recognized device index range (spec: [0, 64)).
const deviceSlots = 64

// Chaperone is an opaque snapshot of the playspace boundary geometry. The
// geometry format itself is an external collaborator's concern; this
// module only tracks whether a snapshot exists and whether it should be
// auto-reapplied.
type Chaperone struct {
	Bounds    []byte
	Valid     bool
	AutoApply bool
}

// ChaperoneApplier reapplies a previously snapshotted Chaperone to the live
// tracking system. Satisfied by a no-op default when nothing outside this
// module wants to hear about it.
type ChaperoneApplier interface {
	ApplyChaperone(Chaperone) error
}

// TargetAssigner re-selects reference/target devices, used for the
// periodic controller-trigger rescan during Continuous/ContinuousStandby.
type TargetAssigner interface {
	AssignTargets(ctx *Context) error
}

// ProfileSaver persists the current calibration. Called after every
// accepted continuous update, at the end of a successful one-shot
// calibration, and when continuous calibration is stopped.
type ProfileSaver interface {
	SaveProfile(ctx *Context) error
}

// DeviceInfoProvider answers the tracking-runtime property queries
// ProfileApplier needs per device: which tracking system a device belongs
// to. The no-op default reports every query as failed, which routes every
// device through ResetAndDisableOffsets, matching the original's behavior
// when a property lookup errors.
type DeviceInfoProvider interface {
	TrackingSystemName(deviceID int) (string, bool)
}

type noopChaperoneApplier struct{}

func (noopChaperoneApplier) ApplyChaperone(Chaperone) error { return nil }

type noopTargetAssigner struct{}

func (noopTargetAssigner) AssignTargets(*Context) error { return nil }

type noopProfileSaver struct{}

func (noopProfileSaver) SaveProfile(*Context) error { return nil }

// Context holds recognized configuration plus the mutable live state the
// tick loop and external UI commands share. It is owned by the calling
// loop thread; nothing here is safe for concurrent access from more than
// one goroutine at a time.
type Context struct {
	Config

	Logger golog.Logger

	// DriverPoses are the most recent poses drained from PoseShmem, keyed
	// by device id.
	DriverPoses [deviceSlots]spatialmath.DriverPose
	// DevicePoses are the fallback tracking API's raw poses, used only for
	// the HMD liveness check.
	DevicePoses [deviceSlots]spatialmath.Pose

	LastScanTimestamp float64

	ValidProfile                bool
	Enabled                     bool
	RelativePosCalibrated       bool
	HasAppliedCalibrationResult bool

	RefToTargetPose             spatialmath.Pose
	CalibratedScale             float64
	ContinuousCalibrationOffset r3.Vector

	Chaperone Chaperone

	ChaperoneApplier ChaperoneApplier
	TargetAssigner   TargetAssigner
	ProfileSaver     ProfileSaver

	lastLoggedMessage string
}

// New builds a Context from cfg with no-op collaborator defaults. Callers
// wire real collaborators (chaperone application, target reassignment,
// profile persistence) by overwriting the corresponding field.
func New(cfg Config, logger golog.Logger) *Context {
	return &Context{
		Config:           cfg,
		Logger:           logger,
		RefToTargetPose:  spatialmath.NewZeroPose(),
		CalibratedScale:  1,
		ChaperoneApplier: noopChaperoneApplier{},
		TargetAssigner:   noopTargetAssigner{},
		ProfileSaver:     noopProfileSaver{},
	}
}

// Log emits msg at info level, coalescing consecutive identical messages so
// a tick-rate gate failure doesn't flood the log. Call ClearLogOnMessage to
// allow the same text to be logged again (typically on a state
// transition).
func (c *Context) Log(msg string, keysAndValues ...interface{}) {
	if msg == c.lastLoggedMessage {
		return
	}
	c.lastLoggedMessage = msg
	if c.Logger != nil {
		c.Logger.Infow(msg, keysAndValues...)
	}
}

// Warn emits msg at warn level with the same coalescing as Log.
func (c *Context) Warn(msg string, keysAndValues ...interface{}) {
	if msg == c.lastLoggedMessage {
		return
	}
	c.lastLoggedMessage = msg
	if c.Logger != nil {
		c.Logger.Warnw(msg, keysAndValues...)
	}
}

// ClearLogOnMessage resets the coalescing guard so the next call to Log or
// Warn always emits, even if its text matches the last message.
func (c *Context) ClearLogOnMessage() {
	c.lastLoggedMessage = ""
}

// ResetLiveState zero-initializes the pose arrays and applied-calibration
// flags, as the original does at startup and on device reselection.
func (c *Context) ResetLiveState() {
	c.DriverPoses = [deviceSlots]spatialmath.DriverPose{}
	c.DevicePoses = [deviceSlots]spatialmath.Pose{}
	c.RelativePosCalibrated = false
	c.HasAppliedCalibrationResult = false
	c.RefToTargetPose = spatialmath.NewZeroPose()
	c.ContinuousCalibrationOffset = r3.Vector{}
}
