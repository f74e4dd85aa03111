package calibration

import (
	"sync"

	"github.com/edaniels/golog"

	"github.com/spacecalibrator/core/calibcontext"
	"github.com/spacecalibrator/core/calibration/estimator"
	"github.com/spacecalibrator/core/ipc"
	"github.com/spacecalibrator/core/shmem"
)

// Engine owns everything one running calibration needs: recognized config
// and live state, the sample window, the shared-memory pose feed, and the
// IPC connection to the driver. It is the module's external surface; a host
// loop calls CalibrationTick at its own cadence (spec.md targets 20 Hz) and
// otherwise treats Engine as an opaque command target.
type Engine struct {
	Context      *calibcontext.Context
	Estimator    *estimator.Estimator
	Client       *ipc.Client
	StateMachine *StateMachine

	shmemReader *shmem.Reader
	shmemWarnOnce sync.Once
}

// InitCalibrator opens the shared-memory pose feed, creates the IPC client
// (which dials the socket on its first Send) and wires up a StateMachine. A
// shmem open failure is not fatal: it is logged once,
// and the Engine runs in degraded mode with only fallback-API HMD liveness
// available (spec.md's degraded-mode fallback).
func InitCalibrator(cfg calibcontext.Config, logger golog.Logger, info calibcontext.DeviceInfoProvider) (*Engine, error) {
	ctx := calibcontext.New(cfg, logger)
	socketPath := cfg.IPCSocketPath
	if socketPath == "" {
		socketPath = ipc.DefaultSocketPath
	}
	client := ipc.NewClient(socketPath, logger)
	est := estimator.New(cfg.SampleCount, cfg.EnableStaticRecalibration)
	applier := NewProfileApplier(ctx, client, info)

	e := &Engine{
		Context:      ctx,
		Estimator:    est,
		Client:       client,
		StateMachine: NewStateMachine(ctx, est, applier),
	}

	segmentName := cfg.ShmemSegmentName
	if segmentName == "" {
		segmentName = shmem.DefaultSegmentName
	}
	seg, err := shmem.Open(segmentName)
	if err != nil {
		e.warnShmemUnavailable(err)
		return e, nil
	}
	e.shmemReader = shmem.NewReader(seg, logger)
	return e, nil
}

func (e *Engine) warnShmemUnavailable(err error) {
	e.shmemWarnOnce.Do(func() {
		e.Context.Logger.Errorw("shmem pose feed unavailable, running in degraded mode", "err", err)
	})
}

// StartCalibration begins a one-shot calibration run.
func (e *Engine) StartCalibration() {
	e.StateMachine.StartCalibration()
}

// StartContinuousCalibration begins a continuous calibration run.
func (e *Engine) StartContinuousCalibration() error {
	return e.StateMachine.StartContinuousCalibration()
}

// EndContinuousCalibration stops a continuous run and persists the result.
func (e *Engine) EndContinuousCalibration() error {
	return e.StateMachine.EndContinuousCalibration()
}

// CalibrationTick drains any new shmem poses into Context and advances the
// state machine by one tick at time t (seconds, monotonic).
func (e *Engine) CalibrationTick(t float64) error {
	if e.shmemReader != nil {
		e.shmemReader.Drain(func(deviceID int32, _ shmem.SampleTime, ap shmem.AugmentedPose) {
			e.Context.DriverPoses[deviceID] = ap.Pose
		})
	}
	return e.StateMachine.Tick(t)
}

// LoadChaperoneBounds stores bounds as the playspace boundary snapshot, so it
// can be reapplied later if SteamVR resets it. It does not query the live
// geometry itself; the geometry format is out of scope, and this only records
// the bytes with Context.Chaperone.Valid set.
func (e *Engine) LoadChaperoneBounds(bounds []byte, autoApply bool) {
	e.Context.Chaperone = calibcontext.Chaperone{
		Bounds:    bounds,
		Valid:     true,
		AutoApply: autoApply,
	}
}

// ApplyChaperoneBounds reapplies the snapshotted chaperone geometry
// immediately, independent of the auto-apply heuristic ProfileApplier.Scan
// runs on every tick.
func (e *Engine) ApplyChaperoneBounds() error {
	return e.Context.ChaperoneApplier.ApplyChaperone(e.Context.Chaperone)
}

// Close releases the IPC connection.
func (e *Engine) Close() error {
	return e.Client.Close()
}
