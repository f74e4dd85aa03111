package calibration

import (
	"context"

	"github.com/spacecalibrator/core/calibcontext"
	"github.com/spacecalibrator/core/ipc"
)

// deviceSlots bounds the recognized device index range (spec: [0, 64)).
const deviceSlots = 64

// noopDeviceInfo fails every tracking-system lookup, which routes every
// device through ResetAndDisableOffsets. Used when no real
// DeviceInfoProvider is wired.
type noopDeviceInfo struct{}

func (noopDeviceInfo) TrackingSystemName(int) (string, bool) { return "", false }

// ProfileApplier pushes the current calibration profile, or a disabled
// identity transform, to every connected device over the IPC socket. It is
// the periodic side effect StateMachine drives on its scan cadence.
type ProfileApplier struct {
	ctx    *calibcontext.Context
	client *ipc.Client
	info   calibcontext.DeviceInfoProvider
}

// NewProfileApplier builds a ProfileApplier. A nil info falls back to a
// provider that fails every lookup.
func NewProfileApplier(ctx *calibcontext.Context, client *ipc.Client, info calibcontext.DeviceInfoProvider) *ProfileApplier {
	if info == nil {
		info = noopDeviceInfo{}
	}
	return &ProfileApplier{ctx: ctx, client: client, info: info}
}

// Scan pushes the alignment speed schedule once, then a transform to every
// connected device, then reapplies the chaperone snapshot if the auto-apply
// collaborator decides it should.
func (a *ProfileApplier) Scan(state State) error {
	a.ctx.Enabled = a.ctx.ValidProfile

	if _, err := a.client.Send(context.Background(), ipc.SetAlignmentSpeedParamsRequest(a.ctx.AlignmentSpeedParams)); err != nil {
		return err
	}

	for id := 0; id < deviceSlots; id++ {
		if !a.ctx.DriverPoses[id].DeviceIsConnected {
			continue
		}
		if err := a.scanDevice(id, state); err != nil {
			return err
		}
	}

	if a.ctx.Enabled && a.ctx.Chaperone.Valid && a.ctx.Chaperone.AutoApply {
		if err := a.ctx.ChaperoneApplier.ApplyChaperone(a.ctx.Chaperone); err != nil {
			return err
		}
	}
	return nil
}

// scanDevice implements both ResetAndDisableOffsets call sites: a globally
// disabled profile, an unqueryable tracking system, and a tracking-system
// mismatch all reset the device to a disabled identity transform. The HMD
// never receives the calibrated transform even on a match; its only role
// here is flipping the scan's enabled flag for the rest of the devices when
// its own tracking system doesn't match the reference.
func (a *ProfileApplier) scanDevice(id int, state State) error {
	if !a.ctx.Enabled {
		return a.ResetAndDisableOffsets(id)
	}

	trackingSystem, ok := a.info.TrackingSystemName(id)
	if !ok {
		return a.ResetAndDisableOffsets(id)
	}

	if id == hmdDeviceID {
		if trackingSystem != a.ctx.ReferenceTrackingSystem {
			a.ctx.Enabled = false
		}
		return a.ResetAndDisableOffsets(id)
	}

	if trackingSystem != a.ctx.TargetTrackingSystem {
		return a.ResetAndDisableOffsets(id)
	}

	req := ipc.SetDeviceTransform{
		OpenVRID:          uint32(id),
		Enabled:           true,
		UpdateTranslation: true,
		UpdateRotation:    true,
		UpdateScale:       true,
		Translation:       a.ctx.RefToTargetPose.Point(),
		Rotation:          a.ctx.RefToTargetPose.Orientation().Quaternion(),
		Scale:             a.ctx.CalibratedScale,
		Lerp:              state == StateContinuous,
		Quash:             state == StateContinuous && id == a.ctx.TargetID && a.ctx.QuashTargetInContinuous,
	}
	_, err := a.client.Send(context.Background(), ipc.SetDeviceTransformRequest(req))
	return err
}

// ResetAndDisableOffsets sends the zero-translation, identity-rotation,
// disabled transform for id. Called both from ProfileApplier's own scan and
// from StateMachine when entering Rotation state.
func (a *ProfileApplier) ResetAndDisableOffsets(id int) error {
	_, err := a.client.Send(context.Background(), ipc.SetDeviceTransformRequest(ipc.ResetAndDisableOffsets(uint32(id))))
	return err
}
