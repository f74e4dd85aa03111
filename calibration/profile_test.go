package calibration

import (
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/spacecalibrator/core/calibcontext"
	"github.com/spacecalibrator/core/ipc"
	"github.com/spacecalibrator/core/spatialmath"
)

// recordingDriver accepts one connection and echoes Ok=true for every
// request, recording every SetDeviceTransform it receives in order.
type recordingDriver struct {
	mu         sync.Mutex
	transforms []ipc.SetDeviceTransform
	sawParams  int
}

func (d *recordingDriver) transformsFor(id int) []ipc.SetDeviceTransform {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ipc.SetDeviceTransform
	for _, tr := range d.transforms {
		if int(tr.OpenVRID) == id {
			out = append(out, tr)
		}
	}
	return out
}

func startRecordingDriver(t *testing.T, path string) *recordingDriver {
	t.Helper()
	l, err := net.Listen("unix", path)
	test.That(t, err, test.ShouldBeNil)

	d := &recordingDriver{}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			req, err := ipc.DecodeRequest(conn)
			if err != nil {
				return
			}
			var resp ipc.Response
			switch req.Type {
			case ipc.RequestHandshake:
				resp = ipc.Response{Type: ipc.ResponseHandshake, Ok: true, Handshake: ipc.Protocol{Version: ipc.CurrentProtocolVersion}}
			case ipc.RequestSetDeviceTransform:
				d.mu.Lock()
				d.transforms = append(d.transforms, req.SetDeviceTransform)
				d.mu.Unlock()
				resp = ipc.Response{Type: ipc.ResponseSetDeviceTransform, Ok: true}
			case ipc.RequestSetAlignmentSpeedParams:
				d.mu.Lock()
				d.sawParams++
				d.mu.Unlock()
				resp = ipc.Response{Type: ipc.ResponseSetAlignmentSpeedParams, Ok: true}
			default:
				resp = ipc.Response{Type: ipc.ResponseError, Ok: false}
			}
			if err := ipc.EncodeResponse(conn, resp); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { l.Close() })
	return d
}

type fakeDeviceInfo struct {
	systems map[int]string
}

func (f fakeDeviceInfo) TrackingSystemName(id int) (string, bool) {
	s, ok := f.systems[id]
	return s, ok
}

func newTestContext(t *testing.T) *calibcontext.Context {
	t.Helper()
	cfg := calibcontext.DefaultConfig()
	cfg.ReferenceID, cfg.TargetID = 1, 2
	cfg.ReferenceTrackingSystem = "lighthouse"
	cfg.TargetTrackingSystem = "lighthouse"
	return calibcontext.New(cfg, golog.NewTestLogger(t))
}

func TestScanSkipsDisconnectedDevices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacecal.sock")
	drv := startRecordingDriver(t, path)

	client := ipc.NewClient(path, golog.NewTestLogger(t))
	defer client.Close()

	ctx := newTestContext(t)
	ctx.ValidProfile = true
	// Only device 1 is connected.
	ctx.DriverPoses[1].DeviceIsConnected = true

	info := fakeDeviceInfo{systems: map[int]string{0: "lighthouse", 1: "lighthouse", 2: "lighthouse"}}
	applier := NewProfileApplier(ctx, client, info)

	test.That(t, applier.Scan(StateNone), test.ShouldBeNil)
	test.That(t, drv.sawParams, test.ShouldEqual, 1)
	test.That(t, len(drv.transformsFor(2)), test.ShouldEqual, 0)
}

func TestScanDisablesHMDOnTrackingSystemMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacecal.sock")
	drv := startRecordingDriver(t, path)

	client := ipc.NewClient(path, golog.NewTestLogger(t))
	defer client.Close()

	ctx := newTestContext(t)
	ctx.ValidProfile = true
	ctx.DriverPoses[hmdDeviceID].DeviceIsConnected = true
	ctx.DriverPoses[2].DeviceIsConnected = true

	info := fakeDeviceInfo{systems: map[int]string{hmdDeviceID: "oculus", 2: "lighthouse"}}
	applier := NewProfileApplier(ctx, client, info)

	test.That(t, applier.Scan(StateNone), test.ShouldBeNil)

	hmdTransforms := drv.transformsFor(hmdDeviceID)
	test.That(t, len(hmdTransforms), test.ShouldEqual, 1)
	test.That(t, hmdTransforms[0].Enabled, test.ShouldBeFalse)

	// Target's own tracking system matches, but the HMD mismatch disabled
	// the whole scan, so it gets reset too.
	targetTransforms := drv.transformsFor(2)
	test.That(t, len(targetTransforms), test.ShouldEqual, 1)
	test.That(t, targetTransforms[0].Enabled, test.ShouldBeFalse)
}

func TestScanAppliesCalibratedTransformOnMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacecal.sock")
	drv := startRecordingDriver(t, path)

	client := ipc.NewClient(path, golog.NewTestLogger(t))
	defer client.Close()

	ctx := newTestContext(t)
	ctx.ValidProfile = true
	ctx.DriverPoses[hmdDeviceID].DeviceIsConnected = true
	ctx.DriverPoses[2].DeviceIsConnected = true
	ctx.RefToTargetPose = spatialmath.NewPose(spatialmath.NewZeroPose().Point(), spatialmath.NewZeroOrientation())
	ctx.CalibratedScale = 1

	info := fakeDeviceInfo{systems: map[int]string{hmdDeviceID: "lighthouse", 2: "lighthouse"}}
	applier := NewProfileApplier(ctx, client, info)

	test.That(t, applier.Scan(StateContinuous), test.ShouldBeNil)

	targetTransforms := drv.transformsFor(2)
	test.That(t, len(targetTransforms), test.ShouldEqual, 1)
	test.That(t, targetTransforms[0].Enabled, test.ShouldBeTrue)
	test.That(t, targetTransforms[0].Lerp, test.ShouldBeTrue)

	// The HMD never receives the calibrated transform, even on a match.
	hmdTransforms := drv.transformsFor(hmdDeviceID)
	test.That(t, len(hmdTransforms), test.ShouldEqual, 1)
	test.That(t, hmdTransforms[0].Enabled, test.ShouldBeFalse)
}

func TestScanResetsOnUnqueryableTrackingSystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacecal.sock")
	drv := startRecordingDriver(t, path)

	client := ipc.NewClient(path, golog.NewTestLogger(t))
	defer client.Close()

	ctx := newTestContext(t)
	ctx.ValidProfile = true
	ctx.DriverPoses[2].DeviceIsConnected = true

	applier := NewProfileApplier(ctx, client, nil) // no-op info: every lookup fails

	test.That(t, applier.Scan(StateNone), test.ShouldBeNil)
	transforms := drv.transformsFor(2)
	test.That(t, len(transforms), test.ShouldEqual, 1)
	test.That(t, transforms[0].Enabled, test.ShouldBeFalse)
}
