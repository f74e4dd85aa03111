// Package shmem implements the lock-free, single-writer/multi-reader ring of
// timestamped driver poses that the calibration engine reads from a named
// POSIX shared-memory segment.
package shmem

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/spacecalibrator/core/spatialmath"
)

// SlotCount is the number of AugmentedPose records the ring holds. The slot
// for record k is k mod SlotCount.
const SlotCount = 65536

// SampleTime is a monotonic timestamp, matching the driver's clock_gettime
// pair. Comparisons are lexicographic on (Sec, Nsec).
type SampleTime struct {
	Sec  int64
	Nsec int64
}

// Before reports whether t happened strictly before other.
func (t SampleTime) Before(other SampleTime) bool {
	if t.Sec != other.Sec {
		return t.Sec < other.Sec
	}
	return t.Nsec < other.Nsec
}

// AugmentedPose is one ring slot: a driver pose plus the device it came from
// and the time it was sampled. Field order and type widths mirror the
// external driver's protocol::DriverPoseShmem::AugmentedPose C struct field
// for field (timespec, int deviceId, DriverPose_t pose), so the platform's
// own struct layout - not a hand-rolled serialization - is what has to match
// the driver's. The size and offset assertions below make a layout drift a
// build failure instead of a silently misread ring.
type AugmentedPose struct {
	SampleTime SampleTime
	DeviceID   int32
	Pose       spatialmath.DriverPose
}

// recordSize is the in-memory size of one AugmentedPose slot on this
// platform, including whatever alignment padding the compiler inserts
// before Pose to satisfy its float64 fields' 8-byte alignment - the same
// padding a C compiler inserts between deviceId and pose in the driver's
// struct.
const recordSize = int(unsafe.Sizeof(AugmentedPose{}))

// expectedRecordSize, expectedSampleTimeOffset, expectedDeviceIDOffset and
// expectedPoseOffset are the driver's actual C struct layout on a 64-bit
// Linux host: a 16-byte timespec, a 4-byte int deviceId, 4 bytes of
// alignment padding, then a 280-byte DriverPose_t
// (poseTimeOffset + 3 quaternions + 7 vec3s + result + 4 bools).
const (
	expectedRecordSize       = 16 + 4 + 4 + 280
	expectedSampleTimeOffset = 0
	expectedDeviceIDOffset   = 16
	expectedPoseOffset       = 24
)

// The blank arrays below are a build-time static assert: if this platform's
// compiled layout of AugmentedPose (or of spatialmath.DriverPose feeding
// into it) ever drifts from the driver's wire layout, one of the bounds
// below goes negative and the package fails to compile instead of silently
// misreading the shared-memory ring.
var (
	_ [expectedRecordSize - recordSize]byte
	_ [recordSize - expectedRecordSize]byte

	_ [expectedSampleTimeOffset - int(unsafe.Offsetof(AugmentedPose{}.SampleTime))]byte
	_ [int(unsafe.Offsetof(AugmentedPose{}.SampleTime)) - expectedSampleTimeOffset]byte

	_ [expectedDeviceIDOffset - int(unsafe.Offsetof(AugmentedPose{}.DeviceID))]byte
	_ [int(unsafe.Offsetof(AugmentedPose{}.DeviceID)) - expectedDeviceIDOffset]byte

	_ [expectedPoseOffset - int(unsafe.Offsetof(AugmentedPose{}.Pose))]byte
	_ [int(unsafe.Offsetof(AugmentedPose{}.Pose)) - expectedPoseOffset]byte
)

// encodeRecord copies ap's native in-memory representation into a
// freshly-allocated recordSize-byte buffer, byte-for-byte identical to what
// the driver itself would write for the same values.
func encodeRecord(ap AugmentedPose) []byte {
	buf := make([]byte, recordSize)
	*(*AugmentedPose)(unsafe.Pointer(&buf[0])) = ap
	return buf
}

// decodeRecord reinterprets exactly recordSize bytes of data as an
// AugmentedPose in place, without a field-by-field copy.
func decodeRecord(data []byte) (AugmentedPose, error) {
	if len(data) != recordSize {
		return AugmentedPose{}, errors.Errorf("shmem: record must be %d bytes, got %d", recordSize, len(data))
	}
	return *(*AugmentedPose)(unsafe.Pointer(&data[0])), nil
}
