package shmem

import (
	"github.com/edaniels/golog"
)

// Reader drains a Segment's ring into per-device callbacks, tracking its own
// cursor and per-device last-seen sample time so replayed or duplicate
// records are dropped. A Reader is not safe for concurrent use; the
// calibration engine drains it from its single tick loop.
type Reader struct {
	seg      *Segment
	cursor   uint64
	lastSeen [deviceSlots]SampleTime // indexed by deviceId
	logger   golog.Logger
}

// deviceSlots bounds the recognized device index range (spec: [0, 64)).
const deviceSlots = 64

// NewReader wraps seg with a fresh cursor starting at the segment's current
// index, so a newly-attached reader only observes records published after
// it started (matching the driver's "readers see forward from attach"
// behavior).
func NewReader(seg *Segment, logger golog.Logger) *Reader {
	return &Reader{
		seg:    seg,
		cursor: seg.LoadIndex(),
		logger: logger,
	}
}

// RecordCallback receives one deduplicated, in-ring-order pose record.
type RecordCallback func(deviceID int32, sampleTime SampleTime, pose AugmentedPose)

// Drain processes all records published since the last Drain call, applying
// ring-overflow fast-forward and per-device dedup, and never blocks.
func (r *Reader) Drain(cb RecordCallback) {
	latest := r.seg.LoadIndex()
	if latest == r.cursor {
		return
	}

	if latest-r.cursor > SlotCount {
		if r.logger != nil {
			r.logger.Warnw("shmem ring overflow, fast-forwarding reader cursor",
				"cursor", r.cursor, "latest", latest, "dropped", latest-r.cursor-SlotCount)
		}
		r.cursor = latest - SlotCount
	}

	for k := r.cursor; k < latest; k++ {
		ap, err := r.seg.readSlot(k)
		if err != nil {
			if r.logger != nil {
				r.logger.Warnw("shmem: failed to decode ring slot, skipping", "index", k, "err", err)
			}
			continue
		}
		if ap.DeviceID < 0 || int(ap.DeviceID) >= deviceSlots {
			continue
		}
		last := r.lastSeenFor(ap.DeviceID)
		if !last.Before(ap.SampleTime) {
			continue
		}
		r.setLastSeen(ap.DeviceID, ap.SampleTime)
		cb(ap.DeviceID, ap.SampleTime, ap)
	}
	r.cursor = latest
}

func (r *Reader) lastSeenFor(deviceID int32) SampleTime {
	return r.lastSeen[deviceID]
}

func (r *Reader) setLastSeen(deviceID int32, t SampleTime) {
	r.lastSeen[deviceID] = t
}
