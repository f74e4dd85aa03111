package shmem

import (
	"testing"

	"go.viam.com/test"
)

func TestReaderDedupesIdenticalSampleTime(t *testing.T) {
	name := "/spacecal-test-reader-dedup"
	defer Destroy(name)

	seg, err := Create(name)
	test.That(t, err, test.ShouldBeNil)
	defer seg.Close()

	r := NewReader(seg, nil)

	_, err = seg.Publish(testPose(1))
	test.That(t, err, test.ShouldBeNil)
	// Same (deviceId, sampleTime) published twice: the reader must invoke its
	// callback exactly once.
	_, err = seg.Publish(testPose(1))
	test.That(t, err, test.ShouldBeNil)

	calls := 0
	r.Drain(func(deviceID int32, st SampleTime, ap AugmentedPose) {
		calls++
	})
	test.That(t, calls, test.ShouldEqual, 1)

	// Draining again with nothing new published invokes the callback zero
	// times.
	calls = 0
	r.Drain(func(deviceID int32, st SampleTime, ap AugmentedPose) {
		calls++
	})
	test.That(t, calls, test.ShouldEqual, 0)
}

func TestReaderAdvancesOnDistinctTimes(t *testing.T) {
	name := "/spacecal-test-reader-advance"
	defer Destroy(name)

	seg, err := Create(name)
	test.That(t, err, test.ShouldBeNil)
	defer seg.Close()

	r := NewReader(seg, nil)

	_, err = seg.Publish(testPose(1))
	test.That(t, err, test.ShouldBeNil)
	_, err = seg.Publish(testPose(2))
	test.That(t, err, test.ShouldBeNil)
	_, err = seg.Publish(testPose(3))
	test.That(t, err, test.ShouldBeNil)

	var seen []int64
	r.Drain(func(deviceID int32, st SampleTime, ap AugmentedPose) {
		seen = append(seen, st.Nsec)
	})
	test.That(t, seen, test.ShouldResemble, []int64{1, 2, 3})
}

func TestReaderFastForwardsOnOverflow(t *testing.T) {
	name := "/spacecal-test-reader-overflow"
	defer Destroy(name)

	seg, err := Create(name)
	test.That(t, err, test.ShouldBeNil)
	defer seg.Close()

	r := NewReader(seg, nil)

	// Advance the writer's index far past SlotCount without ever draining,
	// simulating a reader that fell behind. Publish writes each slot as it
	// goes, so the final SlotCount slots hold real, decodable records; the
	// ones before that were overwritten.
	const overrun = SlotCount + 100
	for i := 0; i < overrun; i++ {
		_, err := seg.Publish(testPose(float64(i)))
		test.That(t, err, test.ShouldBeNil)
	}

	var minSeen uint64 = ^uint64(0)
	before := r.cursor
	r.Drain(func(deviceID int32, st SampleTime, ap AugmentedPose) {
		if uint64(st.Nsec) < minSeen {
			minSeen = uint64(st.Nsec)
		}
	})

	test.That(t, before, test.ShouldEqual, uint64(0))
	// No record older than (latest - SlotCount) may be delivered.
	test.That(t, minSeen, test.ShouldBeGreaterThanOrEqualTo, uint64(overrun-SlotCount))
	test.That(t, r.cursor, test.ShouldEqual, uint64(overrun))
}
