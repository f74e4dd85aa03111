package shmem

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultSegmentName is the POSIX shared-memory object name the driver
// publishes poses under.
const DefaultSegmentName = "/OpenVRSpaceCalibratorPoseMemory"

// indexHeaderSize is the size in bytes of the leading atomic index field.
const indexHeaderSize = 8

// segmentSize is the fixed size of the mapped region: one atomic u64 index
// followed by SlotCount fixed-size records.
var segmentSize = indexHeaderSize + SlotCount*recordSize

// Segment is a mapped view of the named shared-memory ring. The zero value
// is not usable; construct with Open or Create.
type Segment struct {
	fd   int
	data []byte
	path string
}

// pathFor maps a POSIX shared-memory object name (leading slash, no other
// slashes) to its /dev/shm-backed path on Linux.
func pathFor(name string) string {
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return "/dev/shm/" + name
}

// Open maps an existing segment for reading. It is idempotent: callers may
// Open multiple independent Segments against the same name, each with its
// own mapping, and each must Close to release its own mapping.
func Open(name string) (*Segment, error) {
	return open(name, false)
}

// Create opens the segment, creating and sizing it if necessary. Used by
// writer-side test fakes; the real production writer is the external
// driver process and is outside this module's scope.
func Create(name string) (*Segment, error) {
	return open(name, true)
}

func open(name string, create bool) (*Segment, error) {
	path := pathFor(name)
	flags := unix.O_RDWR
	if create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "shmem: open %s", path)
	}

	if create {
		var st unix.Stat_t
		err := unix.Fstat(fd, &st)
		if err != nil {
			unix.Close(fd)
			return nil, errors.Wrapf(err, "shmem: stat %s", path)
		}
		if int(st.Size) != segmentSize {
			if err := unix.Ftruncate(fd, int64(segmentSize)); err != nil {
				unix.Close(fd)
				return nil, errors.Wrapf(err, "shmem: truncate %s", path)
			}
		}
	}

	data, err := unix.Mmap(fd, 0, segmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "shmem: mmap %s", path)
	}

	return &Segment{fd: fd, data: data, path: path}, nil
}

// Close unmaps the segment and closes its file descriptor. The mapping must
// be released before the descriptor is closed.
func (s *Segment) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return errors.Wrapf(err, "shmem: munmap %s", s.path)
	}
	return errors.Wrapf(unix.Close(s.fd), "shmem: close %s", s.path)
}

// index returns a pointer to the atomic index header, suitable for
// sync/atomic operations.
func (s *Segment) index() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[0]))
}

// LoadIndex performs an acquire-load of the writer's index: the count of
// records ever published.
func (s *Segment) LoadIndex() uint64 {
	return atomic.LoadUint64(s.index())
}

func (s *Segment) slotOffset(k uint64) int {
	slot := int(k % SlotCount)
	return indexHeaderSize + slot*recordSize
}

// Publish writes ap to the slot for the next index and release-stores the
// incremented index, in that order, so a reader that observes the new index
// is guaranteed to see the fully-written slot. Used by writer-side test
// fakes to emulate the external driver.
func (s *Segment) Publish(ap AugmentedPose) (uint64, error) {
	next := s.LoadIndex()
	off := s.slotOffset(next)
	copy(s.data[off:off+recordSize], encodeRecord(ap))
	atomic.StoreUint64(s.index(), next+1)
	return next, nil
}

// readSlot returns the decoded record at absolute index k.
func (s *Segment) readSlot(k uint64) (AugmentedPose, error) {
	off := s.slotOffset(k)
	return decodeRecord(s.data[off : off+recordSize])
}

// Destroy removes the named segment's backing file. Used by tests and by
// operators cleaning up after a crashed driver; production readers never
// call this.
func Destroy(name string) error {
	return errors.Wrapf(os.Remove(pathFor(name)), "shmem: destroy %s", pathFor(name))
}
