package shm

import (
	"fmt"
	"unsafe"
)

// pageSize is the granularity a Segment's backing object is rounded up to.
// 4 KiB matches the common host page size assumed throughout spec.md.
const pageSize = 4096

func roundUpPage(n uint64) uint64 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Segment is an owned handle to a named shared-memory object. It tracks a
// base address and length separate from the object's authoritative on-disk
// size: another process may have grown the backing object without this
// handle's mapping having caught up yet. Queue uses that asymmetry as its
// cross-process cache-invalidation signal (see Queue.lastCapacity).
//
// A Segment is either mapped, with base non-nil and length equal to the
// authoritative size rounded up to a page, or unmapped, with base nil and
// length zero. It is not safe for concurrent use by multiple goroutines
// without external synchronization — Queue provides that synchronization
// via its own locks.
type Segment struct {
	name   string
	handle segmentHandle
	base   unsafe.Pointer
	length uint64
}

// Open opens or creates the named shared-memory object and maps its current
// byte length into the process, if nonzero. A freshly created object has
// zero length; Open leaves such a Segment unmapped (Ptr is undefined, Size
// is 0) so that a caller such as Queue can distinguish "just created" from
// "already initialized" and perform its own first Resize.
func Open(name string) (*Segment, error) {
	handle, existingSize, err := platformOpenOrCreate(name)
	if err != nil {
		return nil, fmt.Errorf("shm: open segment %q: %w: %w", name, ErrSegmentUnavailable, err)
	}

	seg := &Segment{name: name, handle: handle}

	if existingSize == 0 {
		return seg, nil
	}

	base, err := platformMap(handle, existingSize)
	if err != nil {
		_ = platformClose(handle)
		return nil, fmt.Errorf("shm: map segment %q: %w: %w", name, ErrSegmentUnavailable, err)
	}

	seg.base = base
	seg.length = existingSize
	debugf("shm: opened segment", "name", name, "size", existingSize)

	return seg, nil
}

// Resize rounds newBytes up to a page multiple, sets the backing object's
// length to that, unmaps the previous region (if any), and maps the new
// length. Must not be called concurrently on the same *Segment; Queue
// calls Resize from Attach, before the handle is returned, and otherwise
// only from its re-derivation routine while holding the global lock.
//
// After a successful call the base address has very likely changed; every
// pointer derived from the old base is invalid. If truncating the backing
// object or unmapping the old region fails, the Segment keeps its previous
// mapping; if mapping the new length fails, the Segment is left unmapped
// (base nil, length zero).
func (s *Segment) Resize(newBytes uint64) error {
	size := roundUpPage(newBytes)
	oldSize := s.length

	if err := platformTruncate(s.handle, size); err != nil {
		return fmt.Errorf("shm: truncate segment %q to %d bytes: %w: %w", s.name, size, ErrSegmentUnavailable, err)
	}

	if s.base != nil {
		if err := platformUnmap(s.base, s.length); err != nil {
			return fmt.Errorf("shm: unmap segment %q: %w: %w", s.name, ErrSegmentUnavailable, err)
		}
		s.base, s.length = nil, 0
	}

	base, err := platformMap(s.handle, size)
	if err != nil {
		return fmt.Errorf("shm: map segment %q to %d bytes: %w: %w", s.name, size, ErrSegmentUnavailable, err)
	}

	debugf("shm: resized segment", "name", s.name, "old_size", oldSize, "new_size", size)

	s.base = base
	s.length = size

	return nil
}

// Ptr returns base+offset as an unsafe.Pointer. Undefined when the segment
// is unmapped (base nil).
func (s *Segment) Ptr(offset uint64) unsafe.Pointer {
	return unsafe.Add(s.base, offset)
}

// Size returns the length currently mapped by this handle. This is not
// necessarily the authoritative on-disk length, which another process may
// have grown without this handle having re-mapped yet.
func (s *Segment) Size() uint64 {
	return s.length
}

// Name returns the shared-memory namespace name this Segment was opened
// with.
func (s *Segment) Name() string {
	return s.name
}

// Close unmaps and closes the segment, leaving its name in the shared-memory
// namespace for another process to open.
func (s *Segment) Close() error {
	if s.base != nil {
		if err := platformUnmap(s.base, s.length); err != nil {
			return fmt.Errorf("shm: unmap segment %q: %w: %w", s.name, ErrSegmentUnavailable, err)
		}
		s.base, s.length = nil, 0
	}

	if err := platformClose(s.handle); err != nil {
		return fmt.Errorf("shm: close segment %q: %w: %w", s.name, ErrSegmentUnavailable, err)
	}

	return nil
}

// Unlink closes the segment and removes its name from the shared-memory
// namespace. Processes that only Open a segment must not Unlink it; only
// the peer responsible for teardown should.
func (s *Segment) Unlink() error {
	if err := s.Close(); err != nil {
		return err
	}

	if err := platformUnlink(s.name); err != nil {
		return fmt.Errorf("shm: unlink segment %q: %w: %w", s.name, ErrSegmentUnavailable, err)
	}

	debugf("shm: unlinked segment", "name", s.name)

	return nil
}
