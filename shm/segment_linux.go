//go:build linux

package shm

import (
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// shmDir is the tmpfs-backed POSIX shared-memory namespace on Linux. Opening
// a plain file here is equivalent to glibc's shm_open(3), which is itself
// implemented as open() against this directory; using unix.Open directly
// avoids linking cgo into the binary (see allegro-bigcache's unix.Mmap use
// of the same package for the same reason).
const shmDir = "/dev/shm"

// segmentHandle is the OS-level resource backing a Segment on Linux: a file
// descriptor into the shared-memory namespace.
type segmentHandle struct {
	fd int
}

func shmPath(name string) string {
	return filepath.Join(shmDir, name)
}

func platformOpenOrCreate(name string) (segmentHandle, uint64, error) {
	fd, err := unix.Open(shmPath(name), unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return segmentHandle{}, 0, err
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return segmentHandle{}, 0, err
	}

	return segmentHandle{fd: fd}, uint64(st.Size), nil
}

func platformTruncate(h segmentHandle, size uint64) error {
	return unix.Ftruncate(h.fd, int64(size))
}

func platformMap(h segmentHandle, size uint64) (unsafe.Pointer, error) {
	b, err := unix.Mmap(h.fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	return unsafe.Pointer(&b[0]), nil
}

func platformUnmap(base unsafe.Pointer, size uint64) error {
	b := unsafe.Slice((*byte)(base), size)
	return unix.Munmap(b)
}

func platformClose(h segmentHandle) error {
	return unix.Close(h.fd)
}

func platformUnlink(name string) error {
	return unix.Unlink(shmPath(name))
}
