//go:build windows

package shm

import (
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"
)

// segmentHandle is the OS-level resource backing a Segment on Windows: a
// handle to a real backing file. Unlike a pagefile-backed named mapping
// (which fixes its size at creation and cannot grow), a file-backed mapping
// lets Resize actually change the backing size with SetEndOfFile the way
// ftruncate does on Linux, at the cost of the mapping not surviving after
// the last handle closes without also deleting the file (see Unlink).
type segmentHandle struct {
	file windows.Handle
}

func shmPath(name string) string {
	return filepath.Join(os.TempDir(), "shmipc-"+name)
}

func platformOpenOrCreate(name string) (segmentHandle, uint64, error) {
	pathPtr, err := windows.UTF16PtrFromString(shmPath(name))
	if err != nil {
		return segmentHandle{}, 0, err
	}

	h, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_ALWAYS,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return segmentHandle{}, 0, err
	}

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		_ = windows.CloseHandle(h)
		return segmentHandle{}, 0, err
	}

	size := uint64(info.FileSizeHigh)<<32 | uint64(info.FileSizeLow)

	return segmentHandle{file: h}, size, nil
}

func platformTruncate(h segmentHandle, size uint64) error {
	low := int32(uint32(size))
	high := int32(uint32(size >> 32))

	if _, err := windows.SetFilePointer(h.file, low, &high, windows.FILE_BEGIN); err != nil {
		return err
	}

	return windows.SetEndOfFile(h.file)
}

func platformMap(h segmentHandle, size uint64) (unsafe.Pointer, error) {
	mapping, err := windows.CreateFileMapping(h.file, nil, windows.PAGE_READWRITE, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(mapping)

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}

	return unsafe.Pointer(addr), nil
}

func platformUnmap(base unsafe.Pointer, _ uint64) error {
	return windows.UnmapViewOfFile(uintptr(base))
}

func platformClose(h segmentHandle) error {
	return windows.CloseHandle(h.file)
}

func platformUnlink(name string) error {
	return os.Remove(shmPath(name))
}
