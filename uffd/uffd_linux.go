//go:build linux

// Package uffd drives the kernel's userfaultfd write-protect facility: the
// capability handshake, region registration, per-page protect/unprotect, and
// the watcher that captures pre-write page contents.
package uffd

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers for amd64, from linux/userfaultfd.h.
const (
	// UFFDIO_API: _IOWR(0xAA, 0x3F, struct uffdio_api) where sizeof = 24.
	ioctlAPI = 0xc018aa3f
	// UFFDIO_REGISTER: _IOWR(0xAA, 0x00, struct uffdio_register) where sizeof = 32.
	ioctlRegister = 0xc020aa00
	// UFFDIO_UNREGISTER: _IOR(0xAA, 0x01, struct uffdio_range) where sizeof = 16.
	ioctlUnregister = 0x8010aa01
	// UFFDIO_WRITEPROTECT: _IOWR(0xAA, 0x06, struct uffdio_writeprotect) where sizeof = 24.
	ioctlWriteProtect = 0xc018aa06
)

const (
	apiVersion = 0xaa // UFFD_API

	featurePagefaultFlagWP = 1 << 0 // UFFD_FEATURE_PAGEFAULT_FLAG_WP

	registerModeWP = 1 << 1 // UFFDIO_REGISTER_MODE_WP

	writeProtectModeWP = 1 << 0 // UFFDIO_WRITEPROTECT_MODE_WP

	// EventPagefault is the uffd_msg event byte for a page fault.
	EventPagefault = 0x12

	// PagefaultFlagWP marks a fault caused by a write to a write-protected page.
	PagefaultFlagWP = 1 << 1

	// MsgSize is sizeof(struct uffd_msg) on amd64.
	MsgSize = 32
)

// uffdioAPI matches struct uffdio_api (24 bytes).
type uffdioAPI struct {
	api      uint64
	features uint64
	ioctls   uint64
}

// uffdioRange matches struct uffdio_range (16 bytes).
type uffdioRange struct {
	start uint64
	len   uint64
}

// uffdioRegister matches struct uffdio_register (32 bytes).
type uffdioRegister struct {
	rng    uffdioRange
	mode   uint64
	ioctls uint64
}

// uffdioWriteProtect matches struct uffdio_writeprotect (24 bytes).
type uffdioWriteProtect struct {
	rng  uffdioRange
	mode uint64
}

// Compile-time size assertions against the kernel ABI.
var (
	_ [24]byte = [unsafe.Sizeof(uffdioAPI{})]byte{}
	_ [16]byte = [unsafe.Sizeof(uffdioRange{})]byte{}
	_ [32]byte = [unsafe.Sizeof(uffdioRegister{})]byte{}
	_ [24]byte = [unsafe.Sizeof(uffdioWriteProtect{})]byte{}
)

// Range is a registered address range.
type Range struct {
	Start uintptr
	Len   int
}

// Fd is an open userfaultfd descriptor that has completed the write-protect
// capability handshake.
type Fd struct {
	fd int
}

// Open creates a userfaultfd and performs the UFFDIO_API handshake, requiring
// write-protect fault support. A kernel without that capability is a fatal
// setup condition reported as an error.
func Open() (*Fd, error) {
	fd, _, errno := unix.Syscall(unix.SYS_USERFAULTFD, unix.O_CLOEXEC|unix.O_NONBLOCK, 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("userfaultfd: %v", errno)
	}

	api := uffdioAPI{api: apiVersion}
	if err := ioctl(int(fd), ioctlAPI, unsafe.Pointer(&api)); err != nil {
		unix.Close(int(fd))
		return nil, fmt.Errorf("UFFDIO_API: %v", err)
	}
	if api.api != apiVersion {
		unix.Close(int(fd))
		return nil, fmt.Errorf("UFFDIO_API version mismatch: kernel reports %#x", api.api)
	}
	if api.features&featurePagefaultFlagWP == 0 {
		unix.Close(int(fd))
		return nil, fmt.Errorf("userfaultfd has no write-protect capability (kernel too old?)")
	}

	return &Fd{fd: int(fd)}, nil
}

// Supported probes whether a userfaultfd with write-protect capability can be
// created on this system.
func Supported() bool {
	fd, err := Open()
	if err != nil {
		return false
	}
	fd.Close()
	return true
}

// Close releases the descriptor.
func (u *Fd) Close() error {
	return unix.Close(u.fd)
}

// Register puts a range under userfaultfd write-protect tracking.
func (u *Fd) Register(r Range) error {
	reg := uffdioRegister{
		rng:  uffdioRange{start: uint64(r.Start), len: uint64(r.Len)},
		mode: registerModeWP,
	}
	if err := ioctl(u.fd, ioctlRegister, unsafe.Pointer(&reg)); err != nil {
		return fmt.Errorf("UFFDIO_REGISTER %#x+%#x: %v", r.Start, r.Len, err)
	}
	return nil
}

// Unregister removes a range from tracking.
func (u *Fd) Unregister(r Range) error {
	rng := uffdioRange{start: uint64(r.Start), len: uint64(r.Len)}
	if err := ioctl(u.fd, ioctlUnregister, unsafe.Pointer(&rng)); err != nil {
		return fmt.Errorf("UFFDIO_UNREGISTER %#x+%#x: %v", r.Start, r.Len, err)
	}
	return nil
}

// WriteProtect arms the write trap on a range.
func (u *Fd) WriteProtect(r Range) error {
	wp := uffdioWriteProtect{
		rng:  uffdioRange{start: uint64(r.Start), len: uint64(r.Len)},
		mode: writeProtectModeWP,
	}
	if err := ioctl(u.fd, ioctlWriteProtect, unsafe.Pointer(&wp)); err != nil {
		return fmt.Errorf("UFFDIO_WRITEPROTECT %#x+%#x: %v", r.Start, r.Len, err)
	}
	return nil
}

// WriteUnprotect releases the write trap on a range, letting the faulting
// write (and any later ones) proceed.
func (u *Fd) WriteUnprotect(r Range) error {
	wp := uffdioWriteProtect{
		rng: uffdioRange{start: uint64(r.Start), len: uint64(r.Len)},
	}
	if err := ioctl(u.fd, ioctlWriteProtect, unsafe.Pointer(&wp)); err != nil {
		return fmt.Errorf("write unprotect %#x+%#x: %v", r.Start, r.Len, err)
	}
	return nil
}

// Msg is one decoded uffd_msg notification.
type Msg struct {
	Event byte
	Flags uint64
	Addr  uintptr
}

// WPFault reports whether the message is a write-protect page fault.
func (m Msg) WPFault() bool {
	return m.Event == EventPagefault && m.Flags&PagefaultFlagWP != 0
}

// errRetry is returned by readMsg when the caller should loop back to the wait.
var errRetry = fmt.Errorf("uffd: retry")

// readMsg blocks in poll until a notification is ready and decodes exactly one
// uffd_msg. Interrupted waits and empty reads return errRetry; a poll error
// condition, a read failure or a short read are protocol violations.
func (u *Fd) readMsg() (Msg, error) {
	fds := []unix.PollFd{{Fd: int32(u.fd), Events: unix.POLLIN}}
	// Interrupted or empty polls are transient; loop back to the wait.
	n, err := unix.Poll(fds, -1)
	if err != nil || n == 0 {
		return Msg{}, errRetry
	}
	if fds[0].Revents&unix.POLLERR != 0 {
		return Msg{}, fmt.Errorf("POLLERR on userfaultfd")
	}
	if fds[0].Revents&unix.POLLIN == 0 {
		return Msg{}, errRetry
	}

	var buf [MsgSize]byte
	nr, err := unix.Read(u.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return Msg{}, errRetry
		}
		return Msg{}, fmt.Errorf("read userfaultfd: %v", err)
	}
	if nr != MsgSize {
		return Msg{}, fmt.Errorf("short read of uffd_msg: %d bytes", nr)
	}

	// struct uffd_msg: event byte at offset 0, pagefault flags at offset 8,
	// faulting address at offset 16.
	return Msg{
		Event: buf[0],
		Flags: *(*uint64)(unsafe.Pointer(&buf[8])),
		Addr:  uintptr(*(*uint64)(unsafe.Pointer(&buf[16]))),
	}, nil
}

func ioctl(fd int, cmd uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), cmd, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
