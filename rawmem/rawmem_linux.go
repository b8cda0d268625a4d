//go:build linux

package rawmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Ops is the injected raw-operations capability. The three primitives are the
// only mapping operations the remapper, the trap subsystem and the allocation
// interceptor are allowed to use.
type Ops interface {
	// Map creates a mapping of length bytes. If addr is non-zero the mapping
	// is placed exactly there (MAP_FIXED is implied by the callers that need
	// it via flags). Returns the mapped address.
	Map(addr uintptr, length, prot, flags int) (uintptr, error)
	// Unmap destroys length bytes of mapping at addr.
	Unmap(addr uintptr, length int) error
	// Protect changes the protection of length bytes at addr.
	Protect(addr uintptr, length, prot int) error
}

// SyscallOps implements Ops with direct syscall invocation. No wrapper
// allocator, no buffered I/O: mmap, munmap and mprotect straight into the
// kernel.
type SyscallOps struct{}

var _ Ops = SyscallOps{}

func (SyscallOps) Map(addr uintptr, length, prot, flags int) (uintptr, error) {
	got, _, errno := unix.Syscall6(unix.SYS_MMAP,
		addr, uintptr(length), uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return 0, fmt.Errorf("mmap(%#x, %d): %v", addr, length, errno)
	}
	return got, nil
}

func (SyscallOps) Unmap(addr uintptr, length int) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(length), 0)
	if errno != 0 {
		return fmt.Errorf("munmap(%#x, %d): %v", addr, length, errno)
	}
	return nil
}

func (SyscallOps) Protect(addr uintptr, length, prot int) error {
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, addr, uintptr(length), uintptr(prot))
	if errno != 0 {
		return fmt.Errorf("mprotect(%#x, %d, %#x): %v", addr, length, prot, errno)
	}
	return nil
}

// Prot builds mmap/mprotect protection bits from permission flags.
func Prot(read, write, exec bool) int {
	prot := unix.PROT_NONE
	if read {
		prot |= unix.PROT_READ
	}
	if write {
		prot |= unix.PROT_WRITE
	}
	if exec {
		prot |= unix.PROT_EXEC
	}
	return prot
}
