//go:build linux

package rawmem

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestSyscallOpsMapUnmap(t *testing.T) {
	ops := SyscallOps{}

	addr, err := ops.Map(0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("Failed to map page: %v", err)
	}

	s := ByteSlice(addr, PageSize)
	s[0] = 0xab
	s[PageSize-1] = 0xcd
	if s[0] != 0xab || s[PageSize-1] != 0xcd {
		t.Error("Mapped page does not hold writes")
	}

	if err := ops.Unmap(addr, PageSize); err != nil {
		t.Fatalf("Failed to unmap page: %v", err)
	}
}

func TestSyscallOpsMapFixed(t *testing.T) {
	ops := SyscallOps{}

	// Find a free range first, then demand exactly that placement.
	addr, err := ops.Map(0, 2*PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("Failed to map probe range: %v", err)
	}
	if err := ops.Unmap(addr, 2*PageSize); err != nil {
		t.Fatalf("Failed to unmap probe range: %v", err)
	}

	got, err := ops.Map(addr, 2*PageSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED)
	if err != nil {
		t.Fatalf("Failed to map at fixed address: %v", err)
	}
	if got != addr {
		t.Errorf("Fixed mapping landed at %#x, want %#x", got, addr)
	}
	ops.Unmap(got, 2*PageSize)
}

func TestSyscallOpsProtect(t *testing.T) {
	ops := SyscallOps{}

	addr, err := ops.Map(0, PageSize, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("Failed to map page: %v", err)
	}
	defer ops.Unmap(addr, PageSize)

	if err := ops.Protect(addr, PageSize, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		t.Fatalf("Failed to open protection: %v", err)
	}

	s := ByteSlice(addr, PageSize)
	s[0] = 1
	if s[0] != 1 {
		t.Error("Page not writable after mprotect")
	}
}

func TestProt(t *testing.T) {
	if Prot(false, false, false) != unix.PROT_NONE {
		t.Error("No permissions should map to PROT_NONE")
	}
	if Prot(true, true, false) != unix.PROT_READ|unix.PROT_WRITE {
		t.Error("rw should map to PROT_READ|PROT_WRITE")
	}
	if Prot(true, false, true) != unix.PROT_READ|unix.PROT_EXEC {
		t.Error("rx should map to PROT_READ|PROT_EXEC")
	}
}
