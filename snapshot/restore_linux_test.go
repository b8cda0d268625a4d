//go:build linux

package snapshot

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/snapbench/snapbench/rawmem"
	"github.com/snapbench/snapbench/uffd"
)

func TestRestore(t *testing.T) {
	if !uffd.Supported() {
		t.Skip("userfaultfd write-protect not available")
	}

	ops := rawmem.SyscallOps{}
	length := rawmem.PageSize

	addr, err := ops.Map(0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("Failed to map test page: %v", err)
	}
	defer ops.Unmap(addr, length)

	fd, err := uffd.Open()
	if err != nil {
		t.Fatalf("Failed to open userfaultfd: %v", err)
	}
	defer fd.Close()

	rng := uffd.Range{Start: addr, Len: length}
	if err := fd.Register(rng); err != nil {
		t.Fatalf("Failed to register page: %v", err)
	}
	defer fd.Unregister(rng)

	s := rawmem.ByteSlice(addr, length)
	for i := range s {
		s[i] = byte(i)
	}

	// Capture the pristine content, then dirty the page.
	log := NewPageLog(1)
	if err := log.Capture(addr); err != nil {
		t.Fatalf("Failed to capture page: %v", err)
	}
	for i := range s {
		s[i] = 0xff
	}

	if err := Restore(fd, log); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}

	// Reads do not trip the re-armed write trap.
	for i := range s {
		if s[i] != byte(i) {
			t.Fatalf("Restore missed offset %d: got %#x, want %#x", i, s[i], byte(i))
		}
	}
	if log.Len() != 0 {
		t.Errorf("Expected cleared log after restore, got %d pages", log.Len())
	}
}

func TestRestoreEmptyLog(t *testing.T) {
	if !uffd.Supported() {
		t.Skip("userfaultfd write-protect not available")
	}

	fd, err := uffd.Open()
	if err != nil {
		t.Fatalf("Failed to open userfaultfd: %v", err)
	}
	defer fd.Close()

	// No captured pages means restore touches nothing and succeeds.
	if err := Restore(fd, NewPageLog(1)); err != nil {
		t.Fatalf("Restore of empty log failed: %v", err)
	}
}
