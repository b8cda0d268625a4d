//go:build linux

package snapshot

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/snapbench/snapbench/procmaps"
	"github.com/snapbench/snapbench/rawmem"
)

const testScratch = 0xdead0000

func TestRemapPreservesContent(t *testing.T) {
	ops := rawmem.SyscallOps{}
	length := 2 * rawmem.PageSize

	addr, err := ops.Map(0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("Failed to map test region: %v", err)
	}
	defer ops.Unmap(addr, length)

	s := rawmem.ByteSlice(addr, length)
	for i := range s {
		s[i] = byte(i * 7)
	}

	r := procmaps.Region{
		Start: addr,
		End:   addr + uintptr(length),
		Perms: "rw-p",
		Read:  true,
		Write: true,
	}
	if err := Remap(ops, r, testScratch); err != nil {
		t.Fatalf("Failed to remap region: %v", err)
	}

	// Same address range, same contents, still writable.
	s = rawmem.ByteSlice(addr, length)
	for i := range s {
		if s[i] != byte(i*7) {
			t.Fatalf("Content lost at offset %d: got %#x, want %#x", i, s[i], byte(i*7))
		}
	}
	s[0] = 0xee
	if s[0] != 0xee {
		t.Error("Remapped region not writable")
	}

	// The scratch placement must be gone afterwards.
	maps, err := procmaps.Self()
	if err != nil {
		t.Fatalf("Failed to read memory map: %v", err)
	}
	for _, m := range maps {
		if m.Contains(testScratch) {
			t.Errorf("Scratch mapping %#x-%#x still present after remap", m.Start, m.End)
		}
	}
}

func TestRemapAll(t *testing.T) {
	ops := rawmem.SyscallOps{}
	length := rawmem.PageSize

	var addrs [2]uintptr
	table := NewTable(2)
	for i := range addrs {
		addr, err := ops.Map(0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			t.Fatalf("Failed to map test region %d: %v", i, err)
		}
		defer ops.Unmap(addr, length)
		addrs[i] = addr

		rawmem.ByteSlice(addr, length)[0] = byte(0x40 + i)
		table.Append(procmaps.Region{
			Start: addr, End: addr + uintptr(length),
			Perms: "rw-p", Read: true, Write: true,
		})
	}

	if err := RemapAll(ops, table, testScratch); err != nil {
		t.Fatalf("Failed to remap table: %v", err)
	}
	for i, addr := range addrs {
		if got := rawmem.ByteSlice(addr, length)[0]; got != byte(0x40+i) {
			t.Errorf("Region %d lost content: got %#x", i, got)
		}
	}
}
