//go:build linux

package snapshot

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/snapbench/snapbench/procmaps"
	"github.com/snapbench/snapbench/rawmem"
)

// Remap replaces the mapping behind a region with a fresh anonymous, private
// mapping at the identical address range, preserving contents and the original
// permission bits. Write-protect registration only works on anonymous private
// memory, so every monitored region goes through this before the trap is set.
//
// The sequence matters: the destination overlaps the source's address range,
// so contents go out to a scratch mapping first, then the original is torn
// down and recreated, then contents come back. Everything on this path uses
// the raw ops capability and byte-wise copies only: the region being replaced
// may be the one a bulk copy routine would have needed.
func Remap(ops rawmem.Ops, r procmaps.Region, scratch uintptr) error {
	length := r.Len()
	prot := rawmem.Prot(r.Read, r.Write, r.Exec)
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | unix.MAP_FIXED

	tmp, err := ops.Map(scratch, length, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return fmt.Errorf("remap %#x-%#x: scratch: %v", r.Start, r.End, err)
	}
	rawmem.CopyBytes(tmp, r.Start, length)

	if err := ops.Unmap(r.Start, length); err != nil {
		return fmt.Errorf("remap %#x-%#x: unmap original: %v", r.Start, r.End, err)
	}

	if _, err := ops.Map(r.Start, length, unix.PROT_READ|unix.PROT_WRITE, flags); err != nil {
		return fmt.Errorf("remap %#x-%#x: recreate: %v", r.Start, r.End, err)
	}
	rawmem.CopyBytes(r.Start, tmp, length)

	if err := ops.Unmap(tmp, length); err != nil {
		return fmt.Errorf("remap %#x-%#x: unmap scratch: %v", r.Start, r.End, err)
	}

	if err := ops.Protect(r.Start, length, prot); err != nil {
		return fmt.Errorf("remap %#x-%#x: reapply protection: %v", r.Start, r.End, err)
	}

	return nil
}

// RemapAll remaps every region in the table, reusing one scratch address.
func RemapAll(ops rawmem.Ops, t *Table, scratch uintptr) error {
	for _, r := range t.Regions() {
		if err := Remap(ops, r, scratch); err != nil {
			return err
		}
	}
	return nil
}
