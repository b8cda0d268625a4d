// Package snapshot holds the harness's snapshot state (the monitored region
// table and the dirty-page log) and the two operations over monitored memory:
// remapping regions to anonymous backing and restoring captured pages between
// iterations. Both collections are fixed-capacity arenas allocated once at
// setup; nothing on the capture or restore path allocates.
package snapshot

import (
	"fmt"

	"github.com/snapbench/snapbench/procmaps"
)

// Table is the fixed-capacity, ordered collection of monitored regions. It is
// written by the driver before the watcher starts and read-only afterwards.
type Table struct {
	regions []procmaps.Region
}

// NewTable allocates a table for at most capacity regions.
func NewTable(capacity int) *Table {
	return &Table{regions: make([]procmaps.Region, 0, capacity)}
}

// Append adds a region. Exceeding the capacity is a loud failure, not a
// silent overrun.
func (t *Table) Append(r procmaps.Region) error {
	if len(t.regions) == cap(t.regions) {
		return fmt.Errorf("region table full (%d regions)", cap(t.regions))
	}
	t.regions = append(t.regions, r)
	return nil
}

// Len returns the number of captured regions.
func (t *Table) Len() int {
	return len(t.regions)
}

// Regions returns the captured regions in map order. The returned slice is the
// table's own storage; callers must not modify it.
func (t *Table) Regions() []procmaps.Region {
	return t.regions
}

// Contains reports whether addr falls inside any monitored region.
func (t *Table) Contains(addr uintptr) bool {
	for i := range t.regions {
		if t.regions[i].Contains(addr) {
			return true
		}
	}
	return false
}
