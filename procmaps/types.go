// Package procmaps reads the kernel's textual memory map for a process and
// turns each line into a Region descriptor. The map is read once at harness
// setup; nothing in this package is safe to call from the fault watcher.
package procmaps

// Region describes one contiguous virtual address range from /proc/<pid>/maps.
// Regions are immutable once parsed.
type Region struct {
	Start uintptr
	End   uintptr

	Perms  string // raw permission column, e.g. "rw-p"
	Read   bool
	Write  bool
	Exec   bool
	Shared bool

	Offset uint64
	Dev    string // major:minor of the backing device
	Inode  uint64
	Path   string // empty for anonymous mappings; pseudo names like [stack] kept as-is
}

// Len returns the length of the region in bytes.
func (r *Region) Len() int {
	return int(r.End - r.Start)
}

// Anonymous reports whether the region has no backing file and no pseudo name.
func (r *Region) Anonymous() bool {
	return r.Path == ""
}

// Pseudo reports whether the region's path is a kernel pseudo name such as
// [stack], [heap] or [vdso].
func (r *Region) Pseudo() bool {
	return len(r.Path) > 1 && r.Path[0] == '[' && r.Path[len(r.Path)-1] == ']'
}

// Contains reports whether addr falls inside the region.
func (r *Region) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End
}
