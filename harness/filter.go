package harness

import "github.com/snapbench/snapbench/procmaps"

// AddrRange is a half-open address interval.
type AddrRange struct {
	Start uintptr
	End   uintptr
}

func (a AddrRange) overlaps(start, end uintptr) bool {
	return start < a.End && end > a.Start
}

// Pseudo-regions the kernel injects for vectorized syscalls and variables.
// They cannot be remapped to anonymous backing, so they are never monitored.
var excludedPseudo = map[string]bool{
	"[vsyscall]": true,
	"[vvar]":     true,
	"[vdso]":     true,
}

// Policy selects which enumerated regions become monitored. Reserved ranges
// cover the harness's own control memory and the dynamic-linkage table;
// trapping writes there would corrupt the harness or the target's own symbol
// resolution mid-run. When Arenas is non-empty, only regions lying inside an
// arena qualify; under a managed runtime everything else belongs to the
// runtime and counts as harness-reserved.
type Policy struct {
	Reserved []AddrRange
	Arenas   []AddrRange
}

// Monitorable applies the filter to one enumerated region.
func (p *Policy) Monitorable(r *procmaps.Region) bool {
	// Regions with no read, write or execute permission cannot usefully be
	// remapped or captured.
	if !r.Read && !r.Write && !r.Exec {
		return false
	}

	if excludedPseudo[r.Path] {
		return false
	}

	for _, res := range p.Reserved {
		if res.overlaps(r.Start, r.End) {
			return false
		}
	}

	if len(p.Arenas) == 0 {
		return true
	}
	for _, a := range p.Arenas {
		if r.Start >= a.Start && r.End <= a.End {
			return true
		}
	}
	return false
}
