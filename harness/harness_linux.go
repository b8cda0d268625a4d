//go:build linux

package harness

import (
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"golang.org/x/sys/unix"

	"github.com/snapbench/snapbench/procmaps"
	"github.com/snapbench/snapbench/rawmem"
	"github.com/snapbench/snapbench/snapshot"
	"github.com/snapbench/snapbench/uffd"
	"github.com/snapbench/snapbench/workload"
)

// Harness owns one complete measurement setup: the monitored arena, the region
// table, the dirty page log, the fault trap and the watcher.
type Harness struct {
	cfg Config
	ops rawmem.Ops

	table   *snapshot.Table
	pageLog *snapshot.PageLog
	fd      *uffd.Fd

	arenaBase uintptr // includes guard pages
	arenaLen  int     // interior, without guards
	ic        *interceptor

	// fatalf terminates the harness on a runtime-fatal condition. Overridable
	// for tests; defaults to log.Fatalf.
	fatalf func(format string, args ...interface{})
}

// New builds a harness over the direct-syscall raw operations.
func New(cfg Config) *Harness {
	return &Harness{
		cfg:    cfg.withDefaults(),
		ops:    rawmem.SyscallOps{},
		fatalf: log.Fatalf,
	}
}

// Run performs the full cycle: setup (arena, enumerate, filter, remap, trap,
// watcher), then Iterations × { pivot in, invoke target with argv, pivot out,
// restore }, then teardown. It returns one elapsed duration per iteration.
// Setup failures come back as errors before any timed iteration has run;
// runtime-fatal conditions terminate the process through the fatal hook.
func (h *Harness) Run(factory workload.Factory, argv []string) ([]time.Duration, error) {
	arenaAddr, err := h.mapArena()
	if err != nil {
		return nil, err
	}
	defer h.ops.Unmap(h.arenaBase, h.arenaLen+2*rawmem.PageSize)

	h.ic = newInterceptor(h.ops, h.cfg.MaxMappings)
	defer h.ic.release()

	w, err := factory(workload.Env{
		Arena: rawmem.ByteSlice(arenaAddr, h.arenaLen),
		Map:   h.ic.Map,
	})
	if err != nil {
		return nil, fmt.Errorf("workload setup: %v", err)
	}

	if err := h.loadRegions(arenaAddr); err != nil {
		return nil, err
	}

	if err := snapshot.RemapAll(h.ops, h.table, h.cfg.ScratchAddr); err != nil {
		return nil, err
	}

	h.fd, err = uffd.Open()
	if err != nil {
		return nil, err
	}

	ranges := make([]uffd.Range, 0, h.table.Len())
	for _, r := range h.table.Regions() {
		rng := uffd.Range{Start: r.Start, Len: r.Len()}
		if err := h.fd.Register(rng); err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}

	h.pageLog = snapshot.NewPageLog(h.cfg.MaxPages)
	watcher := uffd.NewWatcher(h.fd, ranges, h.pageLog)
	watcher.SetFatalf(h.fatalf)
	go watcher.Run()
	<-watcher.Ready()

	// The target thread suspends inside the kernel whenever a write hits the
	// trap; only the watcher can release it. A stop-the-world in between
	// would wait on the suspended thread forever, so the collector stays off
	// for the whole timed phase.
	gcPercent := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(gcPercent)

	savedStdout, err := redirectStdout()
	if err != nil {
		return nil, err
	}

	if h.cfg.CPU >= 0 {
		if err := pinCPU(h.cfg.CPU); err != nil {
			log.Printf("Warning: failed to pin to CPU %d: %v", h.cfg.CPU, err)
		}
	}

	pv := newPivot(w)
	times := make([]time.Duration, 0, h.cfg.Iterations)

	for i := 0; i < h.cfg.Iterations; i++ {
		_, elapsed := pv.call(argv)
		times = append(times, elapsed)

		if err := snapshot.Restore(h.fd, h.pageLog); err != nil {
			restoreStdout(savedStdout)
			h.fatalf("harness: %v", err)
			return nil, err
		}
	}

	pv.shutdown()
	restoreStdout(savedStdout)

	// Deregistration failure means the kernel contract was not honored;
	// nothing downstream can be trusted.
	for _, rng := range ranges {
		if err := h.fd.Unregister(rng); err != nil {
			h.fatalf("harness: teardown: %v", err)
			return nil, err
		}
	}
	// The fd stays open: the watcher is parked on it until process exit.

	return times, nil
}

// mapArena creates the monitored workload arena between two PROT_NONE guard
// pages. The guards keep the kernel from merging the arena into an adjacent
// anonymous mapping, so the enumerator sees it as exactly one region.
func (h *Harness) mapArena() (uintptr, error) {
	h.arenaLen = rawmem.PageCeil(h.cfg.ArenaSize)
	total := h.arenaLen + 2*rawmem.PageSize

	base, err := h.ops.Map(0, total, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, fmt.Errorf("mapping arena: %v", err)
	}
	h.arenaBase = base

	arenaAddr := base + rawmem.PageSize
	if err := h.ops.Protect(arenaAddr, h.arenaLen, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		h.ops.Unmap(base, total)
		return 0, fmt.Errorf("opening arena interior: %v", err)
	}
	return arenaAddr, nil
}

// loadRegions reads the process memory map once and fills the region table
// with everything the policy admits.
func (h *Harness) loadRegions(arenaAddr uintptr) error {
	policy := Policy{
		Arenas: []AddrRange{{Start: arenaAddr, End: arenaAddr + uintptr(h.arenaLen)}},
		Reserved: []AddrRange{
			{Start: h.cfg.ScratchAddr, End: h.cfg.ScratchAddr + uintptr(h.arenaLen)},
		},
	}

	it, err := procmaps.Open(-1)
	if err != nil {
		return err
	}
	defer it.Close()

	h.table = snapshot.NewTable(h.cfg.MaxRegions)
	for it.Next() {
		r := it.Region()
		if !policy.Monitorable(&r) {
			continue
		}
		if err := h.table.Append(r); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("reading memory maps: %v", err)
	}
	if h.table.Len() == 0 {
		return fmt.Errorf("no monitorable regions found")
	}
	return nil
}

// redirectStdout points fd 1 at /dev/null for the timed loop so the target's
// output neither pollutes measurement nor mixes with harness diagnostics.
func redirectStdout() (saved int, err error) {
	devnull, err := unix.Open("/dev/null", unix.O_WRONLY, 0)
	if err != nil {
		return -1, fmt.Errorf("opening /dev/null: %v", err)
	}
	defer unix.Close(devnull)

	saved, err = unix.Dup(1)
	if err != nil {
		return -1, fmt.Errorf("saving stdout: %v", err)
	}
	if err := unix.Dup2(devnull, 1); err != nil {
		unix.Close(saved)
		return -1, fmt.Errorf("redirecting stdout: %v", err)
	}
	return saved, nil
}

func restoreStdout(saved int) {
	unix.Dup2(saved, 1)
	unix.Close(saved)
}

func pinCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
