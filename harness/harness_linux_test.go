//go:build linux

package harness

import (
	"testing"
	"unsafe"

	"github.com/snapbench/snapbench/rawmem"
	"github.com/snapbench/snapbench/snapdump"
	"github.com/snapbench/snapbench/uffd"
	"github.com/snapbench/snapbench/workload"
)

func testConfig() Config {
	return Config{
		Iterations:  3,
		MaxRegions:  DefaultMaxRegions,
		MaxPages:    DefaultMaxPages,
		MaxMappings: 8,
		ScratchAddr: DefaultScratchAddr,
		ArenaSize:   16 * rawmem.PageSize,
		CPU:         -1,
	}
}

// arenaWorkload writes a pattern into the arena and records what each
// invocation observed there beforehand: the first byte, plus a full
// compressed dump of the arena taken before any write. The recordings live on
// the Go heap, outside the monitored set, so they survive restores.
type arenaWorkload struct {
	env      workload.Env
	observed []byte
	dumps    []*snapdump.Dump
}

func (w *arenaWorkload) Name() string { return "arena" }

func (w *arenaWorkload) Main(argv []string) int {
	arenaAddr := uintptr(unsafe.Pointer(&w.env.Arena[0]))
	w.dumps = append(w.dumps, snapdump.CaptureRange(arenaAddr, len(w.env.Arena)))

	w.observed = append(w.observed, w.env.Arena[0])
	for i := 0; i < 2*rawmem.PageSize; i++ {
		w.env.Arena[i] = 0x5c
	}
	// A second write to an already-dirtied page must not produce a second
	// snapshot; it just lands.
	w.env.Arena[0] = 0x5d
	return 0
}

func TestHarnessRestoresArena(t *testing.T) {
	if !uffd.Supported() {
		t.Skip("userfaultfd write-protect not available")
	}

	var w *arenaWorkload
	factory := func(env workload.Env) (workload.Workload, error) {
		w = &arenaWorkload{env: env}
		return w, nil
	}

	h := New(testConfig())
	h.fatalf = t.Fatalf

	times, err := h.Run(factory, []string{"arena"})
	if err != nil {
		t.Fatalf("Harness run failed: %v", err)
	}

	if len(times) != 3 {
		t.Fatalf("Expected 3 iteration timings, got %d", len(times))
	}
	for i, d := range times {
		if d <= 0 {
			t.Errorf("Iteration %d has non-positive elapsed time %v", i, d)
		}
	}

	// Every invocation must have seen the pristine arena: the previous
	// iteration's writes were rolled back before it started.
	if len(w.observed) != 3 {
		t.Fatalf("Expected 3 invocations, got %d", len(w.observed))
	}
	for i, b := range w.observed {
		if b != 0 {
			t.Errorf("Iteration %d saw dirty arena byte %#x", i, b)
		}
	}

	// Page-level fidelity: every later invocation's pre-write dump must match
	// the first one page for page, i.e. the restore rolled the whole arena
	// back, not just the byte sampled above.
	if len(w.dumps) != 3 {
		t.Fatalf("Expected 3 arena dumps, got %d", len(w.dumps))
	}
	for i := 1; i < len(w.dumps); i++ {
		if changed := w.dumps[0].Diff(w.dumps[i]); len(changed) != 0 {
			t.Errorf("Iteration %d arena differs from pristine state at pages %#x", i, changed)
		}
	}
}

func TestHarnessZeroIterations(t *testing.T) {
	if !uffd.Supported() {
		t.Skip("userfaultfd write-protect not available")
	}

	cfg := testConfig()
	cfg.Iterations = 0

	invoked := false
	factory := func(env workload.Env) (workload.Workload, error) {
		return workloadFunc(func(argv []string) int {
			invoked = true
			return 0
		}), nil
	}

	h := New(cfg)
	h.fatalf = t.Fatalf

	times, err := h.Run(factory, []string{"noop"})
	if err != nil {
		t.Fatalf("Harness run failed: %v", err)
	}
	if len(times) != 0 {
		t.Errorf("Expected empty timing sequence, got %d entries", len(times))
	}
	if invoked {
		t.Error("Workload invoked despite zero iterations")
	}
}

// mappingWorkload takes a buffer through the interceptor on its first run and
// never touches the arena. Mid-run mappings are outside the monitored set, so
// writes there stick across iterations and capture no pages.
type mappingWorkload struct {
	env     workload.Env
	h       *Harness
	scratch []byte
	seen    []byte
	logLens []int
}

func (w *mappingWorkload) Name() string { return "mapping" }

func (w *mappingWorkload) Main(argv []string) int {
	if w.scratch == nil {
		var err error
		w.scratch, err = w.env.Map(rawmem.PageSize)
		if err != nil {
			return 1
		}
	}
	w.seen = append(w.seen, w.scratch[0])
	w.scratch[0]++
	w.logLens = append(w.logLens, w.h.pageLog.Len())
	return 0
}

func TestHarnessInterceptedMappingNotRestored(t *testing.T) {
	if !uffd.Supported() {
		t.Skip("userfaultfd write-protect not available")
	}

	h := New(testConfig())
	h.fatalf = t.Fatalf

	var w *mappingWorkload
	factory := func(env workload.Env) (workload.Workload, error) {
		w = &mappingWorkload{env: env, h: h}
		return w, nil
	}

	if _, err := h.Run(factory, []string{"mapping"}); err != nil {
		t.Fatalf("Harness run failed: %v", err)
	}

	// The counter in the intercepted mapping advances every iteration; the
	// restore only rolls back the arena.
	want := []byte{0, 1, 2}
	if len(w.seen) != len(want) {
		t.Fatalf("Expected %d invocations, got %d", len(want), len(w.seen))
	}
	for i := range want {
		if w.seen[i] != want[i] {
			t.Errorf("Iteration %d saw counter %d, want %d", i, w.seen[i], want[i])
		}
	}

	// Writes to intercepted mappings never hit the trap: an iteration with no
	// arena writes leaves the dirty page log empty.
	if len(w.logLens) != 3 {
		t.Fatalf("Expected 3 log length samples, got %d", len(w.logLens))
	}
	for i, n := range w.logLens {
		if n != 0 {
			t.Errorf("Iteration %d captured %d pages without writing the arena", i, n)
		}
	}
}

// workloadFunc adapts a bare function to the workload interface.
type workloadFunc func(argv []string) int

func (f workloadFunc) Name() string           { return "func" }
func (f workloadFunc) Main(argv []string) int { return f(argv) }
