// Package harness wires the snapshot machinery together and drives the timed
// iteration loop: enumerate, remap, trap, then run-restore-repeat.
package harness

// Capacities and addresses mirror the reference constants of the measurement
// setup this harness grew out of. They are fixed at construction; overflowing
// either capacity fails loudly rather than growing.
const (
	// DefaultMaxRegions bounds the monitored region table.
	DefaultMaxRegions = 0x100

	// DefaultMaxPages bounds the per-iteration dirty page log.
	DefaultMaxPages = 0x1000

	// DefaultMaxMappings bounds mid-run mappings created through the
	// allocation interceptor.
	DefaultMaxMappings = 64

	// DefaultScratchAddr is where remapping parks region contents while the
	// original mapping is torn down and recreated. Low 32-bit space, unused
	// by the runtime's own mappings.
	DefaultScratchAddr = 0xdead0000

	// DefaultArenaSize is the monitored working memory given to the workload.
	DefaultArenaSize = 4 << 20

	// DefaultIterations is the timed run count.
	DefaultIterations = 100

	// DefaultCPU is the core the driver pins itself to before the loop.
	DefaultCPU = 3
)

// Config fixes a harness's capacities and placement. These are established
// once; there is no runtime reconfiguration.
type Config struct {
	// Iterations is the number of timed runs. Zero is valid: setup and
	// teardown happen, the timing sequence comes back empty.
	Iterations int

	// MaxRegions and MaxPages are the fixed capacities of the region table
	// and the dirty page log. Zero selects the defaults.
	MaxRegions int
	MaxPages   int

	// MaxMappings bounds the interceptor's tracked mid-run mappings. Zero
	// selects the default.
	MaxMappings int

	// ScratchAddr is the fixed scratch placement used during remapping. Zero
	// selects the default.
	ScratchAddr uintptr

	// ArenaSize is the size of the monitored workload arena, rounded up to
	// whole pages. Zero selects the default.
	ArenaSize int

	// CPU pins the driver to a core before the timed loop. Negative disables
	// pinning.
	CPU int
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Iterations:  DefaultIterations,
		MaxRegions:  DefaultMaxRegions,
		MaxPages:    DefaultMaxPages,
		MaxMappings: DefaultMaxMappings,
		ScratchAddr: DefaultScratchAddr,
		ArenaSize:   DefaultArenaSize,
		CPU:         DefaultCPU,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRegions == 0 {
		c.MaxRegions = DefaultMaxRegions
	}
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MaxMappings == 0 {
		c.MaxMappings = DefaultMaxMappings
	}
	if c.ScratchAddr == 0 {
		c.ScratchAddr = DefaultScratchAddr
	}
	if c.ArenaSize == 0 {
		c.ArenaSize = DefaultArenaSize
	}
	return c
}
