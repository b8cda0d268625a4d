// Package workload defines the narrow interface between the harness and the
// code being measured. The harness makes no assumption about a workload's
// internals beyond "it may allocate memory and write to already-mapped
// memory".
package workload

// Mapper satisfies a workload's dynamic-mapping requests. The harness injects
// an implementation backed by its raw mapping primitive; memory obtained this
// way is never monitored and never restored between iterations.
type Mapper func(length int) ([]byte, error)

// Env is what the harness hands a workload at setup time.
type Env struct {
	// Arena is pre-mapped working memory. Everything the workload writes here
	// is restored to its pre-iteration content after every run.
	Arena []byte

	// Map allocates fresh, unmonitored memory mid-run.
	Map Mapper
}

// Workload is a callable entry point with process-style arguments. Main is the
// workload's effective process entry: it returns an exit status to the driver
// instead of terminating anything.
type Workload interface {
	Name() string
	Main(argv []string) int
}

// Factory builds a workload against the environment the harness prepared.
type Factory func(env Env) (Workload, error)
