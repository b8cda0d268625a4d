//go:build !linux

// Stub implementation for non-Linux development. The snapshot machinery needs
// userfaultfd write-protect support, which only Linux provides.

package harness

import (
	"fmt"
	"time"

	"github.com/snapbench/snapbench/workload"
)

// Harness is a placeholder on non-Linux systems.
type Harness struct {
	cfg Config
}

// New builds a harness that can only report its own unavailability.
func New(cfg Config) *Harness {
	return &Harness{cfg: cfg.withDefaults()}
}

// Run always fails: there is no fault-notification channel to build on here.
func (h *Harness) Run(factory workload.Factory, argv []string) ([]time.Duration, error) {
	return nil, fmt.Errorf("snapshot harness requires Linux userfaultfd support")
}
