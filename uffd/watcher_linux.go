//go:build linux

package uffd

import (
	"log"
	"runtime"

	"github.com/snapbench/snapbench/rawmem"
)

// Sink receives the page-aligned address of each first write trapped during an
// iteration and must copy the page's current contents before returning.
type Sink interface {
	Capture(pageAddr uintptr) error
}

// Watcher owns the fault notification loop. It is started once after setup and
// runs until process exit; there is no normal termination path. The watcher
// goroutine is locked to its own OS thread so its execution never shares a
// stack with the driver or the target.
type Watcher struct {
	fd     *Fd
	ranges []Range
	sink   Sink

	ready chan struct{}

	// fatalf terminates the harness on a protocol violation. Overridable for
	// tests; defaults to log.Fatalf.
	fatalf func(format string, args ...interface{})
}

// NewWatcher prepares a watcher over the given registered ranges. Captured
// pages go to sink.
func NewWatcher(fd *Fd, ranges []Range, sink Sink) *Watcher {
	return &Watcher{
		fd:     fd,
		ranges: ranges,
		sink:   sink,
		ready:  make(chan struct{}),
		fatalf: log.Fatalf,
	}
}

// SetFatalf replaces the process-termination hook. Must be called before Run.
func (w *Watcher) SetFatalf(fatalf func(format string, args ...interface{})) {
	w.fatalf = fatalf
}

// Ready is closed exactly once, after the initial write-protect pass over all
// ranges has completed. The driver blocks on it before the first iteration.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run is the watcher loop. Start it with `go w.Run()`; it does not return
// except by terminating the process through the fatal hook.
func (w *Watcher) Run() {
	runtime.LockOSThread()

	for _, r := range w.ranges {
		if err := w.fd.WriteProtect(r); err != nil {
			w.fatalf("uffd watcher: arming write protect: %v", err)
			return
		}
	}

	close(w.ready)

	for {
		msg, err := w.fd.readMsg()
		if err == errRetry {
			continue
		}
		if err != nil {
			w.fatalf("uffd watcher: %v", err)
			return
		}

		if !msg.WPFault() {
			continue
		}

		pageAddr := msg.Addr & rawmem.PageMask
		if err := w.sink.Capture(pageAddr); err != nil {
			w.fatalf("uffd watcher: capturing page %#x: %v", pageAddr, err)
			return
		}

		// Release the trap for exactly this page so the faulting write (and
		// any later writes this iteration) proceed untracked.
		if err := w.fd.WriteUnprotect(Range{Start: pageAddr, Len: rawmem.PageSize}); err != nil {
			w.fatalf("uffd watcher: releasing page %#x: %v", pageAddr, err)
			return
		}
	}
}
