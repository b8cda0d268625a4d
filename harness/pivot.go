package harness

import (
	"runtime"
	"time"

	"github.com/snapbench/snapbench/workload"
)

// pivot is the execution-context switch between the driver and the target.
// The target runs on its own OS-thread-locked goroutine for the lifetime of
// the harness; enter hands it argv, leave returns its exit status and elapsed
// time. The driver keeps its own stack and locals untouched across the round
// trip: control is handed off, never shared.
type pivot struct {
	enter chan []string
	leave chan result
}

type result struct {
	status  int
	elapsed time.Duration
}

func newPivot(w workload.Workload) *pivot {
	p := &pivot{
		enter: make(chan []string),
		leave: make(chan result),
	}
	go func() {
		runtime.LockOSThread()
		for argv := range p.enter {
			// The clock runs on the target's own thread, immediately around
			// the entry point, so the handoff cost of the context switch
			// stays outside the measured interval.
			start := time.Now()
			status := w.Main(argv)
			p.leave <- result{status: status, elapsed: time.Since(start)}
		}
	}()
	return p
}

// call pivots in, invokes the target, and pivots out, returning the target's
// exit status and the time spent inside it. The target's "process exit" is
// this return.
func (p *pivot) call(argv []string) (int, time.Duration) {
	p.enter <- argv
	r := <-p.leave
	return r.status, r.elapsed
}

// shutdown retires the target goroutine. Safe only when no call is in flight.
func (p *pivot) shutdown() {
	close(p.enter)
}
