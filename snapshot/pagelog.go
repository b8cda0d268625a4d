package snapshot

import (
	"fmt"

	"github.com/snapbench/snapbench/rawmem"
)

// Page is one dirty-page record: the page-aligned address and a full copy of
// the page's content taken at the moment of its first write fault in the
// current iteration.
type Page struct {
	Addr uintptr
	Data [rawmem.PageSize]byte
}

// PageLog is the fixed-capacity dirty-page log. The watcher is its only writer
// while the target runs; the driver is its only reader and clearer during
// restore. Those two phases never overlap, so the log carries no lock.
type PageLog struct {
	pages []Page
}

// NewPageLog allocates storage for at most capacity page records up front.
// The backing array never grows: Capture must not allocate, since it runs
// while a faulting write in the target is suspended.
func NewPageLog(capacity int) *PageLog {
	return &PageLog{pages: make([]Page, 0, capacity)}
}

// Capture records the current content of the page at pageAddr. At most one
// record exists per page per iteration; the caller guarantees this by
// releasing the trap after the first capture. A full log is a fatal condition
// reported to the caller.
func (l *PageLog) Capture(pageAddr uintptr) error {
	if len(l.pages) == cap(l.pages) {
		return fmt.Errorf("dirty page log full (%d pages)", cap(l.pages))
	}
	l.pages = l.pages[:len(l.pages)+1]
	p := &l.pages[len(l.pages)-1]
	p.Addr = pageAddr
	rawmem.CopyFromAddr(p.Data[:], pageAddr)
	return nil
}

// Len returns the number of captured pages.
func (l *PageLog) Len() int {
	return len(l.pages)
}

// Pages returns the captured records in capture order.
func (l *PageLog) Pages() []Page {
	return l.pages
}

// Reset clears the log without releasing its storage.
func (l *PageLog) Reset() {
	l.pages = l.pages[:0]
}
