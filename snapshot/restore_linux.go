//go:build linux

package snapshot

import (
	"fmt"

	"github.com/snapbench/snapbench/rawmem"
	"github.com/snapbench/snapbench/uffd"
)

// Restore replays every captured page's pre-write content back to its address
// and re-arms the write trap for exactly those pages, then clears the log.
// Pages never written during the iteration are untouched. Runs strictly while
// the target is not executing; the writes here go through the raw byte-copy
// path against pages whose trap was already released, so they do not fault.
func Restore(fd *uffd.Fd, log *PageLog) error {
	for i := range log.Pages() {
		p := &log.Pages()[i]
		rawmem.CopyToAddr(p.Addr, p.Data[:])

		// The watcher's release removed protection for this page for good;
		// without re-arming it here, iteration N+1 would miss its first write.
		if err := fd.WriteProtect(uffd.Range{Start: p.Addr, Len: rawmem.PageSize}); err != nil {
			return fmt.Errorf("restore: re-arming page %#x: %v", p.Addr, err)
		}
	}
	log.Reset()
	return nil
}
