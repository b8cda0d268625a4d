//go:build linux

package harness

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/snapbench/snapbench/rawmem"
)

// interceptor satisfies the target's dynamic-mapping requests through the same
// raw syscall primitive the remapper uses. Mappings created mid-run are by
// construction never part of the monitored set: they are placed by the kernel
// outside existing mappings, tracked here, kept away from the write trap, and
// unmapped at teardown.
type interceptor struct {
	ops      rawmem.Ops
	mappings []mapping
}

type mapping struct {
	addr   uintptr
	length int
}

func newInterceptor(ops rawmem.Ops, capacity int) *interceptor {
	return &interceptor{
		ops:      ops,
		mappings: make([]mapping, 0, capacity),
	}
}

// Map serves one dynamic-mapping request. The tracked set is fixed-capacity;
// exceeding it fails loudly.
func (ic *interceptor) Map(length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("interceptor: bad mapping length %d", length)
	}
	if len(ic.mappings) == cap(ic.mappings) {
		return nil, fmt.Errorf("interceptor: mapping table full (%d mappings)", cap(ic.mappings))
	}

	size := rawmem.PageCeil(length)
	addr, err := ic.ops.Map(0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("interceptor: %v", err)
	}

	ic.mappings = append(ic.mappings, mapping{addr: addr, length: size})
	return rawmem.ByteSlice(addr, length), nil
}

// release unmaps everything the target mapped mid-run.
func (ic *interceptor) release() error {
	var first error
	for _, m := range ic.mappings {
		if err := ic.ops.Unmap(m.addr, m.length); err != nil && first == nil {
			first = err
		}
	}
	ic.mappings = ic.mappings[:0]
	return first
}
