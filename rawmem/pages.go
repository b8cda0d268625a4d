// Package rawmem is the raw memory capability used by the remap, trap and
// restore paths: create/destroy/protect mappings through direct syscalls and
// copy bytes with an explicit loop. Nothing here may touch the Go allocator
// on behalf of the addresses it manipulates; the addresses it is handed are
// exactly the memory being snapshotted.
package rawmem

import "unsafe"

// PageSize is the fixed page granularity of the harness.
const PageSize = 4096

// PageMask masks an address down to its page boundary.
const PageMask = ^uintptr(PageSize - 1)

// PageFloor rounds addr down to the containing page boundary.
func PageFloor(addr uintptr) uintptr {
	return addr & PageMask
}

// PageCeil rounds n up to a whole number of pages.
func PageCeil(n int) int {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// ByteSlice exposes n bytes of raw memory at addr as a slice. The caller is
// responsible for the mapping being valid for the slice's lifetime.
func ByteSlice(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// CopyBytes copies n bytes from src to dst one byte at a time. The ranges may
// not overlap. A plain loop, not copy(): this runs while the mapping under the
// destination has just been recreated and bulk copy routines are off limits.
func CopyBytes(dst, src uintptr, n int) {
	for i := 0; i < n; i++ {
		*(*byte)(unsafe.Pointer(dst + uintptr(i))) = *(*byte)(unsafe.Pointer(src + uintptr(i)))
	}
}

// CopyFromAddr fills buf from raw memory at addr, byte by byte.
func CopyFromAddr(buf []byte, addr uintptr) {
	for i := range buf {
		buf[i] = *(*byte)(unsafe.Pointer(addr + uintptr(i)))
	}
}

// CopyToAddr writes buf to raw memory at addr, byte by byte.
func CopyToAddr(addr uintptr, buf []byte) {
	for i := range buf {
		*(*byte)(unsafe.Pointer(addr + uintptr(i))) = buf[i]
	}
}
