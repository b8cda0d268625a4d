package rawmem

import (
	"bytes"
	"testing"
	"unsafe"
)

func TestPageFloor(t *testing.T) {
	cases := []struct{ in, want uintptr }{
		{0, 0},
		{1, 0},
		{PageSize - 1, 0},
		{PageSize, PageSize},
		{PageSize + 1, PageSize},
		{0xdeadbeef, 0xdeadb000},
	}
	for _, c := range cases {
		if got := PageFloor(c.in); got != c.want {
			t.Errorf("PageFloor(%#x) = %#x, want %#x", c.in, got, c.want)
		}
	}
}

func TestPageCeil(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0},
		{1, PageSize},
		{PageSize, PageSize},
		{PageSize + 1, 2 * PageSize},
	}
	for _, c := range cases {
		if got := PageCeil(c.in); got != c.want {
			t.Errorf("PageCeil(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestCopyBytes(t *testing.T) {
	src := make([]byte, 257)
	dst := make([]byte, 257)
	for i := range src {
		src[i] = byte(i)
	}

	CopyBytes(uintptr(unsafe.Pointer(&dst[0])), uintptr(unsafe.Pointer(&src[0])), len(src))
	if !bytes.Equal(dst, src) {
		t.Fatal("Copied bytes do not match source")
	}
}

func TestCopyFromAddr(t *testing.T) {
	src := make([]byte, 64)
	for i := range src {
		src[i] = byte(255 - i)
	}

	buf := make([]byte, 64)
	CopyFromAddr(buf, uintptr(unsafe.Pointer(&src[0])))
	if !bytes.Equal(buf, src) {
		t.Fatal("Copied bytes do not match source")
	}
}

func TestCopyToAddr(t *testing.T) {
	dst := make([]byte, 64)
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = byte(i * 3)
	}

	CopyToAddr(uintptr(unsafe.Pointer(&dst[0])), buf)
	if !bytes.Equal(dst, buf) {
		t.Fatal("Written bytes do not match source buffer")
	}
}

func TestByteSlice(t *testing.T) {
	backing := []byte{1, 2, 3, 4}
	s := ByteSlice(uintptr(unsafe.Pointer(&backing[0])), len(backing))
	if !bytes.Equal(s, backing) {
		t.Fatal("Slice view does not match backing memory")
	}

	s[2] = 99
	if backing[2] != 99 {
		t.Fatal("Write through slice view did not reach backing memory")
	}
}
