// Package snapdump captures compressed images of monitored memory for
// fidelity checks and post-mortem diffing. A dump is a point-in-time record of
// page contents, keyed by content hash so identical pages (zero pages, mostly)
// are stored once. Dumps are diagnostics only: the restore path never reads
// them.
package snapdump

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/klauspost/compress/zstd"

	"github.com/snapbench/snapbench/procmaps"
	"github.com/snapbench/snapbench/rawmem"
)

var (
	// encoder and decoder for zstd are reusable and thread-safe
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)

	// pageCache holds compressed page images by content hash, so repeated
	// dumps of the same pages skip recompression.
	pageCache, _ = lru.New(4096)
)

// Dump is a point-in-time image of a set of pages.
type Dump struct {
	// Pages maps page address to the content hash of that page.
	Pages map[uint64]string `json:"pages"`
	// Blobs maps content hash to the zstd-compressed page image.
	Blobs map[string][]byte `json:"blobs"`
}

func newDump() *Dump {
	return &Dump{
		Pages: make(map[uint64]string),
		Blobs: make(map[string][]byte),
	}
}

// CaptureRegions images every page of the given regions, which must be mapped
// readable in this process.
func CaptureRegions(regions []procmaps.Region) *Dump {
	d := newDump()
	for _, r := range regions {
		for addr := r.Start; addr < r.End; addr += rawmem.PageSize {
			d.addPage(addr)
		}
	}
	return d
}

// CaptureRange images the pages covering [addr, addr+length).
func CaptureRange(addr uintptr, length int) *Dump {
	d := newDump()
	end := addr + uintptr(rawmem.PageCeil(length))
	for page := rawmem.PageFloor(addr); page < end; page += rawmem.PageSize {
		d.addPage(page)
	}
	return d
}

func (d *Dump) addPage(pageAddr uintptr) {
	var page [rawmem.PageSize]byte
	rawmem.CopyFromAddr(page[:], pageAddr)

	sum := sha256.Sum256(page[:])
	hash := hex.EncodeToString(sum[:])
	d.Pages[uint64(pageAddr)] = hash

	if _, ok := d.Blobs[hash]; ok {
		return
	}
	if blob, ok := pageCache.Get(hash); ok {
		d.Blobs[hash] = blob.([]byte)
		return
	}

	blob := zstdEncoder.EncodeAll(page[:], nil)
	pageCache.Add(hash, blob)
	d.Blobs[hash] = blob
}

// Diff returns the addresses of pages whose content differs between the two
// dumps, including pages present in only one of them, in ascending order.
func (d *Dump) Diff(other *Dump) []uintptr {
	var changed []uintptr
	for addr, hash := range d.Pages {
		if otherHash, ok := other.Pages[addr]; !ok || otherHash != hash {
			changed = append(changed, uintptr(addr))
		}
	}
	for addr := range other.Pages {
		if _, ok := d.Pages[addr]; !ok {
			changed = append(changed, uintptr(addr))
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// Equal reports whether both dumps cover the same pages with identical content.
func (d *Dump) Equal(other *Dump) bool {
	return len(d.Diff(other)) == 0
}

// PageContent decompresses the stored image of one page.
func (d *Dump) PageContent(addr uintptr) ([]byte, error) {
	hash, ok := d.Pages[uint64(addr)]
	if !ok {
		return nil, fmt.Errorf("no page at %#x in dump", addr)
	}
	return zstdDecoder.DecodeAll(d.Blobs[hash], nil)
}

// WriteTo serializes the dump for offline diffing.
func (d *Dump) WriteTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(d)
}

// Read deserializes a dump written by WriteTo.
func Read(r io.Reader) (*Dump, error) {
	d := newDump()
	if err := json.NewDecoder(r).Decode(d); err != nil {
		return nil, fmt.Errorf("failed to decode dump: %v", err)
	}
	return d, nil
}
