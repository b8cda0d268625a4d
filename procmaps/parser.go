package procmaps

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Iterator walks the entries of a maps file one region at a time.
type Iterator struct {
	file    *os.File
	scanner *bufio.Scanner
	current Region
	err     error
}

// Open starts iterating /proc/<pid>/maps. A negative pid means the current
// process. The caller must Close the iterator when done.
func Open(pid int) (*Iterator, error) {
	path := "/proc/self/maps"
	if pid >= 0 {
		path = fmt.Sprintf("/proc/%d/maps", pid)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open memory maps: %v", err)
	}

	return &Iterator{
		file:    file,
		scanner: bufio.NewScanner(file),
	}, nil
}

// Next advances to the next region. It returns false at end of input or on a
// read error; check Err afterwards.
func (it *Iterator) Next() bool {
	for it.scanner.Scan() {
		r, err := ParseLine(it.scanner.Text())
		if err != nil {
			// Tolerate malformed lines the way the kernel occasionally
			// produces them mid-update; skip and keep going.
			continue
		}
		it.current = r
		return true
	}
	it.err = it.scanner.Err()
	return false
}

// Region returns the region parsed by the last successful Next.
func (it *Iterator) Region() Region {
	return it.current
}

// Err returns the first read error encountered, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the underlying file.
func (it *Iterator) Close() error {
	return it.file.Close()
}

// Self reads the current process's full memory map into a slice, in map order.
func Self() ([]Region, error) {
	it, err := Open(-1)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var regions []Region
	for it.Next() {
		regions = append(regions, it.Region())
	}
	return regions, it.Err()
}

// ParseLine parses one maps line of the form
//
//	start-end perms offset dev inode [pathname]
//
// where pathname may be absent (anonymous mapping) or a pseudo name.
func ParseLine(line string) (Region, error) {
	var r Region

	fields := strings.Fields(line)
	if len(fields) < 5 {
		return r, fmt.Errorf("short maps line %q", line)
	}

	addrs := strings.SplitN(fields[0], "-", 2)
	if len(addrs) != 2 {
		return r, fmt.Errorf("bad address range %q", fields[0])
	}
	start, err := strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return r, fmt.Errorf("bad start address %q: %v", addrs[0], err)
	}
	end, err := strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return r, fmt.Errorf("bad end address %q: %v", addrs[1], err)
	}

	perms := fields[1]
	if len(perms) < 4 {
		return r, fmt.Errorf("bad permission column %q", perms)
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return r, fmt.Errorf("bad offset %q: %v", fields[2], err)
	}

	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return r, fmt.Errorf("bad inode %q: %v", fields[4], err)
	}

	r.Start = uintptr(start)
	r.End = uintptr(end)
	r.Perms = perms
	r.Read = perms[0] == 'r'
	r.Write = perms[1] == 'w'
	r.Exec = perms[2] == 'x'
	r.Shared = perms[3] == 's'
	r.Offset = offset
	r.Dev = fields[3]
	r.Inode = inode
	if len(fields) > 5 {
		r.Path = strings.Join(fields[5:], " ")
	}

	return r, nil
}
