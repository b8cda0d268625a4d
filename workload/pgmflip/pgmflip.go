// Package pgmflip is the sample workload: decode a binary PGM image and emit
// the inverted picture. It keeps its working pixels in the harness arena and
// takes its staging buffer through the injected mapper, which is all the
// harness knows or cares about.
package pgmflip

import (
	"fmt"
	"os"

	"github.com/snapbench/snapbench/workload"
)

// Converter inverts 8-bit grayscale PGM images.
type Converter struct {
	env     workload.Env
	scratch []byte // staging buffer, mapped mid-run on first use
}

// Factory builds a Converter against the harness environment.
func Factory() workload.Factory {
	return func(env workload.Env) (workload.Workload, error) {
		return &Converter{env: env}, nil
	}
}

func (c *Converter) Name() string {
	return "pgmflip"
}

// Main is the workload entry point: argv[1] names the input image. Returns a
// process-style exit status to the driver.
func (c *Converter) Main(argv []string) int {
	if len(argv) < 2 {
		fmt.Fprintln(os.Stderr, "usage: pgmflip <image.pgm>")
		return 2
	}

	data, err := os.ReadFile(argv[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgmflip: %v\n", err)
		return 2
	}

	width, height, pixels, err := Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgmflip: %v\n", err)
		return 2
	}

	if len(pixels) > len(c.env.Arena) {
		fmt.Fprintf(os.Stderr, "pgmflip: image %dx%d exceeds arena\n", width, height)
		return 2
	}

	// Working pixels live in the monitored arena; every write here is
	// captured and undone between iterations.
	out := c.env.Arena[:len(pixels)]
	for i, p := range pixels {
		out[i] = 255 - p
	}

	if c.scratch == nil {
		c.scratch, err = c.env.Map(len(c.env.Arena))
		if err != nil {
			fmt.Fprintf(os.Stderr, "pgmflip: %v\n", err)
			return 2
		}
	}

	n := copy(c.scratch, out)
	fmt.Fprintf(os.Stdout, "P5\n%d %d\n255\n", width, height)
	os.Stdout.Write(c.scratch[:n])
	return 0
}

// maxHeaderValue caps width, height and maxval in a PGM header.
const maxHeaderValue = 1 << 20

// Decode parses a binary (P5) PGM image with maxval up to 255.
func Decode(data []byte) (width, height int, pixels []byte, err error) {
	pos := 0

	token := func() (string, error) {
		// skip whitespace and comment lines
		for pos < len(data) {
			c := data[pos]
			if c == '#' {
				for pos < len(data) && data[pos] != '\n' {
					pos++
				}
				continue
			}
			if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
				pos++
				continue
			}
			break
		}
		start := pos
		for pos < len(data) {
			c := data[pos]
			if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '#' {
				break
			}
			pos++
		}
		if start == pos {
			return "", fmt.Errorf("truncated PGM header")
		}
		return string(data[start:pos]), nil
	}

	number := func() (int, error) {
		t, err := token()
		if err != nil {
			return 0, err
		}
		n := 0
		for _, c := range t {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("bad number %q in PGM header", t)
			}
			n = n*10 + int(c-'0')
			// checked per digit so a long run of digits cannot overflow int
			if n > maxHeaderValue {
				return 0, fmt.Errorf("header value %q out of range", t)
			}
		}
		return n, nil
	}

	magic, err := token()
	if err != nil {
		return 0, 0, nil, err
	}
	if magic != "P5" {
		return 0, 0, nil, fmt.Errorf("not a binary PGM (magic %q)", magic)
	}

	if width, err = number(); err != nil {
		return 0, 0, nil, err
	}
	if height, err = number(); err != nil {
		return 0, 0, nil, err
	}
	maxval, err := number()
	if err != nil {
		return 0, 0, nil, err
	}
	if maxval <= 0 || maxval > 255 {
		return 0, 0, nil, fmt.Errorf("unsupported maxval %d", maxval)
	}

	// exactly one whitespace byte separates header and raster
	if pos >= len(data) {
		return 0, 0, nil, fmt.Errorf("truncated PGM raster")
	}
	pos++

	size := width * height
	if size <= 0 || pos+size > len(data) {
		return 0, 0, nil, fmt.Errorf("PGM raster short: want %d bytes, have %d", size, len(data)-pos)
	}

	return width, height, data[pos : pos+size], nil
}

// Encode produces a binary PGM image, for building test inputs.
func Encode(width, height int, pixels []byte) []byte {
	header := fmt.Sprintf("P5\n%d %d\n255\n", width, height)
	out := make([]byte, 0, len(header)+len(pixels))
	out = append(out, header...)
	return append(out, pixels...)
}
