// Package report turns the harness's per-iteration timing sequence into
// operator-facing results.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// Summary are the aggregate statistics over one run's timing sequence.
type Summary struct {
	Iterations int
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	Median     time.Duration
	Total      time.Duration
}

// Summarize computes aggregates over the iteration timings. An empty sequence
// yields a zero summary.
func Summarize(times []time.Duration) Summary {
	s := Summary{Iterations: len(times)}
	if len(times) == 0 {
		return s
	}

	sorted := make([]time.Duration, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	for _, t := range sorted {
		s.Total += t
	}
	s.Mean = s.Total / time.Duration(len(sorted))
	if len(sorted)%2 == 1 {
		s.Median = sorted[len(sorted)/2]
	} else {
		s.Median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}
	return s
}

// Write prints every iteration timing followed by the summary, in the order
// the iterations ran.
func Write(w io.Writer, name string, times []time.Duration) error {
	for i, t := range times {
		if _, err := fmt.Fprintf(w, "%s iteration %d: %d ns\n", name, i, t.Nanoseconds()); err != nil {
			return err
		}
	}

	s := Summarize(times)
	_, err := fmt.Fprintf(w, "%s: %d iterations, min %v, max %v, mean %v, median %v\n",
		name, s.Iterations, s.Min, s.Max, s.Mean, s.Median)
	return err
}
