// snapbench runs a workload repeatedly under page-granular memory
// snapshot/restore, so every iteration starts from an identical memory state
// without the cost of process teardown.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapbench/snapbench/database"
	"github.com/snapbench/snapbench/harness"
	"github.com/snapbench/snapbench/report"
	"github.com/snapbench/snapbench/web"
	"github.com/snapbench/snapbench/workload/pgmflip"
)

func main() {
	serve := flag.Bool("serve", false, "keep serving stored results over HTTP after the run")
	dataDir := flag.String("data", "data", "directory for the results database")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-serve] [-data dir] <image.pgm>\n", os.Args[0])
		os.Exit(1)
	}

	db, err := database.NewDB(*dataDir)
	if err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Iteration count, capacities and placement are fixed constants of the
	// harness, not runtime options.
	cfg := harness.DefaultConfig()

	// The argument vector is forwarded unmodified to the workload entry point
	// on every iteration.
	argv := append([]string{"pgmflip"}, flag.Args()...)

	h := harness.New(cfg)
	times, err := h.Run(pgmflip.Factory(), argv)
	if err != nil {
		fmt.Printf("Harness setup failed: %v\n", err)
		os.Exit(1)
	}

	if err := report.Write(os.Stdout, "pgmflip", times); err != nil {
		fmt.Printf("Failed to write report: %v\n", err)
	}

	s := report.Summarize(times)
	runID, err := db.InsertRun(&database.RunRecord{
		Timestamp:  time.Now(),
		Workload:   "pgmflip",
		Args:       database.JoinArgs(argv[1:]),
		Iterations: s.Iterations,
		MinNs:      s.Min.Nanoseconds(),
		MaxNs:      s.Max.Nanoseconds(),
		MeanNs:     s.Mean.Nanoseconds(),
		MedianNs:   s.Median.Nanoseconds(),
	})
	if err != nil {
		fmt.Printf("Failed to store run: %v\n", err)
		os.Exit(1)
	}
	if err := db.InsertTimings(runID, times); err != nil {
		fmt.Printf("Failed to store timings: %v\n", err)
		os.Exit(1)
	}

	if !*serve {
		return
	}

	go func() {
		if err := web.StartServer(db, ":8080"); err != nil {
			fmt.Printf("Web server error: %v\n", err)
		}
	}()
	fmt.Println("Results available at http://localhost:8080 ... Press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
