// Package web serves stored benchmark results for inspection.
package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/snapbench/snapbench/database"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>snapbench results</title>
    <meta charset="utf-8">
    <style>
        body { font-family: monospace; margin: 2em; }
        table { border-collapse: collapse; }
        td, th { border: 1px solid #999; padding: 4px 10px; text-align: right; }
        th { background: #eee; }
    </style>
</head>
<body>
    <h1>snapbench runs</h1>
    <table>
        <tr><th>id</th><th>time</th><th>workload</th><th>args</th><th>iters</th>
            <th>min ns</th><th>max ns</th><th>mean ns</th><th>median ns</th></tr>
        {{range .}}
        <tr>
            <td><a href="/api/timings?run={{.ID}}">{{.ID}}</a></td>
            <td>{{.Timestamp.Format "2006-01-02 15:04:05"}}</td>
            <td>{{.Workload}}</td><td>{{.Args}}</td><td>{{.Iterations}}</td>
            <td>{{.MinNs}}</td><td>{{.MaxNs}}</td><td>{{.MeanNs}}</td><td>{{.MedianNs}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>`))

// StartServer serves the run list and timing data until the listener fails.
func StartServer(db *database.DB, addr string) error {
	logHandler := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), r.Method, r.URL.Path)
			h(w, r)
		}
	}

	http.HandleFunc("/", logHandler(func(w http.ResponseWriter, r *http.Request) {
		runs, err := db.Runs(100)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		if err := indexTemplate.Execute(w, runs); err != nil {
			fmt.Printf("Error executing template: %v\n", err)
		}
	}))

	http.HandleFunc("/api/runs", logHandler(func(w http.ResponseWriter, r *http.Request) {
		runs, err := db.Runs(100)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}))

	http.HandleFunc("/api/timings", logHandler(func(w http.ResponseWriter, r *http.Request) {
		runID, err := strconv.ParseInt(r.URL.Query().Get("run"), 10, 64)
		if err != nil {
			http.Error(w, "bad run id", 400)
			return
		}
		timings, err := db.Timings(runID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(timings)
	}))

	fmt.Printf("Starting web server on %s\n", addr)
	return http.ListenAndServe(addr, nil)
}
