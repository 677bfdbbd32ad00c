// Package router configures the tracker's HTTP routes.
//
// Routes configured:
//   - GET / - HTML page with the current high and record history
//   - GET /api/state - Current high and history as JSON
//   - GET /healthz - Liveness (always 200 OK)
//   - GET /readyz - Readiness (503 until state has been bootstrapped)
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /static/ - Files from the configured asset directory, if any
//
// Every route is wrapped in request logging and panic recovery.
package router

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/peakwatch/pkg/client"
	"github.com/HatiCode/peakwatch/pkg/httpx"
	"github.com/HatiCode/peakwatch/pkg/records"
)

// Options tunes the routes. Zero values are usable.
type Options struct {
	Metric    string
	Capacity  int
	StaticDir string
	// Ready reports nil once the tracker can serve its state.
	Ready func() error
	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer
}

// SetupRoutes builds the HTTP handler serving reader's state.
func SetupRoutes(reader records.Reader, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metric == "" {
		opts.Metric = "value"
	}
	if opts.Ready == nil {
		opts.Ready = func() error { return nil }
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleIndex(reader, opts, logger))
	mux.HandleFunc("GET /api/state", handleGetState(reader, opts, logger))

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.Handle("/readyz", httpx.HealthHandlerWithCheck(opts.Ready))

	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	if opts.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
}

func stateResponse(state records.State, opts Options) client.StateResponse {
	resp := client.StateResponse{
		Metric:      opts.Metric,
		CurrentHigh: state.CurrentHigh,
		History:     make([]client.RecordResponse, 0, len(state.History)),
		Capacity:    opts.Capacity,
	}
	for _, r := range state.History {
		resp.History = append(resp.History, client.RecordResponse{
			Value:      r.Value,
			ObservedAt: r.ObservedAt.UTC(),
		})
	}
	if len(state.History) > 0 {
		updated := state.History[0].ObservedAt.UTC()
		resp.UpdatedAt = &updated
	}
	return resp
}

// handleGetState returns a handler for GET /api/state.
func handleGetState(reader records.Reader, opts Options, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := stateResponse(reader.Snapshot(), opts)
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to encode state", "error", err)
		}
	}
}

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"timestamp": func(t time.Time) string { return t.UTC().Format(time.RFC1123) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>All-time high {{.Metric}}</title>
{{if .Static}}<link rel="stylesheet" href="/static/style.css">{{end}}
</head>
<body>
<h1>All-time high {{.Metric}}</h1>
<p class="current-high">{{.CurrentHigh}}</p>
{{if .History}}
<table>
<thead><tr><th>Value</th><th>Observed</th></tr></thead>
<tbody>
{{range .History}}<tr><td>{{.Value}}</td><td>{{timestamp .ObservedAt}}</td></tr>
{{end}}</tbody>
</table>
{{else}}
<p>No records yet.</p>
{{end}}
</body>
</html>
`))

type indexData struct {
	Metric      string
	CurrentHigh int64
	History     []records.Record
	Static      bool
}

// handleIndex returns a handler for GET /.
func handleIndex(reader records.Reader, opts Options, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := reader.Snapshot()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := indexTemplate.Execute(w, indexData{
			Metric:      opts.Metric,
			CurrentHigh: state.CurrentHigh,
			History:     state.History,
			Static:      opts.StaticDir != "",
		})
		if err != nil {
			logger.Error("failed to render index", "error", err)
		}
	}
}
