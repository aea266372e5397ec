package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter is the live Prometheus side channel the replayer updates as
// flows launch, skip, complete, or error, served over HTTP at /metrics for
// scraping; Analyze does not read it. The teacher's own client_golang usage is a PromQL query client
// against an already-running server (pkg/monitoring/prometheus); this is
// the other half of the same dependency, generalized from reading scenario
// metrics to exposing flow metrics for a server to scrape.
type Exporter struct {
	registry *prometheus.Registry

	flowsTotal *prometheus.CounterVec
	fctSeconds *prometheus.HistogramVec

	server *http.Server
}

// NewExporter builds a fresh registry with the collectors this module
// exposes. Passing a registry around (rather than using the global
// default) keeps repeated Runs in the same process from colliding on
// duplicate registration.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()

	flowsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabricsim_flows_total",
		Help: "Count of replayed flows by class and outcome.",
	}, []string{"class", "outcome"})

	fctSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fabricsim_flow_completion_seconds",
		Help:    "Flow completion time in seconds, by class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"class"})

	reg.MustRegister(flowsTotal, fctSeconds)

	return &Exporter{registry: reg, flowsTotal: flowsTotal, fctSeconds: fctSeconds}
}

// Outcome values recorded against the flowsTotal counter.
const (
	OutcomeLaunched = "launched"
	OutcomeSkipped  = "skipped"
	OutcomeComplete = "completed"
	OutcomeError    = "errored"
)

func (ex *Exporter) ObserveLaunched(class Class) {
	ex.flowsTotal.WithLabelValues(string(class), OutcomeLaunched).Inc()
}

func (ex *Exporter) ObserveSkipped(class Class) {
	ex.flowsTotal.WithLabelValues(string(class), OutcomeSkipped).Inc()
}

// ObserveResult records a finished flow: a completion updates the FCT
// histogram, an error only increments the error counter.
func (ex *Exporter) ObserveResult(r FlowResult) {
	if r.Completion != nil {
		ex.flowsTotal.WithLabelValues(string(r.Class), OutcomeComplete).Inc()
		ex.fctSeconds.WithLabelValues(string(r.Class)).Observe(r.Completion.DurationSec)
		return
	}
	ex.flowsTotal.WithLabelValues(string(r.Class), OutcomeError).Inc()
}

// Serve starts the optional /metrics HTTP endpoint on addr (e.g.
// "127.0.0.1:9090") and blocks until ctx is canceled, then shuts down
// gracefully. Run it in its own goroutine.
func (ex *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ex.registry, promhttp.HandlerOpts{}))
	ex.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- ex.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return ex.server.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics: serve: %w", err)
		}
		return nil
	}
}
