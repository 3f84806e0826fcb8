// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var LoansApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "openshelter",
	Name:      "loans_applied_total",
	Help:      "Loan applications recorded after ledger confirmation.",
})

var LoanTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openshelter",
	Name:      "loan_transitions_total",
	Help:      "Loan status transitions by target status.",
}, []string{"status"})

var PaymentsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openshelter",
	Name:      "payments_applied_total",
	Help:      "Payments applied, split into new and replayed.",
}, []string{"outcome"})

var VersionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openshelter",
	Name:      "loan_version_conflicts_total",
	Help:      "Optimistic concurrency conflicts on loan writes by operation.",
}, []string{"operation"})

var LedgerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openshelter",
	Name:      "ledger_errors_total",
	Help:      "Ledger gateway failures by kind (rejected, unavailable).",
}, []string{"kind"})

var CacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openshelter",
	Name:      "loan_cache_results_total",
	Help:      "Loan cache lookups by result (hit, miss, error).",
}, []string{"result"})

var SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "openshelter",
	Name:      "scheduler_job_runs_total",
	Help:      "Scheduler job executions by job and result.",
}, []string{"job", "result"})

var RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "openshelter",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency by route and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "code"})

const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records RequestDuration labelled with the matched mux route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
