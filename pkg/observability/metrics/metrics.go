package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Process-wide counters, exposed in Prometheus text format. Counters only;
// anything fancier belongs in a real metrics backend.
var (
	whoRequests       atomic.Int64
	whoFailures       atomic.Int64
	jobsCompleted     atomic.Int64
	jobsFailed        atomic.Int64
	validationDropped atomic.Int64
	auditEvents       atomic.Int64
)

func WHORequest() { whoRequests.Add(1) }

func WHOFailure() { whoFailures.Add(1) }

func JobCompleted() { jobsCompleted.Add(1) }

func JobFailed() { jobsFailed.Add(1) }

func ValidationDropped() { validationDropped.Add(1) }

func AuditEvent() { auditEvents.Add(1) }

// WritePrometheus renders all counters in the Prometheus exposition format.
func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeCounter(w, "setu_terminology_who_requests_total", "Outbound WHO ICD-11 API requests.", whoRequests.Load())
	writeCounter(w, "setu_terminology_who_failures_total", "Failed WHO ICD-11 API requests.", whoFailures.Load())
	writeCounter(w, "setu_terminology_jobs_completed_total", "Resolution jobs that reached completed.", jobsCompleted.Load())
	writeCounter(w, "setu_terminology_jobs_failed_total", "Resolution jobs that reached failed.", jobsFailed.Load())
	writeCounter(w, "setu_terminology_validation_dropped_total", "Model diagnoses dropped by vocabulary validation.", validationDropped.Load())
	writeCounter(w, "setu_terminology_audit_events_total", "Audit entries recorded.", auditEvents.Load())
}

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	})
}
