package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	submissionEvents     *prometheus.CounterVec
	attachmentsStored    *prometheus.CounterVec
	attachmentRejected   *prometheus.CounterVec
	attachmentLatencySec prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursework_http_requests_total",
			Help: "Total number of coursework API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursework_http_latency_seconds",
			Help:    "Latency distribution for coursework API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursework_http_errors_total",
			Help: "Total number of error responses returned by coursework endpoints.",
		}, []string{"method", "route", "status"})

		submissionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursework_submission_events_total",
			Help: "Submission lifecycle transitions by action and resulting status.",
		}, []string{"action", "status"})

		attachmentsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursework_attachments_stored_total",
			Help: "Attachments accepted and uploaded, by detected MIME type.",
		}, []string{"mime_type"})

		attachmentRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursework_attachments_rejected_total",
			Help: "Attachments rejected before or during upload, by reason.",
		}, []string{"reason"})

		attachmentLatencySec = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursework_attachment_latency_seconds",
			Help:    "Time spent validating and uploading attachments.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			submissionEvents,
			attachmentsStored,
			attachmentRejected,
			attachmentLatencySec,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SubmissionEvents counts submit, resubmit and grade transitions.
func SubmissionEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionEvents
}

// AttachmentsStored counts uploaded attachments.
func AttachmentsStored() *prometheus.CounterVec {
	RegisterMetrics()
	return attachmentsStored
}

// AttachmentRejected counts refused attachments.
func AttachmentRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return attachmentRejected
}

// AttachmentLatency exposes the attachment processing histogram.
func AttachmentLatency() prometheus.Histogram {
	RegisterMetrics()
	return attachmentLatencySec
}
