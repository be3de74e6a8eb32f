// Package metrics holds the Prometheus collectors shared by the store and
// the HTTP layer. Collectors register with the default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfd_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sfd_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfd_uploads_total",
			Help: "Upload requests by outcome.",
		},
		[]string{"result"},
	)

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfd_upload_bytes_total",
		Help: "Bytes written by committed uploads.",
	})

	uploadFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfd_upload_files_total",
		Help: "Files written by committed uploads.",
	})

	otpCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfd_otp_collisions_total",
		Help: "OTP candidates rejected by the unique index.",
	})

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfd_downloads_total",
			Help: "Completed downloads by kind (file, zip, not_modified).",
		},
		[]string{"kind"},
	)

	downloadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfd_download_bytes_total",
			Help: "Bytes streamed to clients by kind.",
		},
		[]string{"kind"},
	)

	zipBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sfd_zip_build_seconds",
		Help:    "Time spent building temporary archives.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	zipSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfd_zip_slots_in_use",
		Help: "Archive builds currently holding a worker slot.",
	})

	idpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfd_idp_requests_total",
			Help: "Identity provider calls by operation and outcome.",
		},
		[]string{"op", "result"},
	)
)

// RecordRequest records one finished HTTP request.
func RecordRequest(method, path, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordUpload records a committed bundle.
func RecordUpload(files int, bytes int64) {
	uploadsTotal.WithLabelValues("ok").Inc()
	uploadFilesTotal.Add(float64(files))
	uploadBytesTotal.Add(float64(bytes))
}

// RecordUploadError records a failed upload by short reason label.
func RecordUploadError(reason string) {
	uploadsTotal.WithLabelValues(reason).Inc()
}

func RecordOTPCollision() {
	otpCollisionsTotal.Inc()
}

// RecordDownload records a streamed response body.
func RecordDownload(kind string, bytes int64) {
	downloadsTotal.WithLabelValues(kind).Inc()
	if bytes > 0 {
		downloadBytesTotal.WithLabelValues(kind).Add(float64(bytes))
	}
}

func RecordZipBuild(d time.Duration) {
	zipBuildDuration.Observe(d.Seconds())
}

// ZipSlotAcquired and ZipSlotReleased track worker slot occupancy.
func ZipSlotAcquired() { zipSlotsInUse.Inc() }
func ZipSlotReleased() { zipSlotsInUse.Dec() }

// RecordIDPCall records one identity provider round trip.
func RecordIDPCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	idpRequestsTotal.WithLabelValues(op, result).Inc()
}
