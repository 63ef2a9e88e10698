// Package metrics exposes dispatcher and session counters via
// Prometheus client_golang, grounded in how runZeroInc-conniver and
// runZeroInc-sockstats instrument their socket layers with the same
// library.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsStarted counts sessions the dispatcher has spawned, by role.
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srftp_sessions_started_total",
		Help: "Sessions spawned by the server dispatcher, by role.",
	}, []string{"role"})

	// SessionsFailed counts sessions that ended in a terminal error, by kind.
	SessionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srftp_sessions_failed_total",
		Help: "Sessions that ended in a terminal error, by error kind.",
	}, []string{"kind"})

	// BytesTransferred sums delivered payload bytes, by role.
	BytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srftp_bytes_transferred_total",
		Help: "Payload bytes delivered, by role.",
	}, []string{"role"})

	// Retransmissions counts DATA frame retransmissions.
	Retransmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srftp_retransmissions_total",
		Help: "DATA frames retransmitted after an RTO expiry.",
	})

	// RTO observes the current retransmission timeout at sample time.
	RTO = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "srftp_rto_seconds",
		Help:    "Retransmission timeout observed after each RTT sample.",
		Buckets: prometheus.ExponentialBuckets(0.5, 1.5, 8),
	})
)

// Serve runs the /metrics HTTP endpoint on addr. It blocks until the
// HTTP server stops and returns its error, so callers run it in its
// own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
