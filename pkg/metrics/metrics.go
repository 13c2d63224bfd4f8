package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peerbot_build_info",
		Help: "Build information for the running peerbot binary",
	}, []string{"version", "commit", "date"})

	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerbot_refresh_total",
		Help: "Route server endpoint fetches by outcome",
	}, []string{"location", "route_server", "status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "peerbot_refresh_duration_seconds",
		Help:    "Duration of full snapshot refreshes",
		Buckets: prometheus.DefBuckets,
	})

	LookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerbot_lookups_total",
		Help: "ASN lookups by result",
	}, []string{"result"})

	MessagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerbot_slack_messages_processed_total",
		Help: "Slack messages processed by the bot",
	}, []string{"channel_type"})

	MessagesIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerbot_slack_messages_ignored_total",
		Help: "Slack messages ignored by the bot, by reason",
	}, []string{"reason"})

	EventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerbot_slack_events_duplicate_total",
		Help: "Duplicate Slack events skipped",
	})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peerbot_http_request_duration_seconds",
		Help:    "HTTP request duration by method, path and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request duration for every route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestDuration.WithLabelValues(
			r.Method,
			r.URL.Path,
			strconv.Itoa(rec.status),
		).Observe(time.Since(start).Seconds())
	})
}
