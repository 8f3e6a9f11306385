package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry              *prometheus.Registry
	postsTotal            *prometheus.CounterVec
	postDuration          *prometheus.HistogramVec
	activePublishes       prometheus.Gauge
	geometryTotal         *prometheus.CounterVec
	aspectFallbacksTotal  prometheus.Counter
	imageBytesTotal       prometheus.Counter
	publishTimeMSTotal    prometheus.Counter
	libraryDrainedTotal   prometheus.Counter
	rateLimitDeferrals    prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		postsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skypost_worker_posts_total",
			Help: "Total publish attempts by source type and final status.",
		}, []string{"source_type", "status"}),
		postDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skypost_worker_post_duration_seconds",
			Help:    "End-to-end duration of each publish attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activePublishes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skypost_worker_active_publishes",
			Help: "Current number of in-flight publish tasks.",
		}),
		geometryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skypost_geometry_extractions_total",
			Help: "Dimension extraction outcomes by detected format.",
		}, []string{"format", "outcome"}),
		aspectFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skypost_geometry_aspect_fallbacks_total",
			Help: "Posts published without aspect-ratio metadata.",
		}),
		imageBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skypost_published_image_bytes_total",
			Help: "Total image payload bytes published.",
		}),
		publishTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skypost_publish_time_ms_total",
			Help: "Total publish time in milliseconds across successful posts.",
		}),
		libraryDrainedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skypost_library_drained_total",
			Help: "Images drained from the local library by the scheduler.",
		}),
		rateLimitDeferrals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skypost_worker_rate_limit_deferrals_total",
			Help: "Publish tasks deferred by the posting rate limit.",
		}),
	}

	registry.MustRegister(
		m.postsTotal,
		m.postDuration,
		m.activePublishes,
		m.geometryTotal,
		m.aspectFallbacksTotal,
		m.imageBytesTotal,
		m.publishTimeMSTotal,
		m.libraryDrainedTotal,
		m.rateLimitDeferrals,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
