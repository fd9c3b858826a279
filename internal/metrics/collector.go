package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/voice-relay/internal/streaming"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voice_relay"

type Collector struct {
	registry *prometheus.Registry

	streamsStarted  prometheus.Counter
	streamsFinished *prometheus.CounterVec
	activeStreams   prometheus.Gauge
	audioBytesSent  prometheus.Counter
	transcripts     prometheus.Counter
	upstreamConnect prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		streamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_started_total",
			Help:      "Total number of streaming sessions started",
		}),
		streamsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_finished_total",
			Help:      "Total number of streaming sessions finished by outcome",
		}, []string{"outcome"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streaming sessions currently running",
		}),
		audioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Audio bytes forwarded to the transcription vendor",
		}),
		transcripts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Transcript events relayed to clients",
		}),
		upstreamConnect: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_connect_seconds",
			Help:      "Time to open the vendor streaming connection",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		logger: logger.With("component", "metrics"),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) StreamStarted() {
	c.streamsStarted.Inc()
	c.activeStreams.Inc()
}

func (c *Collector) StreamFinished(outcome streaming.Outcome) {
	c.streamsFinished.WithLabelValues(string(outcome)).Inc()
	c.activeStreams.Dec()
}

func (c *Collector) UpstreamConnected(elapsed time.Duration) {
	c.upstreamConnect.Observe(elapsed.Seconds())
}

func (c *Collector) AudioSent(bytes int) {
	c.audioBytesSent.Add(float64(bytes))
}

func (c *Collector) TranscriptRelayed() {
	c.transcripts.Inc()
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Middleware records request counts and latency by route pattern.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}

			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			c.RecordHTTPRequest(ctx.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog:          slog.NewLogLogger(c.logger.Handler(), slog.LevelError),
		EnableOpenMetrics: true,
	})
}
