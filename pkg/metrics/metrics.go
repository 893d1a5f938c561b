package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/castwall/internal/common/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick outcomes
const (
	TickOK    = "ok"
	TickError = "error"
	TickIdle  = "idle"
)

// Metrics is the hub's prometheus registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec

	tickCnt       *prometheus.CounterVec
	tickDur       prometheus.Histogram
	framesPub     *prometheus.CounterVec
	framesDrop    *prometheus.CounterVec
	frameBytes    *prometheus.HistogramVec
	windows       prometheus.Gauge
	clients       prometheus.Gauge
	activeCli     prometheus.Gauge
	clientsNew    prometheus.Counter
	clientsReap   prometheus.Counter
	streamsInfl   *prometheus.GaugeVec
	eventsDropCnt prometheus.Counter
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	tickCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "broadcast_ticks_total"}, []string{"status"})
	tickDur := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "broadcast_tick_duration_seconds", Buckets: cfg.Buckets})
	framesPub := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "frames_published_total"}, []string{"kind"})
	framesDrop := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "frames_dropped_total"}, []string{"kind"})
	frameBytes := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "frame_size_bytes",
		Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 8),
	}, []string{"kind"})
	windows := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "windows"})
	r.MustRegister(tickCnt, tickDur, framesPub, framesDrop, frameBytes, windows)

	clients := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "clients"})
	activeCli := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "clients_active"})
	clientsNew := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "clients_created_total"})
	clientsReap := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "clients_reaped_total"})
	streamsInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "streams_inflight"}, []string{"kind"})
	eventsDropCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "events_dropped_total"})
	r.MustRegister(clients, activeCli, clientsNew, clientsReap, streamsInfl, eventsDropCnt)

	return &Metrics{
		registry:      r,
		namespace:     ns,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		httpInfl:      httpInfl,
		tickCnt:       tickCnt,
		tickDur:       tickDur,
		framesPub:     framesPub,
		framesDrop:    framesDrop,
		frameBytes:    frameBytes,
		windows:       windows,
		clients:       clients,
		activeCli:     activeCli,
		clientsNew:    clientsNew,
		clientsReap:   clientsReap,
		streamsInfl:   streamsInfl,
		eventsDropCnt: eventsDropCnt,
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) TickDone(status string, since time.Time) {
	if m == nil {
		return
	}
	m.tickCnt.WithLabelValues(status).Inc()
	m.tickDur.Observe(time.Since(since).Seconds())
}

func (m *Metrics) FramePublished(kind string, evicted bool) {
	if m == nil {
		return
	}
	m.framesPub.WithLabelValues(kind).Inc()
	if evicted {
		m.framesDrop.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FrameEncoded(kind string, size int) {
	if m == nil {
		return
	}
	m.frameBytes.WithLabelValues(kind).Observe(float64(size))
}

func (m *Metrics) SetWindows(n int) {
	if m == nil {
		return
	}
	m.windows.Set(float64(n))
}

func (m *Metrics) SetClients(total, active int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(total))
	m.activeCli.Set(float64(active))
}

func (m *Metrics) ClientCreated() {
	if m == nil {
		return
	}
	m.clientsNew.Inc()
}

func (m *Metrics) ClientsReaped(n int) {
	if m == nil {
		return
	}
	m.clientsReap.Add(float64(n))
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropCnt.Inc()
}

func (m *Metrics) StreamStart(kind string) {
	if m == nil {
		return
	}
	m.streamsInfl.WithLabelValues(kind).Inc()
}

func (m *Metrics) StreamDone(kind string) {
	if m == nil {
		return
	}
	m.streamsInfl.WithLabelValues(kind).Dec()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = routeFromURL(c.Request.URL.Path)
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// routeFromURL keeps unmatched paths from blowing up label cardinality
func routeFromURL(path string) string {
	if strings.HasPrefix(path, "/screenshot_window/") {
		return "/screenshot_window/:index"
	}
	if strings.HasPrefix(path, "/video_feed_window/") {
		return "/video_feed_window/:index"
	}
	return "unmatched"
}

func httpStatus(code int) string { return strconv.Itoa(code) }
