package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/you/subway/models"
)

// Collector owns a private registry with the registry service metrics.
// It implements service.Recorder and publisher.PublisherMetrics.
type Collector struct {
	reg *prometheus.Registry

	Operations      *prometheus.CounterVec // op, result: ok|error
	ChainRejections *prometheus.CounterVec // kind label from models.KindOf
	LineSections    *prometheus.GaugeVec   // line label
	OpDuration      *prometheus.HistogramVec

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subway_section_operations_total",
			Help: "Line and section operations by outcome.",
		}, []string{"op", "result"}),
		ChainRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subway_chain_rejections_total",
			Help: "Rejected operations by error kind.",
		}, []string{"kind"}),
		LineSections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subway_line_sections",
			Help: "Number of sections on each line.",
		}, []string{"line"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subway_operation_duration_seconds",
			Help:    "Duration of line and section operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"op"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subway_events_published_total",
			Help: "Total line change events published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subway_event_publish_errors_total",
			Help: "Total line change event publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subway_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subway_event_publish_duration_seconds",
			Help:    "Duration to marshal and publish a line change event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.Operations, c.ChainRejections, c.LineSections, c.OpDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the private registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// ObserveOperation records one service operation. Context cancellation is
// counted as an error but not as a rejection.
func (c *Collector) ObserveOperation(op string, d time.Duration, err error) {
	c.OpDuration.WithLabelValues(op).Observe(d.Seconds())
	if err == nil {
		c.Operations.WithLabelValues(op, "ok").Inc()
		return
	}
	c.Operations.WithLabelValues(op, "error").Inc()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.ChainRejections.WithLabelValues(string(models.KindOf(err))).Inc()
}

func (c *Collector) SetLineSections(lineID int64, sections int) {
	c.LineSections.WithLabelValues(strconv.FormatInt(lineID, 10)).Set(float64(sections))
}

func (c *Collector) ForgetLine(lineID int64) {
	c.LineSections.DeleteLabelValues(strconv.FormatInt(lineID, 10))
}

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
