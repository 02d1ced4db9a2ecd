// internal/metrics/collector.go
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/FairForge/multipath/internal/mpath"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mpathd"

// Collector holds the Prometheus metrics of the daemon
type Collector struct {
	IOTotal       *prometheus.CounterVec
	IODuration    *prometheus.HistogramVec
	Requeues      *prometheus.CounterVec
	Events        *prometheus.CounterVec
	ValidPaths    *prometheus.GaugeVec
	QueuedIOs     *prometheus.GaugeVec
	PathActive    *prometheus.GaugeVec
	PathFailures  *prometheus.GaugeVec
	CurrentGroup  *prometheus.GaugeVec
	QueueIfNoPath *prometheus.GaugeVec
	APIRequests   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		IOTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "io_total",
				Help:      "Completed I/O requests by device, operation and result",
			},
			[]string{"device", "op", "result"},
		),
		IODuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "io_duration_seconds",
				Help:      "Time from submission to completion of I/O requests",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"device", "op"},
		),
		Requeues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requeues_total",
				Help:      "Requests pushed back to the submitter",
			},
			[]string{"device"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Device state changes by type",
			},
			[]string{"device", "type"},
		),
		ValidPaths: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "valid_paths",
				Help:      "Paths currently usable",
			},
			[]string{"device"},
		),
		QueuedIOs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_ios",
				Help:      "Requests held by the device",
			},
			[]string{"device"},
		),
		PathActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "path_active",
				Help:      "1 if the path is active, 0 if failed",
			},
			[]string{"device", "group", "path"},
		),
		PathFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "path_fail_count",
				Help:      "Times the path has been failed",
			},
			[]string{"device", "group", "path"},
		),
		CurrentGroup: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "current_group",
				Help:      "Priority group carrying I/O, 0 if none",
			},
			[]string{"device"},
		),
		QueueIfNoPath: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_if_no_path",
				Help:      "1 if I/O is held while no path is usable",
			},
			[]string{"device"},
		),
		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Admin API requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		c.IOTotal,
		c.IODuration,
		c.Requeues,
		c.Events,
		c.ValidPaths,
		c.QueuedIOs,
		c.PathActive,
		c.PathFailures,
		c.CurrentGroup,
		c.QueueIfNoPath,
		c.APIRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveIO records one completed request
func (c *Collector) ObserveIO(device string, op mpath.Op, d time.Duration, err error) {
	c.IOTotal.WithLabelValues(device, op.String(), ioResult(err)).Inc()
	c.IODuration.WithLabelValues(device, op.String()).Observe(d.Seconds())
}

func ioResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, mpath.ErrNoUsablePath):
		return "no_path"
	case errors.Is(err, mpath.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

// ObserveRequeue counts a push-back
func (c *Collector) ObserveRequeue(device string) {
	c.Requeues.WithLabelValues(device).Inc()
}

// ObserveEvent counts a device event
func (c *Collector) ObserveEvent(ev mpath.Event) {
	c.Events.WithLabelValues(ev.Device, string(ev.Type)).Inc()
}

// ObserveState copies a device snapshot into the gauges
func (c *Collector) ObserveState(s mpath.Snapshot) {
	c.ValidPaths.WithLabelValues(s.Name).Set(float64(s.ValidPaths))
	c.QueuedIOs.WithLabelValues(s.Name).Set(float64(s.QueueSize))
	c.CurrentGroup.WithLabelValues(s.Name).Set(float64(s.CurrentGroup))
	c.QueueIfNoPath.WithLabelValues(s.Name).Set(boolFloat(s.QueueIfNoPath))

	for _, g := range s.Groups {
		group := strconv.FormatUint(uint64(g.Num), 10)
		for _, p := range g.Paths {
			c.PathActive.WithLabelValues(s.Name, group, p.Name).Set(boolFloat(p.Active))
			c.PathFailures.WithLabelValues(s.Name, group, p.Name).Set(float64(p.FailCount))
		}
	}
}

// Forget drops every series of a removed device
func (c *Collector) Forget(device string) {
	match := prometheus.Labels{"device": device}
	for _, vec := range []*prometheus.MetricVec{
		c.IOTotal.MetricVec,
		c.IODuration.MetricVec,
		c.Requeues.MetricVec,
		c.Events.MetricVec,
		c.ValidPaths.MetricVec,
		c.QueuedIOs.MetricVec,
		c.PathActive.MetricVec,
		c.PathFailures.MetricVec,
		c.CurrentGroup.MetricVec,
		c.QueueIfNoPath.MetricVec,
	} {
		vec.DeletePartialMatch(match)
	}
}

// IncrementAPIRequest counts an admin API request
func (c *Collector) IncrementAPIRequest(method, route string, status int) {
	c.APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus scrape handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
