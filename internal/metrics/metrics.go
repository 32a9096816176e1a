// Package metrics exposes Prometheus counters for the coordination core.
//
// Each slotshell process keeps its own counters; only a process started in
// server mode publishes them over HTTP. A nil *Collector is valid and
// records nothing, so components can take one optionally.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "slotshell"

// Result label values shared by the counters.
const (
	ResultAdmitted = "admitted"
	ResultRejected = "rejected"
	ResultAcquired = "acquired"
	ResultBusy     = "busy"
	ResultAccepted = "accepted"
	ResultDenied   = "denied"
	ResultError    = "error"
)

// Collector is a prometheus.Collector for admission, mailbox, lock, and
// remote server activity.
type Collector struct {
	admissions             *prometheus.CounterVec
	lockAcquisitions       *prometheus.CounterVec
	notificationsPushed    prometheus.Counter
	notificationsEvicted   prometheus.Counter
	notificationsDelivered prometheus.Counter
	remoteConnections      *prometheus.CounterVec
	activeConnections      prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "admissions_total",
				Help:      "Session admission attempts by result.",
			}, []string{"result"},
		),
		lockAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "lock_acquisitions_total",
				Help:      "Resource lock acquisition attempts by result.",
			}, []string{"result"},
		),
		notificationsPushed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_pushed_total",
				Help:      "Notifications pushed to the shared mailbox.",
			},
		),
		notificationsEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_evicted_total",
				Help:      "Notifications evicted from a full mailbox before delivery.",
			},
		),
		notificationsDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_delivered_total",
				Help:      "Notifications removed from the mailbox by a drain.",
			},
		),
		remoteConnections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "remote_connections_total",
				Help:      "Remote protocol connections by result.",
			}, []string{"result"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "remote_active_connections",
				Help:      "Remote protocol connections currently being served.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.admissions.Describe(ch)
	c.lockAcquisitions.Describe(ch)
	c.notificationsPushed.Describe(ch)
	c.notificationsEvicted.Describe(ch)
	c.notificationsDelivered.Describe(ch)
	c.remoteConnections.Describe(ch)
	c.activeConnections.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.admissions.Collect(ch)
	c.lockAcquisitions.Collect(ch)
	c.notificationsPushed.Collect(ch)
	c.notificationsEvicted.Collect(ch)
	c.notificationsDelivered.Collect(ch)
	c.remoteConnections.Collect(ch)
	c.activeConnections.Collect(ch)
}

// Admission records one admission attempt.
func (c *Collector) Admission(result string) {
	if c == nil {
		return
	}
	c.admissions.WithLabelValues(result).Inc()
}

// LockAcquisition records one resource lock attempt.
func (c *Collector) LockAcquisition(result string) {
	if c == nil {
		return
	}
	c.lockAcquisitions.WithLabelValues(result).Inc()
}

// NotificationPushed records a push and whether it evicted an older entry.
func (c *Collector) NotificationPushed(evicted bool) {
	if c == nil {
		return
	}
	c.notificationsPushed.Inc()
	if evicted {
		c.notificationsEvicted.Inc()
	}
}

// NotificationsDelivered records n notifications removed by a drain.
func (c *Collector) NotificationsDelivered(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.notificationsDelivered.Add(float64(n))
}

// RemoteConnection records the outcome of a remote handshake.
func (c *Collector) RemoteConnection(result string) {
	if c == nil {
		return
	}
	c.remoteConnections.WithLabelValues(result).Inc()
}

// ConnectionOpened increments the active connection gauge.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.activeConnections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.activeConnections.Dec()
}

// Handler returns an HTTP handler serving c from a dedicated registry.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Serve publishes c on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, c *Collector) error {
	h, err := Handler(c)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
