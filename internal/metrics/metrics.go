// Package metrics holds the process-wide Prometheus instruments. Everything
// registers against the default registerer; the binary decides whether a
// /metrics endpoint is actually served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "munind"

var factory = promauto.With(prometheus.DefaultRegisterer)

var (
	ConnectionsAccepted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_accepted_total",
		Help:      "TCP connections accepted since start.",
	})

	ConnectionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Connections currently open.",
	})

	TerminalTypes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "terminal_types_total",
		Help:      "Terminal types reported by clients.",
	}, []string{"terminal"})

	WindowSizeReports = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "window_size_reports_total",
		Help:      "NAWS window size reports received.",
	})

	KeepalivesSent = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "keepalives_sent_total",
		Help:      "Keepalive NOPs written to clients.",
	})

	BytesRead = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_read_total",
		Help:      "Bytes read from clients, counted when a connection closes.",
	})

	BytesWritten = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_written_total",
		Help:      "Bytes written to clients, counted when a connection closes.",
	})
)
