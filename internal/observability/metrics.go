package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the daemon-wide Prometheus collectors.
type Metrics struct {
	Registry         *prometheus.Registry
	Connections      prometheus.Gauge
	SharesAccepted   prometheus.Counter
	SharesRejected   prometheus.Counter
	VardiffAdjustments prometheus.Counter
	RPCLatency       *prometheus.HistogramVec
}

// NewMetrics registers and returns the daemon's metrics against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Registry: registry,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sv2d", Name: "connections", Help: "Currently connected downstream connections.",
		}),
		SharesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sv2d", Name: "shares_accepted_total", Help: "Accepted shares across all modes.",
		}),
		SharesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sv2d", Name: "shares_rejected_total", Help: "Rejected shares across all modes.",
		}),
		VardiffAdjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sv2d", Name: "vardiff_adjustments_total", Help: "Variable difficulty retargets performed.",
		}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sv2d", Name: "bitcoin_rpc_latency_seconds", Help: "Bitcoin RPC call latency by method.",
		}, []string{"method"}),
	}
	registry.MustRegister(m.Connections, m.SharesAccepted, m.SharesRejected, m.VardiffAdjustments, m.RPCLatency)
	return m
}
