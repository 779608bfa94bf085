package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/* Prometheus 指标，随 /metrics 端点暴露 */
var (
	upGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaxgate_upstream_up",
		Help: "上游后端可达状态（1=UP, 0=DOWN）",
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaxgate_upstream_transitions_total",
		Help: "上游状态机转换次数",
	}, []string{"to"})

	probeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vaxgate_probe_duration_seconds",
		Help:    "存活探测耗时",
		Buckets: prometheus.DefBuckets,
	})
)

func setUpGauge(up bool) {
	if up {
		upGauge.Set(1)
	} else {
		upGauge.Set(0)
	}
}

func recordTransition(to State) {
	transitionsTotal.WithLabelValues(string(to)).Inc()
}

func observeProbe(d time.Duration) {
	probeDuration.Observe(d.Seconds())
}
