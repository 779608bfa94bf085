package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/* decisionsTotal 闸门决策计数，按动作与原因分桶 */
var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vaxgate_gate_decisions_total",
	Help: "认证闸门决策次数",
}, []string{"action", "reason"})

func recordDecision(action Action, reason string) {
	decisionsTotal.WithLabelValues(string(action), reason).Inc()
}
