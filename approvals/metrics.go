package approvals

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "proxypost_approval_decisions_total",
	Help: "Number of human decisions applied to agent actions",
}, []string{"decision"})
