package governor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var proposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "proxypost_proposals_total",
	Help: "Number of agent action proposals, by kind and outcome",
}, []string{"kind", "outcome"})
