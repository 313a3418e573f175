package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xguard_gateway_calls_total",
		Help: "Gateway and bus calls by call type and result",
	}, []string{"call", "result"}) // ok, timeout, breaker_open, error

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xguard_gateway_breaker_state",
		Help: "Circuit breaker state per call type (0=closed, 1=half-open, 2=open)",
	}, []string{"call"})
)
