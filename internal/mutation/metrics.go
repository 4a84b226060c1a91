package mutation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// bufferGrowths counts ring doublings across all channels.
	bufferGrowths = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_mutation_buffer_growths_total",
		Help: "Number of times a subscription buffer doubled its capacity",
	})

	// activeSubscriptions tracks live subscriptions across all broadcasters.
	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_mutation_subscriptions",
		Help: "Number of live mutation subscriptions",
	})
)
