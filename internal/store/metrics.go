package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agricoventas_cart_mutations_total",
			Help: "Total number of cart mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	cartHydrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agricoventas_cart_hydrations_total",
			Help: "Cart hydrations from storage by result",
		},
		[]string{"result"},
	)

	cartPersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agricoventas_cart_persist_failures_total",
			Help: "Cart storage writes that failed and left the cart in memory only",
		},
	)
)
