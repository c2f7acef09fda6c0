package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var liveCarts = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "agricoventas_cart_live_stores",
	Help: "Number of carts held in memory for active sessions",
})
