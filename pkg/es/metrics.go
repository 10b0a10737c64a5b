package es

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "factsearch",
		Subsystem: "es",
		Name:      "requests_total",
		Help:      "Search engine requests by operation and HTTP status.",
	}, []string{"op", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "factsearch",
		Subsystem: "es",
		Name:      "request_duration_seconds",
		Help:      "Search engine request latency by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)
