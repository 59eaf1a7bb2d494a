package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level collectors, registered once at import time (the pack's
// promauto.New* pattern), read by /metrics and updated by the handlers.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multiai_gateway_requests_total",
		Help: "Total client calls by route and outcome.",
	}, []string{"route", "outcome"})

	modelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multiai_gateway_model_requests_total",
		Help: "Total per-model streaming client invocations by outcome.",
	}, []string{"model", "source", "outcome"})

	circuitOpenGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "multiai_gateway_circuit_open",
		Help: "1 if the circuit for a model is currently open, else 0.",
	}, []string{"model"})

	dailySpendGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "multiai_gateway_daily_spend_usd",
		Help: "Current daily spending ledger amount in USD.",
	})

	monthlySpendGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "multiai_gateway_monthly_spend_usd",
		Help: "Current monthly spending ledger amount in USD.",
	})
)

func (s *Server) handleMetrics(c *gin.Context) {
	status := s.ledger.Status()
	dailySpendGauge.Set(status.DailyAmount)
	monthlySpendGauge.Set(status.MonthlyAmount)

	for _, model := range s.breaker.TrackedModels() {
		open := 0.0
		if s.breaker.IsOpen(model) {
			open = 1.0
		}
		circuitOpenGauge.WithLabelValues(model).Set(open)
	}

	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
