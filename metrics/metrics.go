// Package metrics exposes the engine's Prometheus instrumentation. The
// HTTP exposition endpoint itself belongs to the RPC layer; this package
// only registers and updates the gauges, counters, and histograms.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_match_latency_microseconds",
			Help:    "Time spent matching one incoming order, in microseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"asset"},
	)

	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_fills_total",
			Help: "Total number of fills produced by the matching engine.",
		},
		[]string{"asset"},
	)

	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Total number of orders rejected, by error kind.",
		},
		[]string{"kind"},
	)

	OpenInterest = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_open_interest",
			Help: "Net open interest per asset, in base units.",
		},
		[]string{"asset"},
	)

	LiquidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_liquidations_total",
			Help: "Total number of liquidation events, by mode.",
		},
		[]string{"asset", "mode"},
	)

	ADLEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_adl_events_total",
			Help: "Total number of auto-deleveraging events.",
		},
		[]string{"asset"},
	)

	FundingRateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_funding_rate",
			Help: "Current clamped funding rate per asset.",
		},
		[]string{"asset"},
	)

	InsuranceFundBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_insurance_fund_balance",
			Help: "Current insurance fund balance, in collateral units.",
		},
	)

	CircuitBreakerHalted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_circuit_breaker_halted",
			Help: "1 if the asset's circuit breaker is halted, else 0.",
		},
		[]string{"asset"},
	)
)
