// Command engine runs the core trading engine as a standalone HTTP process:
// it wires persistence, the oracle, risk limits, and every settlement
// engine into a statemachine.Engine, exposes it over a small JSON API, and
// serves Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openliquid/core-engine/enginecfg"
	"github.com/openliquid/core-engine/enginelog"
	"github.com/openliquid/core-engine/oracle"
	"github.com/openliquid/core-engine/orderbook"
	"github.com/openliquid/core-engine/persistence"
	"github.com/openliquid/core-engine/riskengine"
	"github.com/openliquid/core-engine/statemachine"
)

func main() {
	cfg, err := enginecfg.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := enginelog.New(levelFromEnv())

	store, closeStore := openStore(logger)
	defer closeStore()

	pubsub := openPubSub(logger)
	if pubsub != nil {
		defer pubsub.Close()
	}

	portfolio := riskengine.PortfolioRiskLimits{
		MaxTotalLeverage: 200,
		MaxPositions:     50,
	}
	eng := statemachine.New(cfg, logger, store, pubsub, portfolio)

	eng.ConfigureAsset(orderbook.AssetId(1), statemachine.AssetConfig{
		RiskLimits: riskengine.AssetRiskLimits{
			MaxLeverage:     50,
			MaxPositionSize: 1_000_000_000,
			MaxNotional:     100_000_000_000,
			Tiers: []riskengine.LeverageTier{
				{MaxNotional: 10_000_000, MaxLeverage: 50},
				{MaxNotional: 50_000_000, MaxLeverage: 20},
				{MaxNotional: 100_000_000, MaxLeverage: 10},
			},
		},
		Oracle: oracle.ReferencePrice{Source: oracle.Weighted},
	})

	if err := eng.Recover(); err != nil {
		logger.Fatal("recovery failed", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, eng, logger)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + portFromEnv()
	logger.Info("engine listening", enginelog.Any("addr", addr))

	defer func() {
		if r := recover(); r != nil {
			logger.Fatal("engine crashed", nil, enginelog.Any("panic", r))
		}
	}()

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server exited", err)
	}
}

func registerRoutes(mux *http.ServeMux, eng *statemachine.Engine, logger *enginelog.Logger) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/mark", func(w http.ResponseWriter, r *http.Request) {
		assetParam := r.URL.Query().Get("asset")
		assetID, err := strconv.ParseUint(assetParam, 10, 32)
		if err != nil {
			http.Error(w, "invalid asset", http.StatusBadRequest)
			return
		}
		if err := eng.ApplyMark(orderbook.AssetId(assetID), time.Now().Unix()); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		assetParam := r.URL.Query().Get("asset")
		assetID, err := strconv.ParseUint(assetParam, 10, 32)
		if err != nil {
			http.Error(w, "invalid asset", http.StatusBadRequest)
			return
		}
		depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
		bids, asks, err := eng.Snapshot(orderbook.AssetId(assetID), depth)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"bids": bids, "asks": asks})
	})

	mux.HandleFunc("/v1/insurance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"balance": eng.Insurance().Balance().String(),
		})
	})
}

func openStore(logger *enginelog.Logger) (persistence.KV, func()) {
	dsn := os.Getenv("ENGINE_POSTGRES_DSN")
	if dsn == "" {
		logger.Info("no ENGINE_POSTGRES_DSN set, using in-memory store")
		mem := persistence.NewMemKV()
		return mem, func() {}
	}
	pg, err := persistence.NewPostgresKV(context.Background(), dsn)
	if err != nil {
		logger.Fatal("failed to connect to postgres", err)
	}
	return pg, func() { pg.Close() }
}

func openPubSub(logger *enginelog.Logger) *persistence.PubSub {
	addr := os.Getenv("ENGINE_REDIS_ADDR")
	if addr == "" {
		return nil
	}
	db, _ := strconv.Atoi(os.Getenv("ENGINE_REDIS_DB"))
	logger.Info("publishing fills to redis", enginelog.Any("addr", addr))
	return persistence.NewPubSub(addr, os.Getenv("ENGINE_REDIS_PASSWORD"), db, "fills")
}

func portFromEnv() string {
	if p := os.Getenv("ENGINE_PORT"); p != "" {
		return p
	}
	return "7999"
}

func levelFromEnv() enginelog.Level {
	switch os.Getenv("ENGINE_LOG_LEVEL") {
	case "debug":
		return enginelog.Debug
	case "warn":
		return enginelog.Warn
	case "error":
		return enginelog.Error
	default:
		return enginelog.Info
	}
}
