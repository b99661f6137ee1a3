// Package enginecfg loads the engine's runtime parameters from the
// environment (optionally via a .env file), the way the rest of this
// codebase's ambient configuration is loaded.
package enginecfg

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every policy knob the spec calls out as configurable. None
// of these defaults are load-bearing for correctness — the invariants
// hold for any legal setting.
type Config struct {
	MaxBatchSize int

	FundingInterval  int64
	FundingMaxRate   float64
	FundingDampening float64

	MaintenanceRatio float64
	PartialLiqPct    float64

	OracleMaxAge int64

	SlippageBps int64
	BandBps     int64

	CircuitBreakerThreshold float64
	CircuitBreakerWindow    int64

	CheckpointEvery int

	// LiquidationPenaltyBps widens the gap between mark and the price a
	// liquidated position actually closes at: a long closes below mark, a
	// short closes above it, by this many basis points.
	LiquidationPenaltyBps int64
}

// Load reads configuration from the environment, falling back to the
// spec's defaults for anything unset. A .env file in the working
// directory is loaded first, if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MaxBatchSize: getEnvAsInt("ENGINE_MAX_BATCH_SIZE", 100),

		FundingInterval:  getEnvAsInt64("ENGINE_FUNDING_INTERVAL", 28800),
		FundingMaxRate:   getEnvAsFloat("ENGINE_FUNDING_MAX_RATE", 5e-4),
		FundingDampening: getEnvAsFloat("ENGINE_FUNDING_DAMPENING", 0.95),

		MaintenanceRatio: getEnvAsFloat("ENGINE_MAINTENANCE_RATIO", 0.05),
		PartialLiqPct:    clamp(getEnvAsFloat("ENGINE_PARTIAL_LIQ_PCT", 0.25), 0.1, 1.0),

		OracleMaxAge: getEnvAsInt64("ENGINE_ORACLE_MAX_AGE", 60),

		SlippageBps: getEnvAsInt64("ENGINE_SLIPPAGE_BPS", 100),
		BandBps:     getEnvAsInt64("ENGINE_BAND_BPS", 500),

		CircuitBreakerThreshold: getEnvAsFloat("ENGINE_CB_THRESHOLD", 0.15),
		CircuitBreakerWindow:    getEnvAsInt64("ENGINE_CB_WINDOW", 300),

		CheckpointEvery: getEnvAsInt("ENGINE_CHECKPOINT_EVERY", 10),

		LiquidationPenaltyBps: getEnvAsInt64("ENGINE_LIQUIDATION_PENALTY_BPS", 50),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make the engine unsafe to
// run, as opposed to merely unusual.
func (c *Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("ENGINE_MAX_BATCH_SIZE must be positive, got %d", c.MaxBatchSize)
	}
	if c.FundingInterval <= 0 {
		return fmt.Errorf("ENGINE_FUNDING_INTERVAL must be positive, got %d", c.FundingInterval)
	}
	if c.MaintenanceRatio <= 0 {
		return fmt.Errorf("ENGINE_MAINTENANCE_RATIO must be positive, got %v", c.MaintenanceRatio)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if v, err := strconv.ParseInt(getEnv(key, ""), 10, 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultVal
}
