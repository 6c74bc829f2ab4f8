// Package config loads simulation settings from .env files and environment
// variables, with CLI flags layered on top by the command.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable of a simulation run.
type Config struct {
	// Run shape.
	NumAgents    int
	DurationDays int
	Seed         int64

	// Clock.
	Realtime    bool
	SpeedFactor float64

	// Decision model.
	DecideScoreThreshold float64
	DecideIntervalMin    float64
	TargetActionsPerDay  float64
	PostCooldownMin      float64
	SelfDevCooldownMin   float64
	PurchaseCooldownMin  float64
	PurchaseCaps         map[int]int
	PurchaseGates        map[int]float64

	// Trend propagation.
	ExposureCooldownMin float64
	ReceptivityGain     float64
	EnergyDrain         float64
	FanoutBudgetPerMin  int
	TrendArchiveDays    float64

	// Scheduled maintenance.
	EnergyRecoveryDelta    float64
	EnergyRecoveryInterval float64

	// Queue and batching.
	MaxQueue              int
	BackpressureThreshold int
	BatchSize             int
	BatchTimeoutSec       float64
	BatchEveryEvents      int
	RetryMaxAttempts      int

	// Shutdown.
	GracefulTimeoutSec float64
	ForcedTimeoutSec   float64

	// Storage and logging.
	DBPath  string
	LogDir  string
	Verbose bool
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		NumAgents:    300,
		DurationDays: 1,
		Seed:         0,

		Realtime:    false,
		SpeedFactor: 60,

		DecideScoreThreshold: 0.25,
		DecideIntervalMin:    15,
		TargetActionsPerDay:  43,
		PostCooldownMin:      30,
		SelfDevCooldownMin:   120,
		PurchaseCooldownMin:  60,
		PurchaseCaps:         map[int]int{1: 3, 2: 2, 3: 1},
		PurchaseGates:        map[int]float64{1: 0.5, 2: 1.5, 3: 3.0},

		ExposureCooldownMin: 30,
		ReceptivityGain:     0.2,
		EnergyDrain:         0.01,
		FanoutBudgetPerMin:  120,
		TrendArchiveDays:    3,

		EnergyRecoveryDelta:    2.0,
		EnergyRecoveryInterval: 360,

		MaxQueue:              5000,
		BackpressureThreshold: 4000,
		BatchSize:             100,
		BatchTimeoutSec:       1.0,
		BatchEveryEvents:      1000,
		RetryMaxAttempts:      5,

		GracefulTimeoutSec: 30,
		ForcedTimeoutSec:   5,

		DBPath: "capsim.db",
		LogDir: "logs",
	}
}

// Load builds a Config from defaults overridden by .env and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on environment variables")
	}

	cfg := Default()
	cfg.NumAgents = getEnvInt("CAPSIM_NUM_AGENTS", cfg.NumAgents)
	cfg.DurationDays = getEnvInt("CAPSIM_DURATION_DAYS", cfg.DurationDays)
	cfg.Seed = int64(getEnvInt("CAPSIM_SEED", int(cfg.Seed)))
	cfg.Realtime = getEnvBool("CAPSIM_REALTIME", cfg.Realtime)
	cfg.SpeedFactor = getEnvFloat("CAPSIM_SPEED_FACTOR", cfg.SpeedFactor)

	cfg.DecideScoreThreshold = getEnvFloat("CAPSIM_DECIDE_SCORE_THRESHOLD", cfg.DecideScoreThreshold)
	cfg.DecideIntervalMin = getEnvFloat("CAPSIM_DECIDE_INTERVAL_MIN", cfg.DecideIntervalMin)
	cfg.TargetActionsPerDay = getEnvFloat("CAPSIM_TARGET_ACTIONS_PER_DAY", cfg.TargetActionsPerDay)
	cfg.PostCooldownMin = getEnvFloat("CAPSIM_POST_COOLDOWN_MIN", cfg.PostCooldownMin)
	cfg.SelfDevCooldownMin = getEnvFloat("CAPSIM_SELFDEV_COOLDOWN_MIN", cfg.SelfDevCooldownMin)
	cfg.PurchaseCooldownMin = getEnvFloat("CAPSIM_PURCHASE_COOLDOWN_MIN", cfg.PurchaseCooldownMin)
	if v, ok := os.LookupEnv("CAPSIM_PURCHASE_CAPS"); ok {
		caps, err := ParseLevelCaps(v)
		if err != nil {
			return nil, fmt.Errorf("CAPSIM_PURCHASE_CAPS: %w", err)
		}
		cfg.PurchaseCaps = caps
	}

	cfg.ExposureCooldownMin = getEnvFloat("CAPSIM_EXPOSURE_COOLDOWN_MIN", cfg.ExposureCooldownMin)
	cfg.ReceptivityGain = getEnvFloat("CAPSIM_RECEPTIVITY_GAIN", cfg.ReceptivityGain)
	cfg.EnergyDrain = getEnvFloat("CAPSIM_ENERGY_DRAIN", cfg.EnergyDrain)
	cfg.FanoutBudgetPerMin = getEnvInt("CAPSIM_FANOUT_BUDGET_PER_MIN", cfg.FanoutBudgetPerMin)
	cfg.TrendArchiveDays = getEnvFloat("CAPSIM_TREND_ARCHIVE_DAYS", cfg.TrendArchiveDays)

	cfg.EnergyRecoveryDelta = getEnvFloat("CAPSIM_ENERGY_RECOVERY_DELTA", cfg.EnergyRecoveryDelta)
	cfg.EnergyRecoveryInterval = getEnvFloat("CAPSIM_ENERGY_RECOVERY_INTERVAL", cfg.EnergyRecoveryInterval)

	cfg.MaxQueue = getEnvInt("CAPSIM_MAX_QUEUE", cfg.MaxQueue)
	cfg.BackpressureThreshold = getEnvInt("CAPSIM_BACKPRESSURE_THRESHOLD", cfg.BackpressureThreshold)
	cfg.BatchSize = getEnvInt("CAPSIM_BATCH_SIZE", cfg.BatchSize)
	cfg.BatchTimeoutSec = getEnvFloat("CAPSIM_BATCH_TIMEOUT_SEC", cfg.BatchTimeoutSec)
	cfg.BatchEveryEvents = getEnvInt("CAPSIM_BATCH_EVERY_EVENTS", cfg.BatchEveryEvents)
	cfg.RetryMaxAttempts = getEnvInt("CAPSIM_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)

	cfg.GracefulTimeoutSec = getEnvFloat("CAPSIM_GRACEFUL_TIMEOUT_SEC", cfg.GracefulTimeoutSec)
	cfg.ForcedTimeoutSec = getEnvFloat("CAPSIM_FORCED_TIMEOUT_SEC", cfg.ForcedTimeoutSec)

	cfg.DBPath = getEnv("CAPSIM_DB_PATH", cfg.DBPath)
	cfg.LogDir = getEnv("CAPSIM_LOG_DIR", cfg.LogDir)
	cfg.Verbose = getEnvBool("CAPSIM_VERBOSE", cfg.Verbose)

	return cfg, nil
}

// Validate rejects configurations the engine would refuse at startup.
func (c *Config) Validate() error {
	if c.NumAgents < 1 || c.NumAgents > 5000 {
		return fmt.Errorf("num agents %d out of range [1, 5000]", c.NumAgents)
	}
	if c.DurationDays < 1 || c.DurationDays > 365 {
		return fmt.Errorf("duration %d days out of range [1, 365]", c.DurationDays)
	}
	if c.Realtime && (c.SpeedFactor < 1 || c.SpeedFactor > 1000) {
		return fmt.Errorf("speed factor %.2f out of range [1, 1000]", c.SpeedFactor)
	}
	if c.DecideScoreThreshold < 0 || c.DecideScoreThreshold > 1 {
		return fmt.Errorf("decide score threshold %.3f out of range [0, 1]", c.DecideScoreThreshold)
	}
	if c.DecideIntervalMin <= 0 {
		return fmt.Errorf("decide interval must be positive, got %.2f", c.DecideIntervalMin)
	}
	if c.MaxQueue < 1 {
		return fmt.Errorf("max queue must be positive, got %d", c.MaxQueue)
	}
	if c.BackpressureThreshold > c.MaxQueue {
		return fmt.Errorf("backpressure threshold %d exceeds max queue %d", c.BackpressureThreshold, c.MaxQueue)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be positive, got %d", c.RetryMaxAttempts)
	}
	if c.FanoutBudgetPerMin < 1 {
		return fmt.Errorf("fanout budget must be positive, got %d", c.FanoutBudgetPerMin)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	for lvl := range c.PurchaseCaps {
		if _, ok := c.PurchaseGates[lvl]; !ok {
			return fmt.Errorf("purchase level %d has a cap but no financial gate", lvl)
		}
	}
	return nil
}

// SimMinutes returns the run length in simulated minutes.
func (c *Config) SimMinutes() float64 {
	return float64(c.DurationDays) * 1440
}

// PurchaseLevels returns the configured purchase levels in ascending order.
func (c *Config) PurchaseLevels() []int {
	levels := make([]int, 0, len(c.PurchaseCaps))
	for lvl := range c.PurchaseCaps {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	return levels
}

// ParseLevelCaps parses a "level:cap,level:cap" string, e.g. "1:3,2:2,3:1".
func ParseLevelCaps(s string) (map[int]int, error) {
	out := make(map[int]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed entry %q", part)
		}
		lvl, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("level in %q: %w", part, err)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("cap in %q: %w", part, err)
		}
		if lvl < 1 || limit < 0 {
			return nil, fmt.Errorf("entry %q out of range", part)
		}
		out[lvl] = limit
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no purchase levels configured")
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}
