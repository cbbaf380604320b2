// Package config resolves every dotted configuration knob into typed,
// defaults-resolved records for each component, read once at startup
// instead of each component calling os.Getenv directly.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/perpautopilot/internal/alerts"
	"github.com/aristath/perpautopilot/internal/heartbeat"
	"github.com/aristath/perpautopilot/internal/paperbook"
	"github.com/aristath/perpautopilot/internal/policy"
	"github.com/aristath/perpautopilot/internal/reflectmut"
)

// Config holds every application-level and per-component configuration
// knob.
type Config struct {
	Port    int
	DevMode bool

	DatabasePath string
	LogLevel     string

	Autonomy  policy.Config
	Heartbeat heartbeat.Config
	Reflect   reflectmut.Config
	Alerts    alerts.Config
	PaperBook paperbook.Config

	ExecutionMode          string // paper|live|webhook
	HyperliquidMaxLeverage float64

	WalletDailyLimit            float64
	WalletPerTradeLimit         float64
	WalletConfirmationThreshold float64

	ExecutorBaseURL         string
	OracleBaseURL           string
	ExpressionSourceBaseURL string
	WebhookURL              string
}

// Load reads every knob from the environment (and an optional .env file),
// falling back to each component's own DefaultConfig for anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	autonomy := policy.DefaultConfig()
	autonomy.AutonomyEnabled = getEnvAsBool("AUTONOMY_ENABLED", autonomy.AutonomyEnabled)
	autonomy.FullAuto = getEnvAsBool("AUTONOMY_FULL_AUTO", autonomy.FullAuto)
	autonomy.MaxTradesPerDay = getEnvAsInt("AUTONOMY_MAX_TRADES_PER_DAY", autonomy.MaxTradesPerDay)
	autonomy.ScanIntervalSeconds = getEnvAsInt("AUTONOMY_SCAN_INTERVAL_SECONDS", autonomy.ScanIntervalSeconds)
	autonomy.ProbeRiskFraction = getEnvAsFloat("AUTONOMY_PROBE_RISK_FRACTION", autonomy.ProbeRiskFraction)
	autonomy.NewsEntry.MinNovelty = getEnvAsFloat("AUTONOMY_NEWS_ENTRY_MIN_NOVELTY", autonomy.NewsEntry.MinNovelty)
	autonomy.NewsEntry.MinConfirm = getEnvAsFloat("AUTONOMY_NEWS_ENTRY_MIN_CONFIRM", autonomy.NewsEntry.MinConfirm)
	autonomy.NewsEntry.MinLiquidity = getEnvAsFloat("AUTONOMY_NEWS_ENTRY_MIN_LIQUIDITY", autonomy.NewsEntry.MinLiquidity)
	autonomy.NewsEntry.MinVolatility = getEnvAsFloat("AUTONOMY_NEWS_ENTRY_MIN_VOLATILITY", autonomy.NewsEntry.MinVolatility)
	autonomy.NewsEntry.MinSourceCount = getEnvAsInt("AUTONOMY_NEWS_ENTRY_MIN_SOURCE_COUNT", autonomy.NewsEntry.MinSourceCount)
	autonomy.SignalPerformance.MinSamples = getEnvAsInt("AUTONOMY_SIGNAL_PERFORMANCE_MIN_SAMPLES", autonomy.SignalPerformance.MinSamples)
	autonomy.SignalPerformance.MinSharpe = getEnvAsFloat("AUTONOMY_SIGNAL_PERFORMANCE_MIN_SHARPE", autonomy.SignalPerformance.MinSharpe)
	autonomy.SignalPerformance.MaxDrawdown = getEnvAsFloat("AUTONOMY_SIGNAL_PERFORMANCE_MAX_DRAWDOWN", autonomy.SignalPerformance.MaxDrawdown)
	autonomy.MaxKellyFraction = getEnvAsFloat("AUTONOMY_MAX_KELLY_FRACTION", autonomy.MaxKellyFraction)

	hb := heartbeat.DefaultConfig()
	hb.Enabled = getEnvAsBool("HEARTBEAT_ENABLED", hb.Enabled)
	hb.TickIntervalSeconds = getEnvAsInt("HEARTBEAT_TICK_INTERVAL_SECONDS", hb.TickIntervalSeconds)
	hb.RollingBufferSize = getEnvAsInt("HEARTBEAT_ROLLING_BUFFER_SIZE", hb.RollingBufferSize)
	hb.MaxCallsPerHour = getEnvAsInt("HEARTBEAT_LLM_MAX_CALLS_PER_HOUR", hb.MaxCallsPerHour)
	hb.Triggers.PnlShiftPct = getEnvAsFloat("HEARTBEAT_TRIGGERS_PNL_SHIFT_PCT", hb.Triggers.PnlShiftPct)
	hb.Triggers.LiquidationProximityPct = getEnvAsFloat("HEARTBEAT_TRIGGERS_LIQUIDATION_PROXIMITY_PCT", hb.Triggers.LiquidationProximityPct)
	hb.Triggers.FundingSpikePct = getEnvAsFloat("HEARTBEAT_TRIGGERS_FUNDING_SPIKE_PCT", hb.Triggers.FundingSpikePct)
	hb.Triggers.VolatilitySpikePct = getEnvAsFloat("HEARTBEAT_TRIGGERS_VOLATILITY_SPIKE_PCT", hb.Triggers.VolatilitySpikePct)
	hb.Triggers.VolatilitySpikeWindowTicks = getEnvAsInt("HEARTBEAT_TRIGGERS_VOLATILITY_SPIKE_WINDOW_TICKS", hb.Triggers.VolatilitySpikeWindowTicks)
	hb.Triggers.TimeCeilingMinutes = getEnvAsFloat("HEARTBEAT_TRIGGERS_TIME_CEILING_MINUTES", hb.Triggers.TimeCeilingMinutes)
	hb.Triggers.TriggerCooldownSeconds = getEnvAsInt("HEARTBEAT_TRIGGERS_COOLDOWN_SECONDS", hb.Triggers.TriggerCooldownSeconds)

	executionMode := getEnv("EXECUTION_MODE", "paper")
	hb.ExecutionMode = executionMode
	hb.Provider = getEnv("HYPERLIQUID_PROVIDER", "hyperliquid")

	reflectCfg := reflectmut.DefaultConfig()
	reflectCfg.ScanIntervalSeconds = autonomy.ScanIntervalSeconds
	reflectCfg.LeverageCapDefault = getEnvAsFloat("HYPERLIQUID_MAX_LEVERAGE", reflectCfg.LeverageCapDefault)

	alertsCfg := alerts.DefaultConfig()
	alertsCfg.Enabled = getEnvAsBool("ALERTS_ENABLED", alertsCfg.Enabled)
	alertsCfg.DedupeWindowSeconds = getEnvAsInt("ALERTS_DEDUPE_WINDOW_SECONDS", alertsCfg.DedupeWindowSeconds)
	alertsCfg.CooldownSeconds = getEnvAsInt("ALERTS_COOLDOWN_SECONDS", alertsCfg.CooldownSeconds)

	paperCfg := paperbook.DefaultConfig()
	paperCfg.FeeRate = getEnvAsFloat("PAPER_BOOK_FEE_RATE", paperCfg.FeeRate)
	paperCfg.StartingCash = getEnvAsFloat("PAPER_BOOK_STARTING_CASH", paperCfg.StartingCash)

	cfg := &Config{
		Port:         getEnvAsInt("GO_PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/perpautopilot.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		Autonomy:  autonomy,
		Heartbeat: hb,
		Reflect:   reflectCfg,
		Alerts:    alertsCfg,
		PaperBook: paperCfg,

		ExecutionMode:          executionMode,
		HyperliquidMaxLeverage: getEnvAsFloat("HYPERLIQUID_MAX_LEVERAGE", 5),

		WalletDailyLimit:            getEnvAsFloat("WALLET_LIMITS_DAILY", 100),
		WalletPerTradeLimit:         getEnvAsFloat("WALLET_LIMITS_PER_TRADE", 25),
		WalletConfirmationThreshold: getEnvAsFloat("WALLET_LIMITS_CONFIRMATION_THRESHOLD", 10),

		ExecutorBaseURL:         getEnv("EXECUTOR_BASE_URL", "http://localhost:8010"),
		OracleBaseURL:           getEnv("ORACLE_BASE_URL", "http://localhost:8011"),
		ExpressionSourceBaseURL: getEnv("EXPRESSION_SOURCE_BASE_URL", "http://localhost:8012"),
		WebhookURL:              getEnv("ALERTS_WEBHOOK_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	switch c.ExecutionMode {
	case "paper", "live", "webhook":
	default:
		return fmt.Errorf("EXECUTION_MODE must be one of paper|live|webhook, got %q", c.ExecutionMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
