// Package config defines all configuration for the simulation engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via SIM_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Pools      PoolConfig       `mapstructure:"pools"`
	Throughput ThroughputConfig `mapstructure:"throughput"`
	TraderData TraderDataConfig `mapstructure:"trader_data"`
	API        APIConfig        `mapstructure:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// EngineConfig tunes the tick loop, candle aggregator, and order book.
type EngineConfig struct {
	TickPeriod         time.Duration `mapstructure:"tick_period"`          // base cadence, 50ms
	MetricsPeriod      time.Duration `mapstructure:"metrics_period"`       // 2s
	BroadcastThrottle  time.Duration `mapstructure:"broadcast_throttle"`   // 2s minimum
	BroadcastMaxAge    time.Duration `mapstructure:"broadcast_max_age"`    // 10s max staleness
	RecentTradesCap    int           `mapstructure:"recent_trades_cap"`    // 5000
	ClosedPositionsCap int           `mapstructure:"closed_positions_cap"` // 500
	CandleHistoryCap   int           `mapstructure:"candle_history_cap"`   // 2000
	DefaultSpreadPct   float64       `mapstructure:"default_spread_pct"`   // 0.002
	DepthLevels        int           `mapstructure:"depth_levels"`         // 20
	MinOrderSize       float64       `mapstructure:"min_order_size"`       // 100
	MaxOrderSize       float64       `mapstructure:"max_order_size"`       // 10000
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`         // 5s
}

// PoolConfig sizes the object pools.
type PoolConfig struct {
	TradeCapacity    int `mapstructure:"trade_capacity"`    // 5000
	PositionCapacity int `mapstructure:"position_capacity"` // 2500
}

// ThroughputConfig sets the default throughput mode and cascade sizing.
type ThroughputConfig struct {
	DefaultMode           string  `mapstructure:"default_mode"`
	CascadeMinOrders      int     `mapstructure:"cascade_min_orders"`
	CascadeMaxOrders      int     `mapstructure:"cascade_max_orders"`
	MEVNotionalThreshold  float64 `mapstructure:"mev_notional_threshold"`
}

// TraderDataConfig sets the cache TTL and fallback population for the
// trader-data provider.
type TraderDataConfig struct {
	CacheDir       string        `mapstructure:"cache_dir"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`      // default 1h
	SyntheticCount int           `mapstructure:"synthetic_count"` // 118
}

// APIConfig controls the session + streaming HTTP server.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MetricsPort    int      `mapstructure:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.tick_period", 50*time.Millisecond)
	v.SetDefault("engine.metrics_period", 2*time.Second)
	v.SetDefault("engine.broadcast_throttle", 2*time.Second)
	v.SetDefault("engine.broadcast_max_age", 10*time.Second)
	v.SetDefault("engine.recent_trades_cap", 5000)
	v.SetDefault("engine.closed_positions_cap", 500)
	v.SetDefault("engine.candle_history_cap", 2000)
	v.SetDefault("engine.default_spread_pct", 0.002)
	v.SetDefault("engine.depth_levels", 20)
	v.SetDefault("engine.min_order_size", 100.0)
	v.SetDefault("engine.max_order_size", 10000.0)
	v.SetDefault("engine.lock_timeout", 5*time.Second)

	v.SetDefault("pools.trade_capacity", 5000)
	v.SetDefault("pools.position_capacity", 2500)

	v.SetDefault("throughput.default_mode", "NORMAL")
	v.SetDefault("throughput.cascade_min_orders", 10)
	v.SetDefault("throughput.cascade_max_orders", 30)
	v.SetDefault("throughput.mev_notional_threshold", 10000.0)

	v.SetDefault("trader_data.cache_dir", "data/trader_cache")
	v.SetDefault("trader_data.cache_ttl", time.Hour)
	v.SetDefault("trader_data.synthetic_count", 118)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.metrics_port", 9090)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Engine.TickPeriod <= 0 {
		return fmt.Errorf("engine.tick_period must be > 0")
	}
	if c.Engine.DepthLevels <= 0 {
		return fmt.Errorf("engine.depth_levels must be > 0")
	}
	if c.Engine.DefaultSpreadPct <= 0 {
		return fmt.Errorf("engine.default_spread_pct must be > 0")
	}
	if c.Pools.TradeCapacity <= 0 {
		return fmt.Errorf("pools.trade_capacity must be > 0")
	}
	if c.Pools.PositionCapacity <= 0 {
		return fmt.Errorf("pools.position_capacity must be > 0")
	}
	switch c.Throughput.DefaultMode {
	case "NORMAL", "BURST", "STRESS", "HFT":
	default:
		return fmt.Errorf("throughput.default_mode must be one of NORMAL, BURST, STRESS, HFT")
	}
	return nil
}
