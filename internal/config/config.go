// Package config provides configuration management for the strangle pipeline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultRetryInterval is used when marketdata.retry_interval is unset
	defaultRetryInterval = "2s"
	// defaultRetryAttempts is used when marketdata.retry_attempts is unset
	defaultRetryAttempts = 7
	// defaultOrderIDTimeout is used when orders.id_timeout is unset
	defaultOrderIDTimeout = "15s"
	// defaultStopLossMultiplier is used when orders.stop_loss_multiplier is unset
	defaultStopLossMultiplier = 3.0
	// defaultStrategyTag is used when orders.strategy_tag is unset
	defaultStrategyTag = "eod-strangle"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	MarketData  MarketDataConfig  `yaml:"marketdata"`
	Orders      OrdersConfig      `yaml:"orders"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Symbols     []SymbolConfig    `yaml:"symbols"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// GatewayConfig defines gateway bridge connection settings.
type GatewayConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	Timeout     string `yaml:"timeout"`      // HTTP timeout, duration string
	SettleDelay string `yaml:"settle_delay"` // snapshot subscription settle wait
}

// MarketDataConfig defines the reference price retry policy.
type MarketDataConfig struct {
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryInterval string `yaml:"retry_interval"`
	// AllowCloseFallback admits the snapshot close field as a reference
	// price source before reaching for historical bars.
	AllowCloseFallback bool `yaml:"allow_close_fallback"`
}

// OrdersConfig defines order submission parameters shared by all symbols.
type OrdersConfig struct {
	IDTimeout string `yaml:"id_timeout"` // max wait for a broker order id
	// StopLossMultiplier scales the combo mid price into the trailing
	// stop amount of the protective order.
	StopLossMultiplier float64 `yaml:"stop_loss_multiplier"`
	StrategyTag        string  `yaml:"strategy_tag"`
}

// ScheduleConfig defines the trading calendar inputs.
type ScheduleConfig struct {
	Timezone string `yaml:"timezone"` // e.g., "America/New_York"
	// Event dates in YYYY-MM-DD; entries gate new submissions until the
	// release has printed.
	FOMCDates []string `yaml:"fomc_dates"`
	CPIDates  []string `yaml:"cpi_dates"`
	Holidays  []string `yaml:"holidays"`
}

// SymbolConfig defines one tradable underlying and its strangle parameters.
type SymbolConfig struct {
	Symbol       string  `yaml:"symbol"`
	SecType      string  `yaml:"sec_type"` // STK | FUT | IND
	Venue        string  `yaml:"venue"`
	OptionVenue  string  `yaml:"option_venue"`
	Currency     string  `yaml:"currency"`
	Multiplier   string  `yaml:"multiplier"`
	TradingClass string  `yaml:"trading_class"`
	Quantity     int64   `yaml:"quantity"`
	MinTick      float64 `yaml:"min_tick"`
	PutDistance  float64 `yaml:"put_distance"`  // dollars below reference price
	CallDistance float64 `yaml:"call_distance"` // dollars above reference price
	// MWFExpiries marks symbols whose weekly options list only on Monday,
	// Wednesday and Friday.
	MWFExpiries bool `yaml:"mwf_expiries"`
	// Live marks the symbol eligible for transmitted orders; it only takes
	// effect when environment.mode is live.
	Live bool `yaml:"live"`
}

// StorageConfig defines storage settings for attempt records.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the status HTTP server settings.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Gateway validation
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Gateway.Timeout != "" {
		if _, err := time.ParseDuration(c.Gateway.Timeout); err != nil {
			return fmt.Errorf("gateway.timeout invalid: %w", err)
		}
	}
	if c.Gateway.SettleDelay != "" {
		if _, err := time.ParseDuration(c.Gateway.SettleDelay); err != nil {
			return fmt.Errorf("gateway.settle_delay invalid: %w", err)
		}
	}

	c.normalize()

	// Market data validation
	if c.MarketData.RetryAttempts <= 0 {
		return fmt.Errorf("marketdata.retry_attempts must be > 0")
	}
	if _, err := time.ParseDuration(c.MarketData.RetryInterval); err != nil {
		return fmt.Errorf("marketdata.retry_interval invalid: %w", err)
	}

	// Orders validation
	if _, err := time.ParseDuration(c.Orders.IDTimeout); err != nil {
		return fmt.Errorf("orders.id_timeout invalid: %w", err)
	}
	if c.Orders.StopLossMultiplier <= 0 {
		return fmt.Errorf("orders.stop_loss_multiplier must be > 0")
	}

	// Symbol validation
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for i, sym := range c.Symbols {
		if sym.Symbol == "" {
			return fmt.Errorf("symbols[%d].symbol is required", i)
		}
		if seen[sym.Symbol] {
			return fmt.Errorf("symbols[%d]: duplicate symbol %s", i, sym.Symbol)
		}
		seen[sym.Symbol] = true
		switch sym.SecType {
		case "STK", "FUT", "IND":
		default:
			return fmt.Errorf("symbols[%d].sec_type must be STK, FUT or IND", i)
		}
		if sym.Quantity <= 0 {
			return fmt.Errorf("symbols[%d].quantity must be > 0", i)
		}
		if sym.MinTick <= 0 {
			return fmt.Errorf("symbols[%d].min_tick must be > 0", i)
		}
		if sym.PutDistance <= 0 || sym.CallDistance <= 0 {
			return fmt.Errorf("symbols[%d] strike distances must be > 0", i)
		}
	}

	// Schedule validation
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("schedule.timezone invalid: %w", err)
	}
	for _, group := range []struct {
		name  string
		dates []string
	}{
		{"fomc_dates", c.Schedule.FOMCDates},
		{"cpi_dates", c.Schedule.CPIDates},
		{"holidays", c.Schedule.Holidays},
	} {
		for _, d := range group.dates {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return fmt.Errorf("schedule.%s entry %q invalid: %w", group.name, d, err)
			}
		}
	}

	// Dashboard validation
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when dashboard is enabled")
	}

	return nil
}

// IsPaperTrading returns true if the pipeline stages orders instead of
// transmitting them.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// LiveFor reports whether orders for the symbol should be transmitted. A
// symbol goes live only when both the global mode and its own flag say so.
func (c *Config) LiveFor(sym SymbolConfig) bool {
	return !c.IsPaperTrading() && sym.Live
}

// RetryInterval returns the configured reference price retry interval.
func (c *Config) RetryInterval() time.Duration {
	d, err := time.ParseDuration(c.MarketData.RetryInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// OrderIDTimeout returns the maximum wait for a broker-assigned order id.
func (c *Config) OrderIDTimeout() time.Duration {
	d, err := time.ParseDuration(c.Orders.IDTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GatewayTimeout returns the HTTP timeout for gateway requests.
func (c *Config) GatewayTimeout() time.Duration {
	d, err := time.ParseDuration(c.Gateway.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GatewaySettleDelay returns the snapshot settle wait, or a negative value
// when unset so the client keeps its own default.
func (c *Config) GatewaySettleDelay() time.Duration {
	if c.Gateway.SettleDelay == "" {
		return -1
	}
	d, err := time.ParseDuration(c.Gateway.SettleDelay)
	if err != nil {
		return -1
	}
	return d
}

// Location returns the configured trading calendar timezone.
func (c *Config) Location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// normalize sets default values for optional settings
func (c *Config) normalize() {
	if c.MarketData.RetryAttempts == 0 {
		c.MarketData.RetryAttempts = defaultRetryAttempts
	}
	if c.MarketData.RetryInterval == "" {
		c.MarketData.RetryInterval = defaultRetryInterval
	}
	if c.Orders.IDTimeout == "" {
		c.Orders.IDTimeout = defaultOrderIDTimeout
	}
	if c.Orders.StopLossMultiplier == 0 {
		c.Orders.StopLossMultiplier = defaultStopLossMultiplier
	}
	if c.Orders.StrategyTag == "" {
		c.Orders.StrategyTag = defaultStrategyTag
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/attempts.json"
	}
}
