package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Provider struct {
		BridgeURL      string `toml:"bridge_url"` // e.g. ws://127.0.0.1:52780/rtd
		DialTimeoutMS  int    `toml:"dial_timeout_ms"`
		WriteTimeoutMS int    `toml:"write_timeout_ms"`
		CallTimeoutMS  int    `toml:"call_timeout_ms"`
	} `toml:"provider"`

	Timing struct {
		InitialHeartbeatMS int `toml:"initial_heartbeat_ms"`
		SteadyHeartbeatMS  int `toml:"steady_heartbeat_ms"`
		UpdateIntervalMS   int `toml:"update_interval_ms"`
		PollYieldMS        int `toml:"poll_yield_ms"`
		SettleDelayMS      int `toml:"settle_delay_ms"`
		RetryAttempts      int `toml:"retry_attempts"`
		RetryDelayMS       int `toml:"retry_delay_ms"`
	} `toml:"timing"`

	// Fields toggles the optional analytics fields subscribed for derivative
	// symbols; gamma and open interest are always on.
	Fields struct {
		Delta  bool `toml:"delta"`
		Vega   bool `toml:"vega"`
		Theta  bool `toml:"theta"`
		Volume bool `toml:"volume"`
	} `toml:"fields"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Provider.DialTimeoutMS <= 0 {
		cfg.Provider.DialTimeoutMS = 5000
	}
	if cfg.Provider.WriteTimeoutMS <= 0 {
		cfg.Provider.WriteTimeoutMS = 2000
	}
	if cfg.Provider.CallTimeoutMS <= 0 {
		cfg.Provider.CallTimeoutMS = 3000
	}
	if cfg.Timing.InitialHeartbeatMS <= 0 {
		cfg.Timing.InitialHeartbeatMS = 5000
	}
	if cfg.Timing.SteadyHeartbeatMS <= 0 {
		cfg.Timing.SteadyHeartbeatMS = 2000
	}
	if cfg.Timing.UpdateIntervalMS <= 0 {
		cfg.Timing.UpdateIntervalMS = 2000
	}
	if cfg.Timing.PollYieldMS <= 0 {
		cfg.Timing.PollYieldMS = 200
	}
	if cfg.Timing.SettleDelayMS <= 0 {
		cfg.Timing.SettleDelayMS = 300
	}
	if cfg.Timing.RetryAttempts <= 0 {
		cfg.Timing.RetryAttempts = 3
	}
	if cfg.Timing.RetryDelayMS <= 0 {
		cfg.Timing.RetryDelayMS = 100
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}
	if strings.TrimSpace(cfg.Provider.BridgeURL) == "" {
		return errors.New("provider.bridge_url is empty")
	}
	if !strings.HasPrefix(cfg.Provider.BridgeURL, "ws://") && !strings.HasPrefix(cfg.Provider.BridgeURL, "wss://") {
		return fmt.Errorf("provider.bridge_url must be a ws:// or wss:// endpoint, got %q", cfg.Provider.BridgeURL)
	}
	if cfg.Timing.SteadyHeartbeatMS > cfg.Timing.InitialHeartbeatMS {
		return errors.New("timing.steady_heartbeat_ms must not exceed timing.initial_heartbeat_ms")
	}
	return nil
}

// normalizeSymbols uppercases, trims and deduplicates while keeping order.
// Derivative markers ('.') and futures roots ('/') survive uppercasing.
func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Duration helpers so wiring code does not repeat the ms conversion.

func (c *Config) DialTimeout() time.Duration  { return ms(c.Provider.DialTimeoutMS) }
func (c *Config) WriteTimeout() time.Duration { return ms(c.Provider.WriteTimeoutMS) }
func (c *Config) CallTimeout() time.Duration  { return ms(c.Provider.CallTimeoutMS) }

func (c *Config) InitialHeartbeat() time.Duration { return ms(c.Timing.InitialHeartbeatMS) }
func (c *Config) SteadyHeartbeat() time.Duration  { return ms(c.Timing.SteadyHeartbeatMS) }
func (c *Config) UpdateInterval() time.Duration   { return ms(c.Timing.UpdateIntervalMS) }
func (c *Config) PollYield() time.Duration        { return ms(c.Timing.PollYieldMS) }
func (c *Config) SettleDelay() time.Duration      { return ms(c.Timing.SettleDelayMS) }
func (c *Config) RetryDelay() time.Duration       { return ms(c.Timing.RetryDelayMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
