// Package daemon holds the process configuration. Everything tunable —
// endpoint addresses, reward tables, cooldowns, backoff — comes from a
// TOML file loaded once at startup and treated as immutable afterwards.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yuna-network/yuna/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config is the full daemon configuration (~/.yuna/config.toml).
type Config struct {
	API      APIConfig      `toml:"api"`
	Store    StoreConfig    `toml:"store"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Economy  EconomyConfig  `toml:"economy"`
}

// APIConfig configures the HTTP surface the command layer talks to.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig configures account persistence.
type StoreConfig struct {
	Path string `toml:"path"`
}

// DispatchConfig configures the generation endpoints and failover knobs.
// Duration fields are strings like "90s" or "10m".
type DispatchConfig struct {
	Endpoints      []string `toml:"endpoints"`
	AttemptTimeout string   `toml:"attempt_timeout"`
	DownThreshold  int      `toml:"down_threshold"`
	BackoffBase    string   `toml:"backoff_base"`
	BackoffCap     string   `toml:"backoff_cap"`
}

// EconomyConfig carries the reward tables and gating periods.
type EconomyConfig struct {
	DailyMoney         int64                        `toml:"daily_money"`
	DailyExp           int64                        `toml:"daily_exp"`
	DailyCooldown      string                       `toml:"daily_cooldown"`
	MessageExpMin      int64                        `toml:"message_exp_min"`
	MessageExpMax      int64                        `toml:"message_exp_max"`
	MessageExpInterval string                       `toml:"message_exp_interval"`
	GenerationCost     int64                        `toml:"generation_cost"`
	GameRewards        map[string]domain.GameReward `toml:"game_rewards"`
}

// DefaultConfig returns the defaults the bot shipped with.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8742,
			Metrics: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(homeDir(), ".yuna", "accounts.db"),
		},
		Dispatch: DispatchConfig{
			Endpoints:      []string{"http://127.0.0.1:7860"},
			AttemptTimeout: "2m",
			DownThreshold:  3,
			BackoffBase:    "30s",
			BackoffCap:     "10m",
		},
		Economy: EconomyConfig{
			DailyMoney:         500,
			DailyExp:           1000,
			DailyCooldown:      "24h",
			MessageExpMin:      5,
			MessageExpMax:      15,
			MessageExpInterval: "60s",
			GenerationCost:     100,
			GameRewards: map[string]domain.GameReward{
				"easy":   {Exp: 100, Money: 50},
				"medium": {Exp: 250, Money: 125},
				"hard":   {Exp: 500, Money: 250},
			},
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".yuna", "config.toml")
}

// Load reads a config file over the defaults. A missing file is not an
// error — the defaults stand.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Dispatch.Endpoints) == 0 {
		return cfg, fmt.Errorf("config %s: at least one dispatch endpoint is required", path)
	}
	return cfg, nil
}

// Write writes cfg to path, creating parent directories.
func Write(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// ─── Duration Parsing ───────────────────────────────────────────────────────

// ParseDuration parses a duration string, falling back to def when the
// string is empty or invalid.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
