package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Market declares one supported instrument and the aliases that resolve to it.
type Market struct {
	Symbol  string   `yaml:"symbol"`
	Class   string   `yaml:"class"` // perp | event | defi
	Aliases []string `yaml:"aliases,omitempty"`
}

type Sizing struct {
	DefaultLeverage float64 `yaml:"default_leverage"` // 1
	DefaultRiskPct  float64 `yaml:"default_risk_pct"` // 3
	MaxLeverage     float64 `yaml:"max_leverage"`     // 20
}

type HighRisk struct {
	LeverageThreshold float64 `yaml:"leverage_threshold"` // leverage at/above this needs confirmation
	RiskCeilingPct    float64 `yaml:"risk_ceiling_pct"`   // per-trade risk ceiling
}

type Conversation struct {
	ClarifyRetryCap    int `yaml:"clarify_retry_cap"`    // re-prompts before giving up
	ClarifyWindowSecs  int `yaml:"clarify_window_secs"`  // limiter refill window
	DedupeWindowSecs   int `yaml:"dedupe_window_seconds"`
}

type Execution struct {
	SettleDelayMs    int  `yaml:"settle_delay_ms"`
	AutoRetryBlocked bool `yaml:"auto_retry_blocked"` // re-queue blocked drafts on funding
}

type Ledger struct {
	SQLitePath string `yaml:"sqlite_path"` // empty = in-memory
}

type Account struct {
	ValueUSD float64 `yaml:"value_usd"`
}

type Root struct {
	Markets      []Market     `yaml:"markets"`
	Sizing       Sizing       `yaml:"sizing"`
	HighRisk     HighRisk     `yaml:"high_risk"`
	Conversation Conversation `yaml:"conversation"`
	Execution    Execution    `yaml:"execution"`
	Ledger       Ledger       `yaml:"ledger"`
	Account      Account      `yaml:"account"`
}

// Load reads a yaml config, or returns defaults when path is empty.
func Load(path string) (Root, error) {
	var c Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, err
		}
	}

	if len(c.Markets) == 0 {
		c.Markets = DefaultMarkets()
	}
	if c.Sizing.DefaultLeverage == 0 {
		c.Sizing.DefaultLeverage = 1
	}
	if c.Sizing.DefaultRiskPct == 0 {
		c.Sizing.DefaultRiskPct = 3
	}
	if c.Sizing.MaxLeverage == 0 {
		c.Sizing.MaxLeverage = 20
	}
	if c.HighRisk.LeverageThreshold == 0 {
		c.HighRisk.LeverageThreshold = 10
	}
	if c.HighRisk.RiskCeilingPct == 0 {
		c.HighRisk.RiskCeilingPct = 10
	}
	if c.Conversation.ClarifyRetryCap == 0 {
		c.Conversation.ClarifyRetryCap = 3
	}
	if c.Conversation.ClarifyWindowSecs == 0 {
		c.Conversation.ClarifyWindowSecs = 60
	}
	if c.Conversation.DedupeWindowSecs == 0 {
		c.Conversation.DedupeWindowSecs = 90
	}
	if c.Execution.SettleDelayMs == 0 {
		c.Execution.SettleDelayMs = 1500
	}
	if c.Account.ValueUSD == 0 {
		c.Account.ValueUSD = 10000
	}

	return c, nil
}

// DefaultMarkets is the built-in supported set.
func DefaultMarkets() []Market {
	return []Market{
		{Symbol: "BTC", Class: "perp", Aliases: []string{"bitcoin", "btc", "xbt"}},
		{Symbol: "ETH", Class: "perp", Aliases: []string{"ethereum", "ether", "eth"}},
		{Symbol: "SOL", Class: "perp", Aliases: []string{"solana", "sol"}},
		{Symbol: "DOGE", Class: "perp", Aliases: []string{"dogecoin", "doge"}},
		{Symbol: "XRP", Class: "perp", Aliases: []string{"ripple", "xrp"}},
		{Symbol: "AVAX", Class: "perp", Aliases: []string{"avalanche", "avax"}},
		{Symbol: "FED25BPS", Class: "event", Aliases: []string{"fed cut", "rate cut"}},
		{Symbol: "AAVE-USDC", Class: "defi", Aliases: []string{"aave usdc", "usdc lending"}},
	}
}
