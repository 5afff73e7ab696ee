// Package config holds the tunable knobs of the reconciliation engine.
//
// Values come from three layers, lowest priority first: built-in defaults,
// an optional YAML file, then environment variables. A fourth layer, the
// per-call Override, is merged by callers of the engine for one request only.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Weights are the sub-score weights of the scorer. They must sum to 1.
type Weights struct {
	Amount    float64 `yaml:"amount" json:"amount"`
	Date      float64 `yaml:"date" json:"date"`
	Reference float64 `yaml:"reference" json:"reference"`
}

// Config is the full set of engine tunables.
type Config struct {
	// AutoThreshold is the minimum confidence (inclusive) for an
	// unattended match.
	AutoThreshold int `yaml:"auto_threshold" json:"auto_threshold"`
	// SuggestThreshold is the minimum confidence (inclusive) to surface a
	// candidate for human approval.
	SuggestThreshold int `yaml:"suggest_threshold" json:"suggest_threshold"`
	// AmountTolerancePct is the relative amount tolerance (0.005 = 0.5%).
	AmountTolerancePct float64 `yaml:"amount_tolerance_pct" json:"amount_tolerance_pct"`
	// AmountToleranceMin is the absolute floor of the amount tolerance.
	AmountToleranceMin float64 `yaml:"amount_tolerance_min" json:"amount_tolerance_min"`
	// DateWindowDays is the candidate eligibility window around the
	// transaction date, inclusive at the boundary.
	DateWindowDays int `yaml:"date_window_days" json:"date_window_days"`

	Weights Weights `yaml:"weights" json:"weights"`
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		AutoThreshold:      90,
		SuggestThreshold:   50,
		AmountTolerancePct: 0.005,
		AmountToleranceMin: 0.01,
		DateWindowDays:     5,
		Weights: Weights{
			Amount:    0.5,
			Date:      0.3,
			Reference: 0.2,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv applies RECON_* environment variables on top of cfg.
func FromEnv(cfg Config) Config {
	if v, ok := envInt("RECON_AUTO_THRESHOLD"); ok {
		cfg.AutoThreshold = v
	}
	if v, ok := envInt("RECON_SUGGEST_THRESHOLD"); ok {
		cfg.SuggestThreshold = v
	}
	if v, ok := envInt("RECON_DATE_WINDOW_DAYS"); ok {
		cfg.DateWindowDays = v
	}
	if v, ok := envFloat("RECON_AMOUNT_TOLERANCE_PCT"); ok {
		cfg.AmountTolerancePct = v
	}
	if v, ok := envFloat("RECON_AMOUNT_TOLERANCE_MIN"); ok {
		cfg.AmountToleranceMin = v
	}
	return cfg
}

// Override carries per-call tunable overrides. Nil fields keep the
// configured value.
type Override struct {
	AutoThreshold      *int     `json:"auto_threshold,omitempty"`
	SuggestThreshold   *int     `json:"suggest_threshold,omitempty"`
	AmountTolerancePct *float64 `json:"amount_tolerance_pct,omitempty"`
	AmountToleranceMin *float64 `json:"amount_tolerance_min,omitempty"`
	DateWindowDays     *int     `json:"date_window_days,omitempty"`
}

// Apply merges an override into a copy of cfg. A nil override is a no-op.
func (c Config) Apply(o *Override) Config {
	if o == nil {
		return c
	}
	if o.AutoThreshold != nil {
		c.AutoThreshold = *o.AutoThreshold
	}
	if o.SuggestThreshold != nil {
		c.SuggestThreshold = *o.SuggestThreshold
	}
	if o.AmountTolerancePct != nil {
		c.AmountTolerancePct = *o.AmountTolerancePct
	}
	if o.AmountToleranceMin != nil {
		c.AmountToleranceMin = *o.AmountToleranceMin
	}
	if o.DateWindowDays != nil {
		c.DateWindowDays = *o.DateWindowDays
	}
	return c
}

// Validate checks internal consistency.
func (c Config) Validate() error {
	if c.AutoThreshold < 0 || c.AutoThreshold > 100 {
		return fmt.Errorf("auto_threshold %d out of range [0,100]", c.AutoThreshold)
	}
	if c.SuggestThreshold < 0 || c.SuggestThreshold > 100 {
		return fmt.Errorf("suggest_threshold %d out of range [0,100]", c.SuggestThreshold)
	}
	if c.SuggestThreshold > c.AutoThreshold {
		return fmt.Errorf("suggest_threshold %d exceeds auto_threshold %d",
			c.SuggestThreshold, c.AutoThreshold)
	}
	if c.AmountTolerancePct < 0 || c.AmountToleranceMin < 0 {
		return fmt.Errorf("amount tolerance must be non-negative")
	}
	if c.DateWindowDays < 0 {
		return fmt.Errorf("date_window_days must be non-negative")
	}
	sum := c.Weights.Amount + c.Weights.Date + c.Weights.Reference
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("score weights must sum to 1, got %.3f", sum)
	}
	return nil
}

// AmountTolerance returns the absolute tolerance for a transaction amount:
// max(AmountToleranceMin, AmountTolerancePct * |amount|).
func (c Config) AmountTolerance(amount decimal.Decimal) decimal.Decimal {
	pct := amount.Abs().Mul(decimal.NewFromFloat(c.AmountTolerancePct))
	min := decimal.NewFromFloat(c.AmountToleranceMin)
	if pct.GreaterThan(min) {
		return pct
	}
	return min
}

func envInt(key string) (int, bool) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func envFloat(key string) (float64, bool) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
