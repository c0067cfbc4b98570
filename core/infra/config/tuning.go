package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Queues names the well-known subjects shared with the worker side.
type Queues struct {
	Work   string `yaml:"work"`
	Result string `yaml:"result"`
}

// CacheTuning controls correlation-entry lifetime and sweep cadence.
type CacheTuning struct {
	TTLSeconds           int64 `yaml:"ttl_seconds"`
	SweepIntervalSeconds int64 `yaml:"sweep_interval_seconds"`
}

// DeliveryTuning bounds result delivery retries.
type DeliveryTuning struct {
	MaxAttempts int   `yaml:"max_attempts"`
	BaseDelayMs int64 `yaml:"base_delay_ms"`
	MaxDelayMs  int64 `yaml:"max_delay_ms"`
}

// CreditTuning sets admission costs.
type CreditTuning struct {
	QueryCost      int64 `yaml:"query_cost"`
	InitialBalance int64 `yaml:"initial_balance"`
}

// PollTuning governs the synchronous status-poll completion path.
type PollTuning struct {
	IntervalSeconds int64 `yaml:"interval_seconds"`
	MaxAttempts     int   `yaml:"max_attempts"`
	Workers         int   `yaml:"workers"`
}

// Tuning is the operator-editable tuning file for the relay.
type Tuning struct {
	Queues   Queues         `yaml:"queues"`
	Cache    CacheTuning    `yaml:"cache"`
	Delivery DeliveryTuning `yaml:"delivery"`
	Credit   CreditTuning   `yaml:"credit"`
	Poll     PollTuning     `yaml:"poll"`
}

// DefaultTuning returns the built-in tuning values.
func DefaultTuning() *Tuning {
	return &Tuning{
		Queues:   Queues{Work: "relay.work", Result: "relay.results"},
		Cache:    CacheTuning{TTLSeconds: 3600, SweepIntervalSeconds: 1800},
		Delivery: DeliveryTuning{MaxAttempts: 3, BaseDelayMs: 500, MaxDelayMs: 5000},
		Credit:   CreditTuning{QueryCost: 1, InitialBalance: 0},
		Poll:     PollTuning{IntervalSeconds: 10, MaxAttempts: 30, Workers: 10},
	}
}

// ParseTuning parses tuning data from YAML bytes, filling gaps with defaults.
func ParseTuning(data []byte) (*Tuning, error) {
	if len(data) == 0 {
		return DefaultTuning(), nil
	}
	if err := validateTuningYAML(data); err != nil {
		return nil, err
	}
	cfg := DefaultTuning()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse tuning config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTuning reads a YAML tuning file; an empty path yields defaults.
func LoadTuning(path string) (*Tuning, error) {
	if path == "" {
		return DefaultTuning(), nil
	}
	// #nosec G304 -- tuning config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultTuning(), fmt.Errorf("read tuning config %s: %w", path, err)
	}
	cfg, err := ParseTuning(data)
	if err != nil {
		return nil, fmt.Errorf("load tuning config %s: %w", path, err)
	}
	return cfg, nil
}

func (t *Tuning) validate() error {
	if t.Queues.Work == "" || t.Queues.Result == "" {
		return fmt.Errorf("tuning config: queue names must not be empty")
	}
	if t.Queues.Work == t.Queues.Result {
		return fmt.Errorf("tuning config: work and result queues must differ")
	}
	if t.Cache.TTLSeconds <= 0 || t.Cache.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("tuning config: cache ttl and sweep interval must be positive")
	}
	if t.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("tuning config: delivery max_attempts must be positive")
	}
	if t.Credit.QueryCost <= 0 {
		return fmt.Errorf("tuning config: credit query_cost must be positive")
	}
	if t.Poll.IntervalSeconds <= 0 || t.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("tuning config: poll interval and max_attempts must be positive")
	}
	return nil
}

// CacheTTL returns the correlation entry lifetime.
func (t *Tuning) CacheTTL() time.Duration {
	return time.Duration(t.Cache.TTLSeconds) * time.Second
}

// SweepInterval returns the cache sweep cadence.
func (t *Tuning) SweepInterval() time.Duration {
	return time.Duration(t.Cache.SweepIntervalSeconds) * time.Second
}

// DeliveryBaseDelay returns the first retry delay.
func (t *Tuning) DeliveryBaseDelay() time.Duration {
	return time.Duration(t.Delivery.BaseDelayMs) * time.Millisecond
}

// DeliveryMaxDelay returns the retry delay ceiling.
func (t *Tuning) DeliveryMaxDelay() time.Duration {
	return time.Duration(t.Delivery.MaxDelayMs) * time.Millisecond
}

// PollInterval returns the status-poll cadence.
func (t *Tuning) PollInterval() time.Duration {
	return time.Duration(t.Poll.IntervalSeconds) * time.Second
}
