package surge

import (
	"errors"
	"fmt"
	"math"

	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
)

// Config represents surge configuration
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TriggerDay is the day the episode starts; a negative value picks a
	// random day after the first one.
	TriggerDay int `json:"triggerDay" yaml:"triggerDay"`
	// TriggerOffset is the tick within the trigger day.
	TriggerOffset int `json:"triggerOffset" yaml:"triggerOffset"`

	// Total is the number of injected cases.
	Total int `json:"total" yaml:"total"`
	// BatchSize cases are injected every BatchInterval ticks.
	BatchSize     int `json:"batchSize" yaml:"batchSize"`
	BatchInterval int `json:"batchInterval" yaml:"batchInterval"`
	// MaxDuration ends the episode that many ticks after it began even when
	// the surge queue has not drained; zero leaves it unbounded.
	MaxDuration int `json:"maxDuration" yaml:"maxDuration"`

	// LendFraction of every lender pool is borrowed for surge work.
	LendFraction float64 `json:"lendFraction" yaml:"lendFraction"`
	// ServiceTicks is the time a borrowed unit spends on one case.
	ServiceTicks int `json:"serviceTicks" yaml:"serviceTicks"`

	// ArrivalFactor scales walk-in arrivals while a surge is active.
	ArrivalFactor float64 `json:"arrivalFactor" yaml:"arrivalFactor"`
	// AmbulanceFactor scales ambulance arrivals while a surge is active.
	AmbulanceFactor float64 `json:"ambulanceFactor" yaml:"ambulanceFactor"`
}

// DefaultConfig returns the default surge configuration
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		TriggerDay:      -1,
		Total:           150,
		BatchSize:       5,
		BatchInterval:   1,
		MaxDuration:     240,
		LendFraction:    0.3,
		ServiceTicks:    1,
		ArrivalFactor:   0.5,
		AmbulanceFactor: 2,
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	var errs []error
	if c.Total < 0 {
		errs = append(errs, fmt.Errorf("total must not be negative, was %d", c.Total))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batchSize must be positive, was %d", c.BatchSize))
	}
	if c.BatchInterval < 0 || c.MaxDuration < 0 || c.TriggerOffset < 0 || c.ServiceTicks < 0 {
		errs = append(errs, fmt.Errorf("batchInterval, maxDuration, triggerOffset and serviceTicks must not be negative"))
	}
	if c.LendFraction < 0 || c.LendFraction > 1 {
		errs = append(errs, fmt.Errorf("lendFraction must be in [0,1], was %v", c.LendFraction))
	}
	if c.ArrivalFactor < 0 || c.AmbulanceFactor < 0 {
		errs = append(errs, fmt.Errorf("arrival factors must not be negative"))
	}
	return errors.Join(errs...)
}

// Trigger returns the tick the episode starts at. days is the length of the
// run; a random trigger day falls in [1, days).
func (c *Config) Trigger(ticksPerDay model.Tick, days int, dice *policy.Dice) model.Tick {
	day := c.TriggerDay
	if day < 0 {
		day = 1
		if days > 2 {
			day += dice.IntN(days - 1)
		}
	}
	offset := model.Tick(c.TriggerOffset)
	if offset >= ticksPerDay {
		offset = ticksPerDay - 1
	}
	return model.Tick(day)*ticksPerDay + offset
}

// Lend returns how many of capacity units a pool lends: the configured
// fraction rounded up, at least one unit when the pool has any.
func (c *Config) Lend(capacity int) int {
	if capacity <= 0 || c.LendFraction <= 0 {
		return 0
	}
	// round first so 10*0.3 does not become 4
	n := int(math.Ceil(math.Round(float64(capacity)*c.LendFraction*1e6) / 1e6))
	return max(1, min(n, capacity))
}
