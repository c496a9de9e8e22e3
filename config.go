package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/triage/policy"
	"github.com/viant/triage/service/dispatcher"
	"github.com/viant/triage/service/surge"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON or YAML; fields left out keep their DefaultConfig
// values when loaded with LoadConfig.
type Config struct {
	Clock     ClockConfig          `json:"clock" yaml:"clock"`
	Dispatch  dispatcher.Config    `json:"dispatch" yaml:"dispatch"`
	Staff     StaffConfig          `json:"staff" yaml:"staff"`
	Arrivals  ArrivalsConfig       `json:"arrivals" yaml:"arrivals"`
	Surge     surge.Config         `json:"surge" yaml:"surge"`
	Table     policy.Table         `json:"table" yaml:"table"`
	Severity  policy.SeverityTable `json:"severity" yaml:"severity"`
	Catalogue *policy.Catalogue    `json:"catalogue,omitempty" yaml:"catalogue,omitempty"`
	// Seed makes a run reproducible for a fixed interleaving.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// ClockConfig controls logical time.
type ClockConfig struct {
	TicksPerDay int `json:"ticksPerDay" yaml:"ticksPerDay"`
	// TickInterval is the wall time per tick; zero leaves advancing the clock
	// to the caller.
	TickInterval time.Duration `json:"tickInterval" yaml:"tickInterval"`
	// Days is the length of a run.
	Days int `json:"days" yaml:"days"`
	// Grace is how long Run waits after the last day for cases in flight
	// before shutting down.
	Grace int `json:"grace" yaml:"grace"`
}

// Stage sizes a staff group.
type Stage struct {
	Capacity     int `json:"capacity" yaml:"capacity"`
	ServiceTicks int `json:"serviceTicks" yaml:"serviceTicks"`
}

// StaffConfig sizes every staff group.
type StaffConfig struct {
	Reception  Stage `json:"reception" yaml:"reception"`
	Assessment Stage `json:"assessment" yaml:"assessment"`
	Emergency  Stage `json:"emergency" yaml:"emergency"`
	// Resuscitation capacity of zero lets a code blue proceed without a team.
	Resuscitation Stage `json:"resuscitation" yaml:"resuscitation"`
	Lab           Stage `json:"lab" yaml:"lab"`
	Imaging       Stage `json:"imaging" yaml:"imaging"`
	Surgery       Stage `json:"surgery" yaml:"surgery"`
	// Department sizes every routine department.
	Department Stage `json:"department" yaml:"department"`
}

// ArrivalsConfig sets the daily arrival rates.
type ArrivalsConfig struct {
	WalkInsPerDay    float64 `json:"walkInsPerDay" yaml:"walkInsPerDay"`
	AmbulancesPerDay float64 `json:"ambulancesPerDay" yaml:"ambulancesPerDay"`
}

// DefaultConfig returns the reference hospital: a week of 100 walk-ins and 50
// ambulances a day with a mass casualty surge on a random day.
func DefaultConfig() *Config {
	return &Config{
		Clock: ClockConfig{
			TicksPerDay:  1440,
			TickInterval: time.Millisecond,
			Days:         7,
			Grace:        240,
		},
		Dispatch: dispatcher.DefaultConfig(),
		Staff: StaffConfig{
			Reception:     Stage{Capacity: 5, ServiceTicks: 2},
			Assessment:    Stage{Capacity: 5, ServiceTicks: 5},
			Emergency:     Stage{Capacity: 60, ServiceTicks: 30},
			Resuscitation: Stage{Capacity: 1},
			Lab:           Stage{Capacity: 3, ServiceTicks: 20},
			Imaging:       Stage{Capacity: 2, ServiceTicks: 15},
			Surgery:       Stage{Capacity: 5, ServiceTicks: 60},
			Department:    Stage{Capacity: 8, ServiceTicks: 20},
		},
		Arrivals: ArrivalsConfig{
			WalkInsPerDay:    100,
			AmbulancesPerDay: 50,
		},
		Surge:    surge.DefaultConfig(),
		Table:    policy.DefaultTable(),
		Severity: policy.DefaultSeverityTable(),
		Seed:     1,
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config was nil")
	}
	var errs []error
	if c.Clock.TicksPerDay <= 0 {
		errs = append(errs, fmt.Errorf("clock.ticksPerDay must be > 0"))
	}
	if c.Clock.Days <= 0 {
		errs = append(errs, fmt.Errorf("clock.days must be > 0"))
	}
	if c.Clock.TickInterval < 0 || c.Clock.Grace < 0 {
		errs = append(errs, fmt.Errorf("clock.tickInterval and clock.grace must not be negative"))
	}
	if c.Dispatch.AcquireTimeout <= 0 || c.Dispatch.DequeueTimeout <= 0 || c.Dispatch.ResuscitationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch timeouts must be > 0"))
	}
	for name, stage := range map[string]Stage{
		"reception":  c.Staff.Reception,
		"assessment": c.Staff.Assessment,
		"emergency":  c.Staff.Emergency,
		"lab":        c.Staff.Lab,
		"imaging":    c.Staff.Imaging,
		"surgery":    c.Staff.Surgery,
		"department": c.Staff.Department,
	} {
		if stage.Capacity <= 0 {
			errs = append(errs, fmt.Errorf("staff.%s.capacity must be > 0", name))
		}
		if stage.ServiceTicks < 0 {
			errs = append(errs, fmt.Errorf("staff.%s.serviceTicks must not be negative", name))
		}
	}
	if c.Staff.Resuscitation.Capacity < 0 {
		errs = append(errs, fmt.Errorf("staff.resuscitation.capacity must not be negative"))
	}
	if c.Arrivals.WalkInsPerDay < 0 || c.Arrivals.AmbulancesPerDay < 0 {
		errs = append(errs, fmt.Errorf("arrival rates must not be negative"))
	}
	if err := c.Surge.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("surge: %w", err))
	}
	if err := c.Table.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("table: %w", err))
	}
	if err := c.Severity.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("severity: %w", err))
	}
	if c.Catalogue != nil {
		if err := c.Catalogue.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("catalogue: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig decodes a YAML (or JSON) document at URL over DefaultConfig.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download config %v: %w", URL, err)
	}
	return DecodeConfig(data)
}

// DecodeConfig decodes a YAML (or JSON) document over DefaultConfig and
// validates the result.
func DecodeConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
