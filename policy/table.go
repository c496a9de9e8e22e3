package policy

import (
	"errors"
	"fmt"

	"github.com/viant/triage/model"
)

// Table holds the outcome probabilities used by the service logic.
type Table struct {
	// EmergencyThreshold is the lowest severity routed to the emergency queue.
	EmergencyThreshold model.Severity `json:"emergencyThreshold" yaml:"emergencyThreshold"`
	// CriticalSeverity is the lowest severity exposed to CriticalMortality.
	CriticalSeverity model.Severity `json:"criticalSeverity" yaml:"criticalSeverity"`

	Tests          float64 `json:"tests" yaml:"tests"`
	BloodWorkOnly  float64 `json:"bloodWorkOnly" yaml:"bloodWorkOnly"`
	XRayOnly       float64 `json:"xrayOnly" yaml:"xrayOnly"`
	RoutineSurgery float64 `json:"routineSurgery" yaml:"routineSurgery"`

	EmergencySurgery  float64 `json:"emergencySurgery" yaml:"emergencySurgery"`
	CriticalMortality float64 `json:"criticalMortality" yaml:"criticalMortality"`
	CodeBlue          float64 `json:"codeBlue" yaml:"codeBlue"`
	CodeBlueSurvival  float64 `json:"codeBlueSurvival" yaml:"codeBlueSurvival"`

	SurgeryMortality            float64 `json:"surgeryMortality" yaml:"surgeryMortality"`
	SurgeActiveSurgeryMortality float64 `json:"surgeActiveSurgeryMortality" yaml:"surgeActiveSurgeryMortality"`
	SurgeCaseSurgeryMortality   float64 `json:"surgeCaseSurgeryMortality" yaml:"surgeCaseSurgeryMortality"`
	SurgeSurgery                float64 `json:"surgeSurgery" yaml:"surgeSurgery"`
	SurgeMortality              float64 `json:"surgeMortality" yaml:"surgeMortality"`
}

// DefaultTable returns the probabilities observed in the reference facility.
func DefaultTable() Table {
	return Table{
		EmergencyThreshold:          8,
		CriticalSeverity:            7,
		Tests:                       0.5,
		BloodWorkOnly:               0.35,
		XRayOnly:                    0.35,
		RoutineSurgery:              0.3,
		EmergencySurgery:            0.3,
		CriticalMortality:           0.25,
		CodeBlue:                    0.15,
		CodeBlueSurvival:            0.2,
		SurgeryMortality:            0.25,
		SurgeActiveSurgeryMortality: 0.4,
		SurgeCaseSurgeryMortality:   0.5,
		SurgeSurgery:                0.5,
		SurgeMortality:              0.3,
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (t *Table) Validate() error {
	var errs []error
	if !t.EmergencyThreshold.Valid() {
		errs = append(errs, fmt.Errorf("emergencyThreshold must be in [1,10], was %d", t.EmergencyThreshold))
	}
	if !t.CriticalSeverity.Valid() {
		errs = append(errs, fmt.Errorf("criticalSeverity must be in [1,10], was %d", t.CriticalSeverity))
	}
	for name, p := range map[string]float64{
		"tests":                       t.Tests,
		"bloodWorkOnly":               t.BloodWorkOnly,
		"xrayOnly":                    t.XRayOnly,
		"routineSurgery":              t.RoutineSurgery,
		"emergencySurgery":            t.EmergencySurgery,
		"criticalMortality":           t.CriticalMortality,
		"codeBlue":                    t.CodeBlue,
		"codeBlueSurvival":            t.CodeBlueSurvival,
		"surgeryMortality":            t.SurgeryMortality,
		"surgeActiveSurgeryMortality": t.SurgeActiveSurgeryMortality,
		"surgeCaseSurgeryMortality":   t.SurgeCaseSurgeryMortality,
		"surgeSurgery":                t.SurgeSurgery,
		"surgeMortality":              t.SurgeMortality,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], was %v", name, p))
		}
	}
	if t.BloodWorkOnly+t.XRayOnly > 1 {
		errs = append(errs, fmt.Errorf("bloodWorkOnly + xrayOnly must not exceed 1"))
	}
	return errors.Join(errs...)
}

// SurgeryMortalityFor returns the surgery mortality for a case.
func (t *Table) SurgeryMortalityFor(c *model.Case, surgeActive bool) float64 {
	switch {
	case c.Surge():
		return t.SurgeCaseSurgeryMortality
	case surgeActive:
		return t.SurgeActiveSurgeryMortality
	}
	return t.SurgeryMortality
}

// SeverityRange draws severities uniformly from [Min, Max].
type SeverityRange struct {
	Min model.Severity `json:"min" yaml:"min"`
	Max model.Severity `json:"max" yaml:"max"`
}

// Validate checks the bounds.
func (r SeverityRange) Validate() error {
	if !r.Min.Valid() || !r.Max.Valid() || r.Min > r.Max {
		return fmt.Errorf("invalid severity range [%d,%d]", r.Min, r.Max)
	}
	return nil
}

// Draw returns a severity within the range.
func (r SeverityRange) Draw(d *Dice) model.Severity {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + model.Severity(d.IntN(int(r.Max-r.Min)+1))
}

// SeverityTable selects the severity range for a case.
type SeverityTable struct {
	Routine   SeverityRange `json:"routine" yaml:"routine"`
	Ambulance SeverityRange `json:"ambulance" yaml:"ambulance"`
	Surge     SeverityRange `json:"surge" yaml:"surge"`
	// DuringSurge applies to walk-ins arriving while a surge is active.
	DuringSurge SeverityRange `json:"duringSurge" yaml:"duringSurge"`
}

// DefaultSeverityTable returns the reference severity ranges.
func DefaultSeverityTable() SeverityTable {
	return SeverityTable{
		Routine:     SeverityRange{Min: 1, Max: 10},
		Ambulance:   SeverityRange{Min: 7, Max: 10},
		Surge:       SeverityRange{Min: 8, Max: 10},
		DuringSurge: SeverityRange{Min: 1, Max: 8},
	}
}

// Validate returns aggregated error describing invalid ranges or nil.
func (t SeverityTable) Validate() error {
	var errs []error
	for name, r := range map[string]SeverityRange{
		"routine": t.Routine, "ambulance": t.Ambulance, "surge": t.Surge, "duringSurge": t.DuringSurge,
	} {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Draw returns a severity for a case of the given origin.
func (t SeverityTable) Draw(d *Dice, origin model.Origin, surgeActive bool) model.Severity {
	switch {
	case origin == model.OriginSurge:
		return t.Surge.Draw(d)
	case origin == model.OriginAmbulance:
		return t.Ambulance.Draw(d)
	case surgeActive:
		return t.DuringSurge.Draw(d)
	}
	return t.Routine.Draw(d)
}
