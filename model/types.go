package model

import "fmt"

// Tick is a unit of logical time.
type Tick int64

// Severity ranks how urgent a case is, 1 (least) to 10 (most). Zero means the
// severity has not been assigned yet.
type Severity int

const (
	// SeverityUnassigned marks a case that has not been assessed.
	SeverityUnassigned Severity = 0
	// MinSeverity is the lowest valid severity.
	MinSeverity Severity = 1
	// MaxSeverity is the highest valid severity.
	MaxSeverity Severity = 10
)

// Valid reports whether s lies within [MinSeverity, MaxSeverity].
func (s Severity) Valid() bool {
	return s >= MinSeverity && s <= MaxSeverity
}

// Outcome is the terminal state of a case.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeAlive
	OutcomeDead
	// OutcomeLost is recorded for cases that could not be completed, for
	// example because the engine shut down or a surge was force-ended.
	OutcomeLost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlive:
		return "alive"
	case OutcomeDead:
		return "dead"
	case OutcomeLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Terminal reports whether o is one of the terminal outcomes.
func (o Outcome) Terminal() bool {
	return o == OutcomeAlive || o == OutcomeDead || o == OutcomeLost
}

// Origin tells how a case entered the facility.
type Origin int

const (
	OriginWalkIn Origin = iota
	OriginAmbulance
	OriginSurge
)

func (o Origin) String() string {
	switch o {
	case OriginWalkIn:
		return "walk-in"
	case OriginAmbulance:
		return "ambulance"
	case OriginSurge:
		return "surge"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// Stage is the position of a case in the care pathway.
type Stage string

const (
	StageArrived    Stage = "arrived"
	StageRegistered Stage = "registered"
	StageAssessed   Stage = "assessed"
	StageRoutine    Stage = "routine"
	StageEmergency  Stage = "emergency"
	StageTests      Stage = "tests"
	StageSurgery    Stage = "surgery"
	StageDischarged Stage = "discharged"
	StageDead       Stage = "dead"
	StageLost       Stage = "lost"
)

// StageOf returns the terminal stage matching an outcome.
func StageOf(o Outcome) Stage {
	switch o {
	case OutcomeAlive:
		return StageDischarged
	case OutcomeDead:
		return StageDead
	case OutcomeLost:
		return StageLost
	}
	return ""
}
