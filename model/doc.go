// Package model contains the in-memory representation of a patient case as it
// moves through the facility: its severity, the stage it currently occupies,
// the procedures it received and its terminal outcome.
//
// Time inside the engine is logical. A Tick is a unit of simulated time and a
// day is a configurable number of ticks; nothing in this package reads the
// wall clock.
package model
