// Package policy holds the declarative rules the dispatcher applies to a case:
// outcome probabilities, severity distributions, the condition catalogue that
// maps conditions to departments, and the roles staff units play.
//
// Every table is a plain value that can be loaded from YAML or JSON and
// overridden in tests, where probabilities of 0 or 1 make the engine
// deterministic.
package policy
