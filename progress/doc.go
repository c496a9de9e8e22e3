// Package progress keeps the case-flow ledger of a running engine: how many
// cases were created, how many reached a recorded outcome, how many were lost
// and how many are still in flight.
package progress
