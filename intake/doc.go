// Package intake creates cases and feeds them into the facility at a per-day
// rate on the logical clock.
package intake
