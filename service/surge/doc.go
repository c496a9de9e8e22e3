// Package surge runs mass casualty episodes. An episode borrows a fraction of
// every lender pool, serves a burst of injected high severity cases with the
// borrowed units and returns exactly the borrowed capacity when it ends.
package surge
