// Package triage provides a concurrent patient-dispatch and resource
// allocation engine.
//
// Cases enter at reception (walk-ins) or straight into the emergency queue
// (ambulances) and move between stage queues served by bounded staff pools:
//
//   - dispatcher – one worker per staff unit, routing between stages
//   - pool       – bounded resources with scoped holds and surge loans
//   - queue      – FIFO and severity-ordered stage queues
//   - surge      – mass casualty episodes borrowing department capacity
//   - stats      – per-day statistics with pluggable durable sinks
//
// Time is logical: a clock advanced in ticks drives arrivals and service
// durations. End-users interact with the engine via the Service façade
// exposed by the root package:
//
//	srv, _ := triage.New(triage.DefaultConfig())
//	rt := srv.Runtime()
//	err := rt.Run(ctx)
//	day, _ := rt.Snapshot(1)
package triage
