// Package telemetry defines the structured events the engine emits while
// cases move through it. The engine never writes logs itself; it hands
// events to listeners registered on an Emitter, which may log, publish or
// count them.
package telemetry
