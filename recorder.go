package triage

import (
	"context"

	"github.com/viant/triage/model"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/telemetry"
)

// Record takes a resolved case from the dispatcher: it updates the
// statistics and the ledger, notifies the surge controller and emits the
// resolution. A durable sink failure is reported but does not undo the
// in-memory record.
func (r *Runtime) Record(ctx context.Context, c *model.Case) {
	err := r.sink.Record(context.WithoutCancel(ctx), c)
	delta := progress.Delta{Recorded: 1}
	if c.Outcome() == model.OutcomeLost {
		delta = progress.Delta{Lost: 1}
	}
	r.ledger.Update(delta)
	r.emitter.Emit(telemetry.NewEvent(telemetry.KindResolved, c.Resolved(), telemetry.CaseContext(c)))
	if err != nil {
		r.emitter.Emit(telemetry.NewEvent(telemetry.KindSinkError, c.Resolved(), telemetry.CaseContext(c)).WithError(err))
	}
	r.surge.Resolved(c)
}
