package intake

import (
	"github.com/viant/triage/internal/idgen"
	"github.com/viant/triage/model"
	"github.com/viant/triage/policy"
)

// Generator creates new cases. Severity may be left unassigned; the engine
// assigns it from its severity table.
type Generator interface {
	NewCase(arrival model.Tick, origin model.Origin) *model.Case
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(arrival model.Tick, origin model.Origin) *model.Case

func (f GeneratorFunc) NewCase(arrival model.Tick, origin model.Origin) *model.Case {
	return f(arrival, origin)
}

// Catalogue generates cases presenting with conditions from a catalogue.
type Catalogue struct {
	dice      *policy.Dice
	catalogue *policy.Catalogue
}

// NewGenerator creates a catalogue based generator.
func NewGenerator(dice *policy.Dice, catalogue *policy.Catalogue) *Catalogue {
	if catalogue == nil {
		catalogue = policy.DefaultCatalogue()
	}
	return &Catalogue{dice: dice, catalogue: catalogue}
}

// NewCase returns a case with a condition; ambulance cases also get their
// department since they skip assessment.
func (g *Catalogue) NewCase(arrival model.Tick, origin model.Origin) *model.Case {
	c := model.NewCase(idgen.New(), arrival, origin)
	switch origin {
	case model.OriginSurge:
		c.Condition = policy.Pick(g.dice, g.catalogue.Trauma)
	case model.OriginAmbulance:
		c.Condition = policy.Pick(g.dice, g.catalogue.Conditions())
		c.Department = g.catalogue.DepartmentOf(c.Condition)
	default:
		c.Condition = policy.Pick(g.dice, g.catalogue.Conditions())
	}
	return c
}
