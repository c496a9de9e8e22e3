package intake

import (
	"context"
	"errors"

	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/model"
)

// AdmitFunc hands a new case to the facility.
type AdmitFunc func(ctx context.Context, c *model.Case)

// FactorFunc scales the arrival rate, for example during a surge.
type FactorFunc func(origin model.Origin) float64

// Feeder admits cases of one origin at a fixed daily rate.
type Feeder struct {
	Origin model.Origin
	// PerDay is the mean number of arrivals per day.
	PerDay float64
	// Days stops the feeder once the clock reaches that day; zero runs until ctx ends.
	Days int

	clock     *clock.Clock
	generator Generator
	admit     AdmitFunc
	factor    FactorFunc
	credit    float64
}

// NewFeeder creates a feeder.
func NewFeeder(origin model.Origin, perDay float64, days int, c *clock.Clock, generator Generator, admit AdmitFunc, factor FactorFunc) *Feeder {
	return &Feeder{
		Origin:    origin,
		PerDay:    perDay,
		Days:      days,
		clock:     c,
		generator: generator,
		admit:     admit,
		factor:    factor,
	}
}

// Run admits cases on every tick until the last day or ctx ends.
func (f *Feeder) Run(ctx context.Context) error {
	for {
		now := f.clock.Now()
		if f.Days > 0 && f.clock.DayOf(now) >= f.Days {
			return nil
		}
		f.Tick(ctx, now)
		if err := f.clock.WaitUntil(ctx, now+1); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Tick admits the arrivals due at tick now and returns how many were admitted.
func (f *Feeder) Tick(ctx context.Context, now model.Tick) int {
	rate := f.PerDay / float64(f.clock.TicksPerDay())
	if f.factor != nil {
		rate *= f.factor(f.Origin)
	}
	f.credit += rate
	admitted := 0
	for f.credit >= 1 {
		f.credit--
		if ctx.Err() != nil {
			return admitted
		}
		f.admit(ctx, f.generator.NewCase(now, f.Origin))
		admitted++
	}
	return admitted
}
