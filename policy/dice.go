package policy

import (
	"math/rand/v2"
	"sync"
)

// Dice is a seeded random source shared by concurrent workers.
type Dice struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDice creates a source. The same seed yields the same sequence of draws.
func NewDice(seed uint64) *Dice {
	return &Dice{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Chance reports true with probability p.
func (d *Dice) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return d.Float64() < p
}

// Float64 returns a number in [0,1).
func (d *Dice) Float64() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rnd.Float64()
}

// IntN returns a number in [0,n).
func (d *Dice) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rnd.IntN(n)
}

// Pick returns a random element or the zero value for an empty slice.
func Pick[T any](d *Dice, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[d.IntN(len(items))]
}
