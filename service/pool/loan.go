package pool

import "fmt"

// Loan records units lent away from a pool. Free units are taken at once and
// the rest are collected from holders as they release, so a lent unit is never
// visible to acquirers.
type Loan struct {
	pool      *Pool
	requested int
	taken     int
	closed    bool
	returned  bool
	granted   chan struct{}
}

// Lend opens a loan of up to n units.
func (p *Pool) Lend(n int) *Loan {
	if n < 0 {
		n = 0
	}
	if n > p.capacity {
		n = p.capacity
	}
	loan := &Loan{pool: p, requested: n, granted: make(chan struct{}, n)}
	p.mu.Lock()
	defer p.mu.Unlock()
	take := min(n, p.available)
	p.available -= take
	p.lent += take
	for i := 0; i < take; i++ {
		loan.collect()
	}
	if loan.taken < loan.requested {
		p.debtors = append(p.debtors, loan)
	} else {
		loan.close()
	}
	return loan
}

// collect marks one more unit as taken. Callers hold pool.mu.
func (l *Loan) collect() {
	l.taken++
	l.granted <- struct{}{}
	if l.taken == l.requested {
		l.close()
	}
}

// close stops collection. Callers hold pool.mu.
func (l *Loan) close() {
	if l.closed {
		return
	}
	l.closed = true
	close(l.granted)
}

// Pool returns the lender pool name.
func (l *Loan) Pool() string { return l.pool.name }

// Requested returns the number of units asked for.
func (l *Loan) Requested() int { return l.requested }

// Taken returns the number of units collected so far.
func (l *Loan) Taken() int {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	return l.taken
}

// Granted delivers one signal per collected unit and is closed once the loan
// stops collecting.
func (l *Loan) Granted() <-chan struct{} { return l.granted }

// Close stops collecting further units. Units already taken stay lent.
func (l *Loan) Close() int {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	l.pool.removeDebtor(l)
	l.close()
	return l.taken
}

// Return gives back every taken unit. units is the count the borrower hands
// back; a mismatch with the taken count is reported as ErrLoanImbalance while
// the pool is still restored to its original capacity. Returning twice is a
// no-op.
func (l *Loan) Return(units int) error {
	p := l.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if l.returned {
		return nil
	}
	l.returned = true
	p.removeDebtor(l)
	l.close()
	restored := min(l.taken, p.lent)
	p.lent -= restored
	p.available += restored
	if restored > 0 {
		p.notify()
	}
	var err error
	if units != l.taken || restored != l.taken {
		err = fmt.Errorf("%w: pool %s took %d, returned %d", ErrLoanImbalance, p.name, l.taken, units)
	}
	if p.available+p.held+p.lent != p.capacity {
		err = fmt.Errorf("%w: pool %s capacity %d, accounted %d", ErrLoanImbalance, p.name, p.capacity, p.available+p.held+p.lent)
	}
	return err
}
