package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBalanced(t *testing.T, p *Pool) {
	t.Helper()
	s := p.Stats()
	assert.GreaterOrEqual(t, s.Available, 0)
	assert.LessOrEqual(t, s.Available, s.Capacity)
	assert.Equal(t, s.Capacity, s.Available+s.Held+s.Lent)
}

func TestPool_ReplayStaysInBounds(t *testing.T) {
	testCases := []struct {
		name     string
		capacity int
		ops      string // a: acquire, r: release oldest
	}{
		{name: "fill and drain", capacity: 3, ops: "aaarrr"},
		{name: "over acquire", capacity: 2, ops: "aaaarar"},
		{name: "interleaved", capacity: 4, ops: "aararaaarrr"},
		{name: "empty pool", capacity: 0, ops: "aar"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := New("ward", tc.capacity)
			var holds []*Hold
			for _, op := range tc.ops {
				switch op {
				case 'a':
					if h, ok := p.TryAcquire(); ok {
						holds = append(holds, h)
					}
				case 'r':
					if len(holds) > 0 {
						holds[0].Release()
						holds = holds[1:]
					}
				}
				s := p.Stats()
				assert.Equal(t, s.Capacity-s.Available, s.Held)
				assertBalanced(t, p)
			}
		})
	}
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	p := New("ward", 1)
	h, ok := p.TryAcquire()
	require.True(t, ok)
	h.Release()
	h.Release()
	assert.Equal(t, 1, p.Stats().Available)
	var nilHold *Hold
	nilHold.Release()
}

func TestPool_AcquireTimeout(t *testing.T) {
	p := New("ward", 1)
	h, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer h.Release()

	_, err = p.Acquire(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx, 0)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestPool_AcquireWokenByRelease(t *testing.T) {
	p := New("ward", 1)
	h, _ := p.TryAcquire()
	got := make(chan error, 1)
	go func() {
		h2, err := p.Acquire(context.Background(), time.Second)
		if err == nil {
			h2.Release()
		}
		got <- err
	}()
	time.Sleep(5 * time.Millisecond)
	h.Release()
	require.NoError(t, <-got)
	assertBalanced(t, p)
}

func TestPool_WithReleasesOnPanic(t *testing.T) {
	p := New("ward", 1)
	assert.Panics(t, func() {
		_ = p.With(context.Background(), time.Second, func(*Hold) error { panic("boom") })
	})
	assert.Equal(t, 1, p.Stats().Available)
}

func TestLoan_TakesFreeUnitsThenCollects(t *testing.T) {
	p := New("cardiology", 3)
	h1, _ := p.TryAcquire()
	h2, _ := p.TryAcquire()

	loan := p.Lend(2)
	assert.Equal(t, 1, loan.Taken())
	s := p.Stats()
	assert.Equal(t, 0, s.Available)
	assert.Equal(t, 1, s.Lent)
	assert.Equal(t, 1, s.Debt)

	h1.Release()
	assert.Equal(t, 2, loan.Taken())
	assert.Equal(t, 0, p.Stats().Available)
	assertBalanced(t, p)

	h2.Release()
	assert.Equal(t, 1, p.Stats().Available)

	granted := 0
	for range loan.Granted() {
		granted++
	}
	assert.Equal(t, 2, granted)

	require.NoError(t, loan.Return(2))
	assert.Equal(t, 3, p.Stats().Available)
	assert.Equal(t, 0, p.Stats().Lent)
	require.NoError(t, loan.Return(2))
}

func TestLoan_ImbalanceDetected(t *testing.T) {
	p := New("neurology", 4)
	loan := p.Lend(2)
	err := loan.Return(1)
	assert.ErrorIs(t, err, ErrLoanImbalance)
	assert.Equal(t, 4, p.Stats().Available)
	assertBalanced(t, p)
}

func TestLoan_CloseStopsCollection(t *testing.T) {
	p := New("orthopedics", 2)
	h1, _ := p.TryAcquire()
	h2, _ := p.TryAcquire()
	loan := p.Lend(2)
	h1.Release()
	assert.Equal(t, 1, loan.Close())
	h2.Release()
	assert.Equal(t, 1, p.Stats().Available)
	require.NoError(t, loan.Return(1))
	assert.Equal(t, 2, p.Stats().Available)
}

func TestLoan_ConcurrentWorkersReconcile(t *testing.T) {
	const capacity = 8
	p := New("internal", capacity)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < capacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_ = p.With(ctx, 2*time.Millisecond, func(*Hold) error {
					time.Sleep(100 * time.Microsecond)
					return nil
				})
			}
		}()
	}

	loan := p.Lend(3)
	deadline := time.After(2 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case <-loan.Granted():
		case <-deadline:
			t.Fatal("loan not granted")
		}
	}
	assertBalanced(t, p)
	require.NoError(t, loan.Return(3))
	cancel()
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, capacity, s.Available)
	assert.Equal(t, 0, s.Held)
	assert.Equal(t, 0, s.Lent)
}
