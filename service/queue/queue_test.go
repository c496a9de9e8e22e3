package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/triage/model"
)

func newCase(t *testing.T, id string, severity model.Severity, arrival model.Tick) *model.Case {
	t.Helper()
	c := model.NewCase(id, arrival, model.OriginWalkIn)
	require.NoError(t, c.AssignSeverity(severity))
	return c
}

func drainIDs(q Queue) []string {
	var ids []string
	for {
		c, ok := q.TryDequeue()
		if !ok {
			return ids
		}
		ids = append(ids, c.ID)
	}
}

func TestPriority_Order(t *testing.T) {
	testCases := []struct {
		name     string
		input    []*model.Case
		expected []string
	}{
		{
			name: "severity then arrival",
			input: []*model.Case{
				newCase(t, "3", 3, 1),
				newCase(t, "7a", 7, 2),
				newCase(t, "7b", 7, 3),
				newCase(t, "1", 1, 4),
			},
			expected: []string{"7a", "7b", "3", "1"},
		},
		{
			name: "same key keeps enqueue order",
			input: []*model.Case{
				newCase(t, "x", 5, 1),
				newCase(t, "y", 5, 1),
				newCase(t, "z", 5, 1),
			},
			expected: []string{"x", "y", "z"},
		},
		{
			name: "late critical overtakes",
			input: []*model.Case{
				newCase(t, "early", 2, 0),
				newCase(t, "late", 9, 50),
			},
			expected: []string{"late", "early"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewPriority("emergency")
			for _, c := range tc.input {
				q.Enqueue(c)
			}
			assert.Equal(t, tc.expected, drainIDs(q))
		})
	}
}

func TestPriority_RequeueKeepsArrival(t *testing.T) {
	q := NewPriority("emergency")
	first := newCase(t, "first", 6, 1)
	q.Enqueue(first)
	taken, ok := q.TryDequeue()
	require.True(t, ok)

	q.Enqueue(newCase(t, "later-lower", 5, 10))
	q.Enqueue(newCase(t, "later-same", 6, 10))
	q.Requeue(taken)

	assert.Equal(t, []string{"first", "later-same", "later-lower"}, drainIDs(q))
	assert.Equal(t, model.Tick(1), taken.Arrival)
}

func TestFIFO_Order(t *testing.T) {
	q := NewFIFO("cardiology")
	q.Enqueue(newCase(t, "a", 9, 0))
	q.Enqueue(newCase(t, "b", 1, 1))
	q.Requeue(newCase(t, "r", 2, 0))
	q.Enqueue(newCase(t, "c", 5, 2))
	assert.Equal(t, []string{"r", "a", "b", "c"}, drainIDs(q))
}

func TestStage_DequeueTimeout(t *testing.T) {
	q := NewFIFO("lab")
	c, err := q.Dequeue(context.Background(), 5*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestStage_DequeueWokenByEnqueue(t *testing.T) {
	q := NewPriority("surgery")
	got := make(chan *model.Case, 1)
	go func() {
		c, _ := q.Dequeue(context.Background(), time.Second)
		got <- c
	}()
	time.Sleep(5 * time.Millisecond)
	q.Enqueue(newCase(t, "s1", 8, 3))
	select {
	case c := <-got:
		require.NotNil(t, c)
		assert.Equal(t, "s1", c.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue not woken")
	}
}

func TestStage_Drain(t *testing.T) {
	q := NewPriority("surge")
	q.Enqueue(newCase(t, "a", 8, 1))
	q.Enqueue(newCase(t, "b", 10, 2))
	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "b", drained[0].ID)
	assert.Equal(t, 0, q.Len())
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestStage_Emptied(t *testing.T) {
	testCases := []struct {
		description string
		take        func(q *Stage)
	}{
		{description: "try dequeue", take: func(q *Stage) {
			q.TryDequeue()
			q.TryDequeue()
		}},
		{description: "dequeue", take: func(q *Stage) {
			_, _ = q.Dequeue(context.Background(), time.Millisecond)
			_, _ = q.Dequeue(context.Background(), time.Millisecond)
		}},
		{description: "drain", take: func(q *Stage) { q.Drain() }},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			q := NewPriority("surge")
			assert.True(t, isClosed(q.Emptied()))

			q.Enqueue(newCase(t, "a", 8, 1))
			q.Enqueue(newCase(t, "b", 9, 2))
			emptied := q.Emptied()
			assert.False(t, isClosed(emptied))

			q.TryDequeue()
			assert.False(t, isClosed(emptied))
			q.Requeue(newCase(t, "c", 7, 3))
			testCase.take(q)
			assert.Equal(t, 0, q.Len())
			assert.True(t, isClosed(emptied))
			assert.True(t, isClosed(q.Emptied()))
		})
	}
}

func TestNew_UnsupportedDiscipline(t *testing.T) {
	_, err := New("x", Discipline("lifo"))
	assert.Error(t, err)
}
