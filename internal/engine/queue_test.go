package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePopOrder(t *testing.T) {
	q := NewQueue()
	q.Push(&Event{Kind: KindDailyReset, Priority: PrioritySystem, Time: 1440})
	q.Push(&Event{Kind: KindPublishPost, Priority: PriorityAgentAction, Time: 1440})
	q.Push(&Event{Kind: KindPublishPost, Priority: PriorityAgentAction, Time: 30})
	q.Push(&Event{Kind: KindEnergyRecovery, Priority: PrioritySystem, Time: 360})

	var got []Kind
	for e := q.Pop(); e != nil; e = q.Pop() {
		got = append(got, e.Kind)
	}
	// Priority sorts before time, so both agent actions drain first.
	assert.Equal(t, []Kind{KindPublishPost, KindPublishPost, KindEnergyRecovery, KindDailyReset}, got)
}

func TestQueueTiesAreFIFO(t *testing.T) {
	q := NewQueue()
	first := &Event{Kind: KindPublishPost, Priority: PriorityAgentAction, Time: 123.0}
	second := &Event{Kind: KindPublishPost, Priority: PriorityAgentAction, Time: 123.0}
	q.Push(first)
	q.Push(second)

	assert.Same(t, first, q.Pop())
	assert.Same(t, second, q.Pop())
	assert.Nil(t, q.Pop())
}

func TestQueueOrderIsTotal(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 500; i++ {
		q.Push(&Event{
			Priority: []int{PriorityLow, PriorityAgentAction, PrioritySystem}[i%3],
			Time:     float64(i % 7),
		})
	}

	prev := q.Pop()
	for e := q.Pop(); e != nil; e = q.Pop() {
		less := prev.Priority < e.Priority ||
			(prev.Priority == e.Priority && prev.Time < e.Time) ||
			(prev.Priority == e.Priority && prev.Time == e.Time && prev.seq < e.seq)
		require.True(t, less, "pop order not strictly increasing")
		prev = e
	}
}

func TestQueuePeekAndDrain(t *testing.T) {
	q := NewQueue()
	assert.True(t, math.IsInf(q.PeekTime(), 1))

	q.Push(&Event{Priority: PriorityAgentAction, Time: 75})
	q.Push(&Event{Priority: PriorityAgentAction, Time: 12})
	assert.Equal(t, 12.0, q.PeekTime())
	assert.Equal(t, 2, q.Len())

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, 12.0, drained[0].Time)
	assert.Equal(t, 75.0, drained[1].Time)
	assert.Equal(t, 0, q.Len())
}
