package engine

import (
	"container/heap"
	"math"
)

// Queue is a priority queue over (priority, time, insertion sequence),
// popped in ascending lexicographic order. The sequence counter makes the
// ordering strictly total, so exact ties dequeue FIFO.
type Queue struct {
	h   eventHeap
	seq uint64
}

// NewQueue returns an empty event queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push inserts an event, stamping it with the next insertion sequence.
func (q *Queue) Push(e *Event) {
	q.seq++
	e.seq = q.seq
	heap.Push(&q.h, e)
}

// Pop removes and returns the next event, or nil when empty.
func (q *Queue) Pop() *Event {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Event)
}

// PeekTime returns the timestamp of the next event, or +Inf when empty.
func (q *Queue) PeekTime() float64 {
	if len(q.h) == 0 {
		return math.Inf(1)
	}
	return q.h[0].Time
}

// Drain removes and returns all remaining events in pop order.
func (q *Queue) Drain() []*Event {
	out := make([]*Event, 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(*Event))
	}
	return out
}

// Len returns the number of resident events.
func (q *Queue) Len() int {
	return len(q.h)
}

type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.seq < b.seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
