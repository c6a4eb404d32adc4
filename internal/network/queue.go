package network

import "container/heap"

type queued struct {
	event Event
	seq   uint64
}

type eventHeap []queued

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].event.Timestamp != h[j].event.Timestamp {
		return h[i].event.Timestamp < h[j].event.Timestamp
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(queued))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EventQueue is a min-heap of events ordered by timestamp, then by
// insertion order.
type EventQueue struct {
	h   eventHeap
	seq uint64
}

func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

func (q *EventQueue) Schedule(e Event) {
	heap.Push(&q.h, queued{event: e, seq: q.seq})
	q.seq++
}

// PopNext removes the earliest event. It returns false when empty.
func (q *EventQueue) PopNext() (Event, bool) {
	if len(q.h) == 0 {
		return Event{}, false
	}
	return heap.Pop(&q.h).(queued).event, true
}

func (q *EventQueue) Empty() bool {
	return len(q.h) == 0
}

func (q *EventQueue) Len() int {
	return len(q.h)
}
