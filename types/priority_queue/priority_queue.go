// Package priority_queue provides a min-heap keyed on an ordered
// priority type.
package priority_queue

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type item[V any, P constraints.Ordered] struct {
	value    V
	priority P
	index    int
}

type wrapper[V any, P constraints.Ordered] struct {
	items []*item[V, P]
}

func (pq *wrapper[V, P]) Len() int {
	return len(pq.items)
}

func (pq *wrapper[V, P]) Less(i, j int) bool {
	return pq.items[i].priority < pq.items[j].priority
}

func (pq *wrapper[V, P]) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index = i
	pq.items[j].index = j
}

func (pq *wrapper[V, P]) Push(x any) {
	it := x.(*item[V, P])
	it.index = len(pq.items)
	pq.items = append(pq.items, it)
}

func (pq *wrapper[V, P]) Pop() any {
	old := pq.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	pq.items = old[:n-1]
	return it
}

// Queue is a minimum-first priority queue.
type Queue[V any, P constraints.Ordered] struct {
	pq wrapper[V, P]
}

// New creates an empty Queue.
func New[V any, P constraints.Ordered]() *Queue[V, P] {
	return &Queue[V, P]{}
}

// Len returns the number of queued values.
func (q *Queue[V, P]) Len() int {
	return q.pq.Len()
}

// Push adds a value with a priority.
func (q *Queue[V, P]) Push(value V, priority P) {
	heap.Push(&q.pq, &item[V, P]{value: value, priority: priority})
}

// Peek returns the value with the minimum priority.
func (q *Queue[V, P]) Peek() V {
	return q.pq.items[0].value
}

// PeekPriority returns the minimum priority.
func (q *Queue[V, P]) PeekPriority() P {
	return q.pq.items[0].priority
}

// Pop removes and returns the value with the minimum priority.
func (q *Queue[V, P]) Pop() V {
	return heap.Pop(&q.pq).(*item[V, P]).value
}
