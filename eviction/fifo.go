// This file implements FIFO eviction by creation time.

package eviction

import "time"

/*
fifo keeps keys sorted by the CreatedAt of their current entry.
The head of the list is the oldest entry and is the next one to go.

Fresh writes always carry the newest timestamp and are appended in O(1).
Entries promoted from the durable tier keep their original CreatedAt, so
they are walked back from the tail to their place in the order.
Keys with equal timestamps keep insertion order.
*/
type fifo struct {
	order list
	nodes map[string]*node
}

func newFIFO() *fifo {
	return &fifo{nodes: make(map[string]*node)}
}

// OnGet does nothing: reads do not change insertion order.
func (f *fifo) OnGet(string) {}

// OnPut (re)positions k by createdAt. A replaced key counts as a new insertion.
func (f *fifo) OnPut(k string, createdAt time.Time) {
	if n, ok := f.nodes[k]; ok {
		f.order.remove(n)
	}

	n := &node{key: k, createdAt: createdAt}
	f.nodes[k] = n

	at := f.order.tail
	for at != nil && at.createdAt.After(createdAt) {
		at = at.prev
	}
	f.order.insertAfter(at, n)
}

// Evict drops the oldest entry.
func (f *fifo) Evict() string {
	n := f.order.head
	if n == nil {
		return ""
	}
	f.order.remove(n)
	delete(f.nodes, n.key)
	return n.key
}

func (f *fifo) Remove(k string) {
	if n, ok := f.nodes[k]; ok {
		f.order.remove(n)
		delete(f.nodes, k)
	}
}

func (f *fifo) Reset() {
	f.order = list{}
	f.nodes = make(map[string]*node)
}
