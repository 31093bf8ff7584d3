// This file implements LRU eviction.

package eviction

import "time"

// lru keeps the most recently used key at the head and evicts from the tail.
type lru struct {
	order list
	nodes map[string]*node
}

func newLRU() *lru {
	return &lru{nodes: make(map[string]*node)}
}

// OnGet marks k as most recently used.
func (l *lru) OnGet(k string) {
	if n, ok := l.nodes[k]; ok {
		l.order.remove(n)
		l.order.pushFront(n)
	}
}

// OnPut treats a write as a use. Replacing a key moves it to the front.
func (l *lru) OnPut(k string, _ time.Time) {
	if n, ok := l.nodes[k]; ok {
		l.order.remove(n)
		l.order.pushFront(n)
		return
	}
	n := &node{key: k}
	l.nodes[k] = n
	l.order.pushFront(n)
}

// Evict removes the least recently used key.
func (l *lru) Evict() string {
	n := l.order.tail
	if n == nil {
		return ""
	}
	l.order.remove(n)
	delete(l.nodes, n.key)
	return n.key
}

func (l *lru) Remove(k string) {
	if n, ok := l.nodes[k]; ok {
		l.order.remove(n)
		delete(l.nodes, k)
	}
}

func (l *lru) Reset() {
	l.order = list{}
	l.nodes = make(map[string]*node)
}
