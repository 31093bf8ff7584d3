// This file implements LFU eviction.

package eviction

import "time"

type lfu struct {
	// nodes finds the node for a key.
	nodes map[string]*node

	// buckets groups keys by read frequency. Inside a bucket the head is the
	// key that most recently reached that frequency.
	buckets map[int]*list

	// minFreq is the smallest frequency with a non-empty bucket.
	// It can go stale after Remove; Evict repairs it.
	minFreq int
}

func newLFU() *lfu {
	return &lfu{
		nodes:   make(map[string]*node),
		buckets: make(map[int]*list),
	}
}

func (l *lfu) bucket(freq int) *list {
	b, ok := l.buckets[freq]
	if !ok {
		b = &list{}
		l.buckets[freq] = b
	}
	return b
}

func (l *lfu) unlink(n *node) {
	b := l.buckets[n.freq]
	b.remove(n)
	if b.len == 0 {
		delete(l.buckets, n.freq)
	}
}

// OnGet bumps the frequency of k.
func (l *lfu) OnGet(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	old := n.freq
	l.unlink(n)
	if l.minFreq == old && l.buckets[old] == nil {
		l.minFreq = old + 1
	}
	n.freq++
	l.bucket(n.freq).pushFront(n)
}

// OnPut starts new keys at frequency 1. A replaced key keeps its count.
func (l *lfu) OnPut(k string, _ time.Time) {
	if _, ok := l.nodes[k]; ok {
		return
	}
	n := &node{key: k, freq: 1}
	l.nodes[k] = n
	l.bucket(1).pushFront(n)
	l.minFreq = 1
}

// Evict removes the oldest key among the least frequently read.
func (l *lfu) Evict() string {
	if len(l.nodes) == 0 {
		return ""
	}
	b, ok := l.buckets[l.minFreq]
	if !ok {
		l.minFreq = l.lowestFreq()
		b = l.buckets[l.minFreq]
	}
	n := b.tail
	l.unlink(n)
	delete(l.nodes, n.key)
	return n.key
}

func (l *lfu) lowestFreq() int {
	lowest := 0
	for f := range l.buckets {
		if lowest == 0 || f < lowest {
			lowest = f
		}
	}
	return lowest
}

func (l *lfu) Remove(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	l.unlink(n)
	delete(l.nodes, k)
}

func (l *lfu) Reset() {
	l.nodes = make(map[string]*node)
	l.buckets = make(map[int]*list)
	l.minFreq = 0
}
