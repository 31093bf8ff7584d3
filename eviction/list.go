package eviction

import "time"

// node is one tracked key. All policies share the same doubly-linked list so
// moving or dropping a key is O(1) once its node is known.
type node struct {
	key       string
	createdAt time.Time
	freq      int

	prev *node
	next *node
}

// list is an intrusive doubly-linked list. head and tail are nil when empty.
type list struct {
	head *node
	tail *node
	len  int
}

func (l *list) pushFront(n *node) {
	l.insertAfter(nil, n)
}

// insertAfter links n right after at. A nil at means "at the head".
func (l *list) insertAfter(at, n *node) {
	if at == nil {
		n.prev = nil
		n.next = l.head
		if l.head != nil {
			l.head.prev = n
		}
		l.head = n
		if l.tail == nil {
			l.tail = n
		}
		l.len++
		return
	}

	n.prev = at
	n.next = at.next
	if at.next != nil {
		at.next.prev = n
	} else {
		l.tail = n
	}
	at.next = n
	l.len++
}

func (l *list) remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}
