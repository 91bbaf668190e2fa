// Package list implements a doubly-linked list of strings, the
// building block behind the store's List value kind, request argument
// vectors, and reply payloads.
package list

import "math"

// MaxIndex is the sentinel stop index meaning "to the end of the list".
const MaxIndex = math.MaxInt

// Node is one link in a List.
type Node struct {
	Data string
	prev *Node
	next *Node
}

func (n *Node) Prev() *Node { return n.prev }
func (n *Node) Next() *Node { return n.next }

// New returns a detached node carrying data, ready to push.
func New(data string) *Node {
	return &Node{Data: data}
}

// List is a doubly-linked chain with O(1) push/pop at both ends.
type List struct {
	head   *Node
	tail   *Node
	length int
}

// NewList returns an empty list.
func NewList() *List {
	return &List{}
}

func (l *List) Head() *Node { return l.head }
func (l *List) Tail() *Node { return l.tail }
func (l *List) Len() int   { return l.length }

// RPush appends the given nodes at the tail, in argument order. Each
// node's existing Next/Prev links are overwritten, so a pre-linked
// chain contributes only the nodes passed as arguments. Pushing nil is
// a no-op. Returns the new length.
func (l *List) RPush(nodes ...*Node) int {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		n.prev = l.tail
		n.next = nil
		if l.tail != nil {
			l.tail.next = n
		} else {
			l.head = n
		}
		l.tail = n
		l.length++
	}
	return l.length
}

// LPush prepends nodes at the head, in the given order (so LPush(a, b)
// leaves the list beginning b, a, ...). Returns the new length.
func (l *List) LPush(nodes ...*Node) int {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		n.next = l.head
		n.prev = nil
		if l.head != nil {
			l.head.prev = n
		} else {
			l.tail = n
		}
		l.head = n
		l.length++
	}
	return l.length
}

// RPop detaches and returns the tail node, or nil if empty.
func (l *List) RPop() *Node {
	n := l.tail
	if n == nil {
		return nil
	}
	l.tail = n.prev
	if l.tail != nil {
		l.tail.next = nil
	} else {
		l.head = nil
	}
	n.prev, n.next = nil, nil
	l.length--
	return n
}

// LPop detaches and returns the head node, or nil if empty.
func (l *List) LPop() *Node {
	n := l.head
	if n == nil {
		return nil
	}
	l.head = n.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	n.prev, n.next = nil, nil
	l.length--
	return n
}

// RPopN pops up to k nodes from the tail, back-to-front, returning them
// in removal order.
func (l *List) RPopN(k int) []*Node {
	out := make([]*Node, 0, k)
	for i := 0; i < k; i++ {
		n := l.RPop()
		if n == nil {
			break
		}
		out = append(out, n)
	}
	return out
}

// LPopN pops up to k nodes from the head, front-to-back, returning them
// in removal order.
func (l *List) LPopN(k int) []*Node {
	out := make([]*Node, 0, k)
	for i := 0; i < k; i++ {
		n := l.LPop()
		if n == nil {
			break
		}
		out = append(out, n)
	}
	return out
}

// Range returns the payload strings for indices [start, stop] inclusive.
// stop = MaxIndex means "to the end". Traversal walks from whichever
// end is closer to minimize steps. Returns (nil, false) when start >
// stop or start is out of range; stop beyond the last index clamps to
// the last index.
func (l *List) Range(start, stop int) ([]string, bool) {
	if l.length == 0 {
		return nil, false
	}
	if stop > l.length-1 {
		stop = l.length - 1
	}
	if start > stop || start >= l.length || start < 0 {
		return nil, false
	}

	out := make([]string, 0, stop-start+1)

	fromHeadSteps := stop
	fromTailSteps := (l.length - 1) - start
	if fromHeadSteps <= fromTailSteps {
		n := l.head
		for i := 0; i < start; i++ {
			n = n.next
		}
		for i := start; i <= stop; i++ {
			out = append(out, n.Data)
			n = n.next
		}
	} else {
		n := l.tail
		for i := l.length - 1; i > stop; i-- {
			n = n.prev
		}
		rev := make([]string, 0, stop-start+1)
		for i := stop; i >= start; i-- {
			rev = append(rev, n.Data)
			n = n.prev
		}
		for i := len(rev) - 1; i >= 0; i-- {
			out = append(out, rev[i])
		}
	}
	return out, true
}

// Clear detaches every node, leaving the list empty.
func (l *List) Clear() {
	l.head, l.tail, l.length = nil, nil, 0
}

// Strings returns every payload string head to tail.
func (l *List) Strings() []string {
	out := make([]string, 0, l.length)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.Data)
	}
	return out
}

// FromStrings builds a fresh list from data, in order.
func FromStrings(data []string) *List {
	l := NewList()
	nodes := make([]*Node, len(data))
	for i, d := range data {
		nodes[i] = New(d)
	}
	l.RPush(nodes...)
	return l
}
