// Package zset implements a probabilistic skip-list sorted set with a
// companion member->element dictionary for O(1) membership and score
// lookups.
package zset

import (
	"math/rand/v2"

	"github.com/zond/kivi/heap"
)

const (
	maxLevel = 32
	p        = 0.25
)

// Aggregate selects how per-input weighted scores combine in
// InterStore/UnionStore.
type Aggregate int

const (
	Sum Aggregate = iota
	Min
	Max
)

type element struct {
	member   string
	score    float64
	forward  []*element
	backward *element
}

// less implements the sorted set's total order: by score, then by
// member as a tie-break.
func less(scoreA float64, memberA string, scoreB float64, memberB string) bool {
	if scoreA != scoreB {
		return scoreA < scoreB
	}
	return memberA < memberB
}

// ZSet is a skip-list ordered by (score, member) paired with a dict
// for O(1) zscore/zcard/membership.
type ZSet struct {
	level int
	head  *element // sentinel; head.forward[i] is level i's first real element
	tail  *element
	dict  map[string]*element
	rnd   *rand.Rand
}

// New returns an empty sorted set. rnd drives level selection; pass a
// seeded source for reproducible tests, or
// rand.New(rand.NewPCG(0, 0)) at call sites that don't care.
func New(rnd *rand.Rand) *ZSet {
	return &ZSet{
		level: 1,
		head:  &element{forward: make([]*element, maxLevel)},
		dict:  map[string]*element{},
		rnd:   rnd,
	}
}

func (z *ZSet) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && z.rnd.Float64() < p {
		lvl++
	}
	return lvl
}

// Card returns the set's cardinality. Satisfies value.ZSet.
func (z *ZSet) Card() int { return len(z.dict) }

// findUpdatePath walks from the head downward, collecting at each
// level the last element strictly before (score, member), and returns
// that per-level slice alongside the candidate successor at level 0.
func (z *ZSet) findUpdatePath(score float64, member string) ([]*element, *element) {
	update := make([]*element, maxLevel)
	cur := z.head
	for i := z.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && less(cur.forward[i].score, cur.forward[i].member, score, member) {
			cur = cur.forward[i]
		}
		update[i] = cur
	}
	return update, cur.forward[0]
}

// Add inserts or updates member's score, reordering it if present, and
// returns the set's new cardinality.
func (z *ZSet) Add(score float64, member string) int {
	if _, ok := z.dict[member]; ok {
		z.Rem(member)
	}

	update, _ := z.findUpdatePath(score, member)

	lvl := z.randomLevel()
	if lvl > z.level {
		for i := z.level; i < lvl; i++ {
			update[i] = z.head
		}
		z.level = lvl
	}

	e := &element{member: member, score: score, forward: make([]*element, lvl)}
	for i := 0; i < lvl; i++ {
		e.forward[i] = update[i].forward[i]
		update[i].forward[i] = e
	}
	e.backward = update[0]
	if e.backward == z.head {
		e.backward = nil
	}
	if e.forward[0] != nil {
		e.forward[0].backward = e
	} else {
		z.tail = e
	}

	z.dict[member] = e
	return len(z.dict)
}

// Rem removes member, reporting whether it was present.
func (z *ZSet) Rem(member string) bool {
	e, ok := z.dict[member]
	if !ok {
		return false
	}

	update, _ := z.findUpdatePath(e.score, e.member)
	for i := 0; i < z.level; i++ {
		if update[i].forward[i] != e {
			continue
		}
		update[i].forward[i] = e.forward[i]
	}
	if e.forward[0] != nil {
		e.forward[0].backward = e.backward
	} else {
		z.tail = e.backward
	}
	for z.level > 1 && z.head.forward[z.level-1] == nil {
		z.level--
	}

	delete(z.dict, member)
	return true
}

// Score returns member's score and true, or (0, false) if absent.
func (z *ZSet) Score(member string) (float64, bool) {
	e, ok := z.dict[member]
	if !ok {
		return 0, false
	}
	return e.score, true
}

// Count returns the number of elements whose score lies in the
// (half-)open interval [min, max] with inclusivity controlled per
// bound. Returns 0 when min >= max.
func (z *ZSet) Count(min float64, inclMin bool, max float64, inclMax bool) int {
	if min >= max {
		return 0
	}
	count := 0
	for e := z.head.forward[0]; e != nil; e = e.forward[0] {
		if scoreInRange(e.score, min, inclMin, max, inclMax) {
			count++
		}
	}
	return count
}

func scoreInRange(score, min float64, inclMin bool, max float64, inclMax bool) bool {
	if inclMin {
		if score < min {
			return false
		}
	} else if score <= min {
		return false
	}
	if inclMax {
		if score > max {
			return false
		}
	} else if score >= max {
		return false
	}
	return true
}

// Pair is one (member, score) result row.
type Pair struct {
	Member string
	Score  float64
}

// Range walks the bottom list by index, [start, stop] inclusive.
func (z *ZSet) Range(start, stop int) []Pair {
	if start < 0 {
		start = 0
	}
	var out []Pair
	i := 0
	for e := z.head.forward[0]; e != nil && i <= stop; e, i = e.forward[0], i+1 {
		if i >= start {
			out = append(out, Pair{Member: e.member, Score: e.score})
		}
	}
	return out
}

// RangeByScore descends the skip list to the first element meeting the
// lower bound, then walks forward collecting elements until the upper
// bound is exceeded.
func (z *ZSet) RangeByScore(min float64, inclMin bool, max float64, inclMax bool) []Pair {
	cur := z.head
	for i := z.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && belowLowerBound(cur.forward[i].score, min, inclMin) {
			cur = cur.forward[i]
		}
	}
	var out []Pair
	for e := cur.forward[0]; e != nil; e = e.forward[0] {
		if !scoreInRange(e.score, min, inclMin, max, inclMax) {
			if aboveUpperBound(e.score, max, inclMax) {
				break
			}
			continue
		}
		out = append(out, Pair{Member: e.member, Score: e.score})
	}
	return out
}

func belowLowerBound(score, min float64, inclMin bool) bool {
	if inclMin {
		return score < min
	}
	return score <= min
}

func aboveUpperBound(score, max float64, inclMax bool) bool {
	if inclMax {
		return score > max
	}
	return score >= max
}

// Rank returns member's zero-based index in ascending order, walking
// from the head at level 0 (documented O(n) cost).
func (z *ZSet) Rank(member string) (int, bool) {
	if _, ok := z.dict[member]; !ok {
		return 0, false
	}
	i := 0
	for e := z.head.forward[0]; e != nil; e, i = e.forward[0], i+1 {
		if e.member == member {
			return i, true
		}
	}
	return 0, false
}

// RemRangeByScore removes every element in the (half-)open interval and
// returns the count removed.
func (z *ZSet) RemRangeByScore(min float64, inclMin bool, max float64, inclMax bool) int {
	var toRemove []string
	for e := z.head.forward[0]; e != nil; e = e.forward[0] {
		if scoreInRange(e.score, min, inclMin, max, inclMax) {
			toRemove = append(toRemove, e.member)
		}
	}
	for _, m := range toRemove {
		z.Rem(m)
	}
	return len(toRemove)
}

// setRef names one input to InterStore/UnionStore paired with its
// multiplicative weight.
type setRef struct {
	Set    *ZSet
	Weight float64
}

// InterStore builds a new set containing members present in every
// input, with score = aggregate of each input's weighted score.
// Iterates the smallest input set for membership, matching the
// source's documented strategy; a small heap orders the inputs by
// cardinality so the true smallest is chosen regardless of input order.
func InterStore(rnd *rand.Rand, sets []*ZSet, weights []float64, agg Aggregate) *ZSet {
	refs := pairRefs(sets, weights)
	if len(refs) == 0 {
		return New(rnd)
	}
	smallest := smallestByCard(refs)

	out := New(rnd)
	for e := smallest.Set.head.forward[0]; e != nil; e = e.forward[0] {
		scores := make([]float64, 0, len(refs))
		inAll := true
		for _, r := range refs {
			s, ok := r.Set.Score(e.member)
			if !ok {
				inAll = false
				break
			}
			scores = append(scores, s*r.Weight)
		}
		if !inAll {
			continue
		}
		out.Add(combine(agg, scores), e.member)
	}
	return out
}

// UnionStore builds a new set containing every member present in any
// input, aggregating weighted scores across the inputs that contain
// it.
func UnionStore(rnd *rand.Rand, sets []*ZSet, weights []float64, agg Aggregate) *ZSet {
	refs := pairRefs(sets, weights)
	acc := map[string][]float64{}
	order := []string{}
	for _, r := range refs {
		for e := r.Set.head.forward[0]; e != nil; e = e.forward[0] {
			if _, seen := acc[e.member]; !seen {
				order = append(order, e.member)
			}
			acc[e.member] = append(acc[e.member], e.score*r.Weight)
		}
	}
	out := New(rnd)
	for _, member := range order {
		out.Add(combine(agg, acc[member]), member)
	}
	return out
}

func pairRefs(sets []*ZSet, weights []float64) []setRef {
	refs := make([]setRef, len(sets))
	for i, s := range sets {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		refs[i] = setRef{Set: s, Weight: w}
	}
	return refs
}

// smallestByCard picks the lowest-cardinality input through a min-heap,
// for any number of inputs.
func smallestByCard(refs []setRef) setRef {
	h := heap.New(func(a, b setRef) bool { return a.Set.Card() < b.Set.Card() })
	for _, r := range refs {
		h.Push(r)
	}
	smallest, _ := h.Peek()
	return smallest
}

func combine(agg Aggregate, scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	result := scores[0]
	for _, s := range scores[1:] {
		switch agg {
		case Min:
			if s < result {
				result = s
			}
		case Max:
			if s > result {
				result = s
			}
		default:
			result += s
		}
	}
	return result
}
