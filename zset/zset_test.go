package zset

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestSet() *ZSet {
	return New(rand.New(rand.NewPCG(1, 1)))
}

func TestAddReordersAndRanges(t *testing.T) {
	z := newTestSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(2, "a")

	got := z.Range(0, 100)
	want := []Pair{{Member: "a", Score: 2}, {Member: "b", Score: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Range mismatch (-want +got):\n%s", diff)
	}
}

func TestCardMatchesDictAndBottomList(t *testing.T) {
	z := newTestSet()
	for i := 0; i < 200; i++ {
		z.Add(float64(i), fmt.Sprintf("m%d", i))
	}
	if z.Card() != 200 {
		t.Fatalf("Card() = %d, want 200", z.Card())
	}
	if got := len(z.Range(0, 100000)); got != 200 {
		t.Fatalf("len(Range) = %d, want 200", got)
	}
}

func TestSkipListOrderInvariant(t *testing.T) {
	z := newTestSet()
	rnd := rand.New(rand.NewPCG(2, 2))
	for i := 0; i < 2000; i++ {
		z.Add(rnd.Float64()*1000, fmt.Sprintf("m%d", rnd.IntN(500)))
	}
	pairs := z.Range(0, 1<<30)
	for i := 1; i < len(pairs); i++ {
		if !less(pairs[i-1].Score, pairs[i-1].Member, pairs[i].Score, pairs[i].Member) &&
			!(pairs[i-1].Score == pairs[i].Score && pairs[i-1].Member == pairs[i].Member) {
			t.Fatalf("order violated at %d: %v then %v", i, pairs[i-1], pairs[i])
		}
	}
}

func TestRemThenZeroCard(t *testing.T) {
	z := newTestSet()
	z.Add(1, "a")
	if !z.Rem("a") {
		t.Fatalf("Rem(a) should report present")
	}
	if z.Rem("a") {
		t.Fatalf("second Rem(a) should report absent")
	}
	if z.Card() != 0 {
		t.Fatalf("Card() = %d, want 0", z.Card())
	}
}

func TestZCount(t *testing.T) {
	z := newTestSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(3, "c")
	if got := z.Count(1, false, 3, true); got != 2 {
		t.Fatalf("Count((1,3]) = %d, want 2", got)
	}
	if got := z.Count(5, true, 1, true); got != 0 {
		t.Fatalf("Count(min>=max) = %d, want 0", got)
	}
}

func TestInterStoreWeightedSum(t *testing.T) {
	a := newTestSet()
	a.Add(1, "x")
	a.Add(2, "y")
	b := newTestSet()
	b.Add(10, "x")
	b.Add(20, "z")

	out := InterStore(rand.New(rand.NewPCG(3, 3)), []*ZSet{a, b}, []float64{2, 3}, Sum)
	score, ok := out.Score("x")
	if !ok {
		t.Fatalf("x should be present in the intersection")
	}
	if want := 2*1 + 3*10; score != float64(want) {
		t.Fatalf("Score(x) = %v, want %v", score, want)
	}
	if out.Card() != 1 {
		t.Fatalf("Card() = %d, want 1 (only x is in both)", out.Card())
	}
}

func TestUnionStoreSum(t *testing.T) {
	a := newTestSet()
	a.Add(1, "x")
	b := newTestSet()
	b.Add(5, "x")
	b.Add(7, "y")

	out := UnionStore(rand.New(rand.NewPCG(4, 4)), []*ZSet{a, b}, nil, Sum)
	if out.Card() != 2 {
		t.Fatalf("Card() = %d, want 2", out.Card())
	}
	score, _ := out.Score("x")
	if score != 6 {
		t.Fatalf("Score(x) = %v, want 6", score)
	}
}

func TestRank(t *testing.T) {
	z := newTestSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(3, "c")
	if r, ok := z.Rank("b"); !ok || r != 1 {
		t.Fatalf("Rank(b) = %d, %v, want 1, true", r, ok)
	}
}

func TestRemRangeByScore(t *testing.T) {
	z := newTestSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(3, "c")
	if got := z.RemRangeByScore(1, false, 3, true); got != 2 {
		t.Fatalf("RemRangeByScore = %d, want 2", got)
	}
	if z.Card() != 1 {
		t.Fatalf("Card() = %d, want 1", z.Card())
	}
}
