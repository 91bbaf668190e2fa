package hashtable

import (
	"fmt"
	"testing"

	"github.com/bxcodec/faker/v4"
)

func TestSetGetRoundTrip(t *testing.T) {
	tb := New(1)
	tb.Set("a", 1)
	v, ok := tb.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("Get(a) = %v, %v, want 1, true", v, ok)
	}
}

func TestDelIsIdempotent(t *testing.T) {
	tb := New(1)
	tb.Set("a", 1)
	if _, ok := tb.Del("a"); !ok {
		t.Fatalf("first Del(a) should report present")
	}
	if _, ok := tb.Del("a"); ok {
		t.Fatalf("second Del(a) should report absent")
	}
}

func TestCardinalityMatchesKeys(t *testing.T) {
	tb := New(1)
	for i := 0; i < 500; i++ {
		tb.Set(fmt.Sprintf("key-%d", i), i)
	}
	if got, want := len(tb.Keys()), tb.Len(); got != want {
		t.Fatalf("len(Keys()) = %d, Len() = %d", got, want)
	}
	if tb.Len() != 500 {
		t.Fatalf("Len() = %d, want 500", tb.Len())
	}
}

func TestRehashStability(t *testing.T) {
	tb := New(1)
	const n = 10000
	for i := 0; i < n; i++ {
		tb.Set(fmt.Sprintf("k%d", i), i)
	}
	// Every previously set key must still resolve to its value, whether
	// or not a rehash is in flight.
	for i := 0; i < n; i++ {
		v, ok := tb.Get(fmt.Sprintf("k%d", i))
		if !ok || v.(int) != i {
			t.Fatalf("Get(k%d) = %v, %v, want %d, true", i, v, ok, i)
		}
	}
	if tb.Len() != n {
		t.Fatalf("Len() = %d, want %d", tb.Len(), n)
	}
}

func TestRehashCompletesWithinSize0Dispatches(t *testing.T) {
	tb := New(1)
	const n = 2000
	for i := 0; i < n; i++ {
		tb.Set(fmt.Sprintf("k%d", i), i)
	}
	if tb.RehashingIndex() == -1 {
		// Already settled; nothing to observe.
		return
	}
	steps := 0
	size0 := tb.size0
	for tb.RehashingIndex() != -1 {
		tb.maintain()
		steps++
		if steps > size0 {
			t.Fatalf("rehash did not complete within size0 (%d) dispatches", size0)
		}
	}
}

func TestRenameMissingSourceFails(t *testing.T) {
	tb := New(1)
	if tb.Rename("absent", "new") {
		t.Fatalf("Rename on absent source should fail")
	}
}

func TestFakerBulkKeysSurviveRehash(t *testing.T) {
	tb := New(42)
	keys := make([]string, 0, 5000)
	for i := 0; i < 5000; i++ {
		k := faker.Username() + fmt.Sprintf("-%d", i)
		keys = append(keys, k)
		tb.Set(k, i)
	}
	for i, k := range keys {
		v, ok := tb.Get(k)
		if !ok || v.(int) != i {
			t.Fatalf("Get(%q) = %v, %v, want %d, true", k, v, ok, i)
		}
	}
}
