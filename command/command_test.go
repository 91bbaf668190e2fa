package command

import (
	"math/rand/v2"
	"testing"

	"github.com/zond/kivi/hashtable"
	"github.com/zond/kivi/request"
	"github.com/zond/kivi/value"
)

func newDispatcher() *Dispatcher {
	return &Dispatcher{
		Keyspace: hashtable.NewKeyspace(1),
		Rand:     rand.New(rand.NewPCG(1, 1)),
	}
}

func dispatch(d *Dispatcher, action request.Action, args ...value.Value) value.Value {
	req := request.New(action).Append(args...)
	v, _ := d.Dispatch(req)
	return v
}

func TestSetGetDel(t *testing.T) {
	d := newDispatcher()

	dispatch(d, request.Set, value.NewString("k"), value.NewString("v"))
	got := dispatch(d, request.Get, value.NewString("k"))
	if !got.IsString() || got.ExtractString() != "v" {
		t.Fatalf("Get = %v, want string v", got)
	}

	removed := dispatch(d, request.Del, value.NewString("k"))
	if removed.ExtractInt() != 1 {
		t.Fatalf("Del = %v, want 1", removed)
	}

	miss := dispatch(d, request.Get, value.NewString("k"))
	if !miss.IsNull() {
		t.Fatalf("Get after Del = %v, want null", miss)
	}
}

func TestGetWrongArgCount(t *testing.T) {
	d := newDispatcher()
	got := dispatch(d, request.Get)
	if !got.IsError() || got.ExtractError() != errWrongArgs {
		t.Fatalf("Get with no args = %v, want %q", got, errWrongArgs)
	}
}

func TestRenameMissingKey(t *testing.T) {
	d := newDispatcher()
	got := dispatch(d, request.Rename, value.NewString("a"), value.NewString("b"))
	if !got.IsError() || got.ExtractError() != errNoSuchKey {
		t.Fatalf("Rename missing = %v, want %q", got, errNoSuchKey)
	}
}

func TestListPushPopLenRange(t *testing.T) {
	d := newDispatcher()
	dispatch(d, request.RPush, value.NewString("l"), value.NewString("a"), value.NewString("b"), value.NewString("c"))

	length := dispatch(d, request.LLen, value.NewString("l"))
	if length.ExtractInt() != 3 {
		t.Fatalf("LLen = %v, want 3", length)
	}

	popped := dispatch(d, request.LPop, value.NewString("l"))
	if popped.ExtractString() != "a" {
		t.Fatalf("LPop = %v, want a", popped)
	}

	r := dispatch(d, request.LRange, value.NewString("l"), value.NewString("0"), value.NewString("max"))
	strs := r.ExtractList().Strings()
	if len(strs) != 2 || strs[0] != "b" || strs[1] != "c" {
		t.Fatalf("LRange = %v, want [b c]", strs)
	}
}

func TestListWrongType(t *testing.T) {
	d := newDispatcher()
	dispatch(d, request.Set, value.NewString("s"), value.NewString("v"))
	got := dispatch(d, request.LLen, value.NewString("s"))
	if !got.IsError() || got.ExtractError() != errWrongType {
		t.Fatalf("LLen against a string = %v, want %q", got, errWrongType)
	}
}

func TestHashSetGetDel(t *testing.T) {
	d := newDispatcher()
	added := dispatch(d, request.HSet, value.NewString("h"), value.NewString("f1"), value.NewString("v1"), value.NewString("f2"), value.NewString("v2"))
	if added.ExtractInt() != 2 {
		t.Fatalf("HSet added = %v, want 2", added)
	}

	got := dispatch(d, request.HGet, value.NewString("h"), value.NewString("f1"))
	if got.ExtractString() != "v1" {
		t.Fatalf("HGet f1 = %v, want v1", got)
	}

	removed := dispatch(d, request.HDel, value.NewString("h"), value.NewString("f1"))
	if removed.ExtractInt() != 1 {
		t.Fatalf("HDel = %v, want 1", removed)
	}
}

func TestZAddZScoreZRange(t *testing.T) {
	d := newDispatcher()
	dispatch(d, request.ZAdd, value.NewString("z"), value.NewString("3"), value.NewString("charlie"))
	dispatch(d, request.ZAdd, value.NewString("z"), value.NewString("1"), value.NewString("alice"))
	dispatch(d, request.ZAdd, value.NewString("z"), value.NewString("2"), value.NewString("bob"))

	card := dispatch(d, request.ZCard, value.NewString("z"))
	if card.ExtractInt() != 3 {
		t.Fatalf("ZCard = %v, want 3", card)
	}

	score := dispatch(d, request.ZScore, value.NewString("z"), value.NewString("bob"))
	if score.ExtractDouble() != 2 {
		t.Fatalf("ZScore bob = %v, want 2", score)
	}

	r := dispatch(d, request.ZRange, value.NewString("z"), value.NewString("0"), value.NewString("max"))
	members := r.ExtractList().Strings()
	want := []string{"alice", "bob", "charlie"}
	for i, m := range want {
		if members[i] != m {
			t.Fatalf("ZRange[%d] = %q, want %q (full: %v)", i, members[i], m, members)
		}
	}
}

func TestZInterStoreAndZUnionStore(t *testing.T) {
	d := newDispatcher()
	dispatch(d, request.ZAdd, value.NewString("a"), value.NewString("1"), value.NewString("x"))
	dispatch(d, request.ZAdd, value.NewString("a"), value.NewString("2"), value.NewString("y"))
	dispatch(d, request.ZAdd, value.NewString("b"), value.NewString("5"), value.NewString("y"))
	dispatch(d, request.ZAdd, value.NewString("b"), value.NewString("7"), value.NewString("z"))

	card := dispatch(d, request.ZInterStore, value.NewString("dest"), value.NewString("2"), value.NewString("a"), value.NewString("b"))
	if card.ExtractInt() != 1 {
		t.Fatalf("ZInterStore card = %v, want 1", card)
	}
	score := dispatch(d, request.ZScore, value.NewString("dest"), value.NewString("y"))
	if score.ExtractDouble() != 7 {
		t.Fatalf("ZScore y in dest = %v, want 7 (2+5)", score)
	}

	ucard := dispatch(d, request.ZUnionStore, value.NewString("udest"), value.NewString("2"), value.NewString("a"), value.NewString("b"))
	if ucard.ExtractInt() != 3 {
		t.Fatalf("ZUnionStore card = %v, want 3", ucard)
	}
}

func TestExpirePresentAndMissingKey(t *testing.T) {
	d := newDispatcher()
	dispatch(d, request.Set, value.NewString("k"), value.NewString("v"))
	result := dispatch(d, request.Expire, value.NewString("k"), value.NewString("100"))
	if result.ExtractInt() != 1 {
		t.Fatalf("Expire = %v, want 1", result)
	}
	missing := dispatch(d, request.Expire, value.NewString("absent"), value.NewString("100"))
	if missing.ExtractInt() != 0 {
		t.Fatalf("Expire on missing key = %v, want 0", missing)
	}
}

func TestKeysAndFlushall(t *testing.T) {
	d := newDispatcher()
	dispatch(d, request.Set, value.NewString("a"), value.NewString("1"))
	dispatch(d, request.Set, value.NewString("b"), value.NewString("2"))

	keys := dispatch(d, request.Keys)
	if len(keys.ExtractList().Strings()) != 2 {
		t.Fatalf("Keys = %v, want 2 entries", keys.ExtractList().Strings())
	}

	dispatch(d, request.FlushAll)
	keys = dispatch(d, request.Keys)
	if len(keys.ExtractList().Strings()) != 0 {
		t.Fatalf("Keys after FlushAll = %v, want empty", keys.ExtractList().Strings())
	}
}

func TestShutdownStopsWorker(t *testing.T) {
	d := newDispatcher()
	req := request.New(request.Shutdown)
	_, stop := d.Dispatch(req)
	if !stop {
		t.Fatal("Dispatch(Shutdown) should report stop=true")
	}
}

func TestUnknownAction(t *testing.T) {
	d := newDispatcher()
	got := dispatch(d, request.Action(9999))
	if !got.IsError() || got.ExtractError() != errUnknownCommand {
		t.Fatalf("unknown action = %v, want %q", got, errUnknownCommand)
	}
}
