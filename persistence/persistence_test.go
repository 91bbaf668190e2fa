package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zond/kivi/list"
	"github.com/zond/kivi/value"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")

	data := map[string]value.Value{
		"str":  value.NewString("v"),
		"list": value.NewList(list.FromStrings([]string{"a", "b", "c"})),
	}
	keys := []string{"str", "list"}
	err := Save(path, keys, func(k string) (value.Value, bool) {
		v, ok := data[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}

	got := map[string]value.Value{}
	if err := Load(path, func(k string, v value.Value) { got[k] = v }); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if got["str"].ExtractString() != "v" {
		t.Errorf("str = %q, want v", got["str"].ExtractString())
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got["list"].ExtractList().Strings()); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	if err := Load(filepath.Join(dir, "missing.json"), func(string, value.Value) {
		t.Fatal("set should not be called")
	}); err != nil {
		t.Fatalf("Load() on a missing file = %v, want nil", err)
	}
}

func TestSaveSkipsHashesAndSortedSets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	keys := []string{"h"}
	err := Save(path, keys, func(k string) (value.Value, bool) {
		return value.NewHash(map[string]string{"f": "v"}), true
	})
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	called := false
	if err := Load(path, func(string, value.Value) { called = true }); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if called {
		t.Fatalf("a persisted hash should have been skipped, not loaded back")
	}
}
