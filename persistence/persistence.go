// Package persistence implements JSON snapshot save/load for the
// store's primary key space: string values as JSON strings, list
// values as JSON arrays of strings. Hashes and sorted sets are not
// persisted.
package persistence

import (
	"os"
	"path/filepath"

	goccy "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/zond/kivi"
	"github.com/zond/kivi/list"
	"github.com/zond/kivi/value"
)

// Save serializes every string/list key in keys (via get) to path,
// written atomically through a temp file in the same directory
// followed by a rename.
func Save(path string, keys []string, get func(string) (value.Value, bool)) error {
	doc := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := get(k)
		if !ok {
			continue
		}
		switch v.Kind() {
		case value.String:
			doc[k] = v.ExtractString()
		case value.List:
			doc[k] = v.ExtractList().Strings()
		default:
			// Hashes and sorted sets are not part of the shipped
			// snapshot format.
		}
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return kivi.WithStack(err)
	}
	enc := goccy.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return kivi.WithStack(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return kivi.WithStack(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return kivi.WithStack(err)
	}
	return nil
}

// Load reads path, if it exists, and calls set for every recovered
// string or list key. A missing file is not an error: a fresh store
// starts empty. Unknown JSON shapes are skipped.
func Load(path string, set func(key string, v value.Value)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return kivi.WithStack(err)
	}

	var doc map[string]any
	if err := goccy.Unmarshal(data, &doc); err != nil {
		return kivi.WithStack(err)
	}

	for key, raw := range doc {
		switch v := raw.(type) {
		case string:
			set(key, value.NewString(v))
		case []any:
			strs := make([]string, 0, len(v))
			ok := true
			for _, elem := range v {
				s, isStr := elem.(string)
				if !isStr {
					ok = false
					break
				}
				strs = append(strs, s)
			}
			if ok {
				set(key, value.NewList(list.FromStrings(strs)))
			}
		}
	}
	return nil
}
