package hashtable

import (
	"strconv"
	"time"

	"github.com/zond/kivi/value"
)

// Keyspace pairs a primary table of Values with a sibling table of
// expiration deadlines (Unix seconds), and implements the documented
// key-space operations: every accessor consults the expiration table
// first and evicts logically-expired keys lazily.
type Keyspace struct {
	primary *Table
	expires *Table
}

// NewKeyspace returns an empty keyspace. Both tables share seed so a
// fixed seed configuration is reproducible end to end.
func NewKeyspace(seed uint32) *Keyspace {
	return &Keyspace{
		primary: New(seed),
		expires: New(seed),
	}
}

func (k *Keyspace) isExpired(key string) bool {
	v, ok := k.expires.Get(key)
	if !ok {
		return false
	}
	deadline := v.(int64)
	return deadline <= time.Now().Unix()
}

// evictIfExpired removes key from both tables if its deadline has
// passed, returning whether it was evicted.
func (k *Keyspace) evictIfExpired(key string) bool {
	if !k.isExpired(key) {
		return false
	}
	k.primary.Del(key)
	k.expires.Del(key)
	return true
}

// Get returns the Value at key, consulting expiration first.
func (k *Keyspace) Get(key string) (value.Value, bool) {
	k.evictIfExpired(key)
	v, ok := k.primary.Get(key)
	if !ok {
		return value.Value{}, false
	}
	return v.(value.Value), true
}

// Has reports whether Get would return present.
func (k *Keyspace) Has(key string) bool {
	_, ok := k.Get(key)
	return ok
}

// Set installs v under key and clears any existing TTL (Redis
// semantics; see the resolved Open Questions in SPEC_FULL.md §11).
func (k *Keyspace) Set(key string, v value.Value) {
	k.primary.Set(key, v)
	k.expires.Del(key)
}

// SetKeepTTL installs v under key without disturbing an existing
// expiration entry. Used by Rename, HIncrBy, and the command handlers
// that update a list, hash, or sorted set in place.
func (k *Keyspace) SetKeepTTL(key string, v value.Value) {
	k.primary.Set(key, v)
}

// Del removes key from both tables, reporting whether it was present.
func (k *Keyspace) Del(key string) bool {
	k.evictIfExpired(key)
	_, ok := k.primary.Del(key)
	k.expires.Del(key)
	return ok
}

// Rename moves oldKey to newKey, preserving any TTL, and reports false
// ("no such key") when oldKey is absent or already logically expired.
func (k *Keyspace) Rename(oldKey, newKey string) bool {
	if k.evictIfExpired(oldKey) {
		return false
	}
	v, ok := k.primary.Get(oldKey)
	if !ok {
		return false
	}
	var deadline any
	var hadTTL bool
	deadline, hadTTL = k.expires.Get(oldKey)

	k.primary.Del(oldKey)
	k.expires.Del(oldKey)
	k.SetKeepTTL(newKey, v.(value.Value))
	if hadTTL {
		k.expires.Set(newKey, deadline)
	}
	return true
}

// Expire sets key's TTL to seconds from now, reporting false if key is
// absent.
func (k *Keyspace) Expire(key string, seconds int64) bool {
	if !k.Has(key) {
		return false
	}
	k.expires.Set(key, time.Now().Unix()+seconds)
	return true
}

// HIncrBy parses the String at key as a signed integer, adds delta, and
// stores the result back as a String, creating the key at delta if
// absent. wrongType is true when the existing value is not a String or
// does not parse as an integer.
func (k *Keyspace) HIncrBy(key string, delta int64) (result int64, wrongType bool) {
	existing, found := k.Get(key)
	if !found {
		k.Set(key, value.NewString(strconv.FormatInt(delta, 10)))
		return delta, false
	}
	if !existing.IsString() {
		return 0, true
	}
	n, err := strconv.ParseInt(existing.ExtractString(), 10, 64)
	if err != nil {
		return 0, true
	}
	n += delta
	k.SetKeepTTL(key, value.NewString(strconv.FormatInt(n, 10)))
	return n, false
}

// Keys returns every non-expired key, evicting any it finds expired
// along the way.
func (k *Keyspace) Keys() []string {
	all := k.primary.Keys()
	out := make([]string, 0, len(all))
	for _, key := range all {
		if k.evictIfExpired(key) {
			continue
		}
		out = append(out, key)
	}
	return out
}

// Len reports the live key count (including not-yet-swept expired
// keys, matching the primary table's raw cardinality).
func (k *Keyspace) Len() int { return k.primary.Len() }

// MaintainExpires inspects one rolling bucket of the expiration table
// and evicts every key found expired within it. Called once per worker
// idle tick with a rolling bucket index.
func (k *Keyspace) MaintainExpires(bucketIndex int) {
	for _, key := range k.expires.Bucket0(bucketIndex) {
		k.evictIfExpired(key)
	}
}

// ExpirationBucketCount reports the bucket count to cycle
// MaintainExpires' rolling index through.
func (k *Keyspace) ExpirationBucketCount() int { return k.expires.Bucket0Count() }

// RehashingIndex exposes the primary table's rehash cursor, or -1 when
// the primary table is not rehashing.
func (k *Keyspace) RehashingIndex() int { return k.primary.RehashingIndex() }
