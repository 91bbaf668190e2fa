// Package command implements the per-action handlers the worker
// dispatches: one function per command, each reading arguments
// positionally from the request and producing a reply Value.
package command

import (
	"math/rand/v2"
	"strconv"

	"github.com/zond/kivi"
	"github.com/zond/kivi/hashtable"
	"github.com/zond/kivi/list"
	"github.com/zond/kivi/request"
	"github.com/zond/kivi/value"
	"github.com/zond/kivi/zset"
)

// Bit-exact error tokens; part of the external contract.
const (
	errDatabaseClosed = "ERR database is closed"
	errWrongArgs       = "ERR wrong arguments "
	errWrongType       = "WRONGTYPE Operation against a key holding the wrong kind of value"
	errNoSuchKey       = "ERR no such key"
	errSyntax          = "ERR syntax error"
	errUnknownCommand  = "ERR unknown command"
)

// SaveFunc persists the current key space. It is supplied by the store
// package, which owns the snapshot path; the shutdown action calls it
// too before the worker stops.
type SaveFunc func() error

// Dispatcher holds everything a handler needs to execute one request:
// the key space, the sorted-set PRNG, and the admin hooks.
type Dispatcher struct {
	Keyspace *hashtable.Keyspace
	Rand     *rand.Rand
	Save     SaveFunc

	// Dirty tracks keys touched by a mutating command since the last
	// successful save, so save can skip writing an unchanged snapshot.
	Dirty kivi.Set[string]
}

func (d *Dispatcher) markDirty(key string) {
	if d.Dirty == nil {
		d.Dirty = kivi.Set[string]{}
	}
	d.Dirty.Add(key)
}

// Dispatch executes req and returns its reply payload, plus whether
// this was a shutdown request (the queue stops after one).
func (d *Dispatcher) Dispatch(req *request.Request) (value.Value, bool) {
	switch req.Action {
	case request.Get:
		return d.get(req), false
	case request.Set:
		return d.set(req), false
	case request.Del:
		return d.del(req), false
	case request.Rename:
		return d.rename(req), false
	case request.LPush:
		return d.push(req, true), false
	case request.RPush:
		return d.push(req, false), false
	case request.LPop:
		return d.pop(req, true), false
	case request.RPop:
		return d.pop(req, false), false
	case request.LLen:
		return d.llen(req), false
	case request.LRange:
		return d.lrange(req), false
	case request.HGet:
		return d.hget(req), false
	case request.HSet:
		return d.hset(req), false
	case request.HDel:
		return d.hdel(req), false
	case request.HIncrBy:
		return d.hincrby(req), false
	case request.ZAdd:
		return d.zadd(req), false
	case request.ZScore:
		return d.zscore(req), false
	case request.ZCard:
		return d.zcard(req), false
	case request.ZCount:
		return d.zcount(req), false
	case request.ZRange:
		return d.zrange(req), false
	case request.ZRangeByScore:
		return d.zrangebyscore(req), false
	case request.ZRank:
		return d.zrank(req), false
	case request.ZRem:
		return d.zrem(req), false
	case request.ZRemRangeByScore:
		return d.zremrangebyscore(req), false
	case request.ZInterStore:
		return d.zinterstore(req), false
	case request.ZUnionStore:
		return d.zunionstore(req), false
	case request.Expire:
		return d.expire(req), false
	case request.Keys:
		return d.keys(req), false
	case request.FlushAll:
		return d.flushall(req), false
	case request.Save:
		return d.save(req), false
	case request.Info:
		return d.info(req), false
	case request.Shutdown:
		v := d.save(req)
		return v, true
	default:
		return value.NewError(errUnknownCommand), false
	}
}

func wrongArgs() value.Value { return value.NewError(errWrongArgs) }

func (d *Dispatcher) get(req *request.Request) value.Value {
	if len(req.Args) != 1 {
		return wrongArgs()
	}
	v, ok := d.Keyspace.Get(req.Arg(0).ExtractString())
	if !ok {
		return value.Null_()
	}
	return v
}

func (d *Dispatcher) set(req *request.Request) value.Value {
	if len(req.Args) != 2 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	d.Keyspace.Set(key, req.Arg(1))
	d.markDirty(key)
	return value.NewBool(true)
}

func (d *Dispatcher) del(req *request.Request) value.Value {
	if len(req.Args) == 0 {
		return wrongArgs()
	}
	var removed int32
	for _, a := range req.Args {
		key := a.ExtractString()
		if d.Keyspace.Del(key) {
			removed++
			d.markDirty(key)
		}
	}
	return value.NewInt(removed)
}

func (d *Dispatcher) rename(req *request.Request) value.Value {
	if len(req.Args) != 2 {
		return wrongArgs()
	}
	from, to := req.Arg(0).ExtractString(), req.Arg(1).ExtractString()
	if !d.Keyspace.Rename(from, to) {
		return value.NewError(errNoSuchKey)
	}
	d.markDirty(from)
	d.markDirty(to)
	return value.NewBool(true)
}

func (d *Dispatcher) push(req *request.Request, left bool) value.Value {
	if len(req.Args) < 2 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	existing, ok := d.Keyspace.Get(key)
	var l *list.List
	if ok {
		if !existing.IsList() {
			return value.NewError(errWrongType)
		}
		l = existing.ExtractList()
	} else {
		l = list.NewList()
	}
	nodes := make([]*list.Node, 0, len(req.Args)-1)
	for _, a := range req.Args[1:] {
		nodes = append(nodes, list.New(a.ExtractString()))
	}
	if left {
		l.LPush(nodes...)
	} else {
		l.RPush(nodes...)
	}
	d.Keyspace.SetKeepTTL(key, value.NewList(l))
	d.markDirty(key)
	return value.NewInt(int32(l.Len()))
}

func (d *Dispatcher) pop(req *request.Request, left bool) value.Value {
	if len(req.Args) < 1 || len(req.Args) > 2 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	existing, ok := d.Keyspace.Get(key)
	if !ok {
		return value.Null_()
	}
	if !existing.IsList() {
		return value.NewError(errWrongType)
	}
	l := existing.ExtractList()

	count := 1
	multi := len(req.Args) == 2
	if multi {
		count = int(value.StringToUint(req.Arg(1)).ExtractUint())
	}

	var popped []*list.Node
	if left {
		popped = l.LPopN(count)
	} else {
		popped = l.RPopN(count)
	}
	d.Keyspace.SetKeepTTL(key, value.NewList(l))
	d.markDirty(key)

	if !multi {
		if len(popped) == 0 {
			return value.Null_()
		}
		return value.NewString(popped[0].Data)
	}
	strs := make([]string, len(popped))
	for i, n := range popped {
		strs[i] = n.Data
	}
	return value.NewList(list.FromStrings(strs))
}

func (d *Dispatcher) llen(req *request.Request) value.Value {
	if len(req.Args) != 1 {
		return wrongArgs()
	}
	existing, ok := d.Keyspace.Get(req.Arg(0).ExtractString())
	if !ok {
		return value.NewInt(0)
	}
	if !existing.IsList() {
		return value.NewError(errWrongType)
	}
	return value.NewInt(int32(existing.ExtractList().Len()))
}

func (d *Dispatcher) lrange(req *request.Request) value.Value {
	if len(req.Args) != 3 {
		return wrongArgs()
	}
	existing, ok := d.Keyspace.Get(req.Arg(0).ExtractString())
	if !ok {
		return value.NewList(list.NewList())
	}
	if !existing.IsList() {
		return value.NewError(errWrongType)
	}
	start := int(value.StringToInt(req.Arg(1)).ExtractInt())
	stop := clampMaxIndex(req.Arg(2))
	strs, ok := existing.ExtractList().Range(start, stop)
	if !ok {
		return value.NewList(list.NewList())
	}
	return value.NewList(list.FromStrings(strs))
}

func clampMaxIndex(v value.Value) int {
	s := v.ExtractString()
	if s == "max" {
		return list.MaxIndex
	}
	return int(value.StringToInt(v).ExtractInt())
}

func (d *Dispatcher) hget(req *request.Request) value.Value {
	if len(req.Args) != 2 {
		return wrongArgs()
	}
	existing, ok := d.Keyspace.Get(req.Arg(0).ExtractString())
	if !ok {
		return value.Null_()
	}
	if !existing.IsHash() {
		return value.NewError(errWrongType)
	}
	v, found := existing.ExtractHash()[req.Arg(1).ExtractString()]
	if !found {
		return value.Null_()
	}
	return value.NewString(v)
}

func (d *Dispatcher) hset(req *request.Request) value.Value {
	if len(req.Args) < 3 || len(req.Args)%2 != 1 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	existing, ok := d.Keyspace.Get(key)
	var h map[string]string
	if ok {
		if !existing.IsHash() {
			return value.NewError(errWrongType)
		}
		h = existing.ExtractHash()
	} else {
		h = map[string]string{}
	}
	var added int32
	for i := 1; i+1 < len(req.Args); i += 2 {
		field := req.Args[i].ExtractString()
		if _, exists := h[field]; !exists {
			added++
		}
		h[field] = req.Args[i+1].ExtractString()
	}
	d.Keyspace.SetKeepTTL(key, value.NewHash(h))
	d.markDirty(key)
	return value.NewInt(added)
}

func (d *Dispatcher) hdel(req *request.Request) value.Value {
	if len(req.Args) < 2 {
		return wrongArgs()
	}
	existing, ok := d.Keyspace.Get(req.Arg(0).ExtractString())
	if !ok {
		return value.NewInt(0)
	}
	if !existing.IsHash() {
		return value.NewError(errWrongType)
	}
	h := existing.ExtractHash()
	var removed int32
	for _, a := range req.Args[1:] {
		field := a.ExtractString()
		if _, found := h[field]; found {
			delete(h, field)
			removed++
		}
	}
	hkey := req.Arg(0).ExtractString()
	d.Keyspace.SetKeepTTL(hkey, value.NewHash(h))
	d.markDirty(hkey)
	return value.NewInt(removed)
}

func (d *Dispatcher) hincrby(req *request.Request) value.Value {
	if len(req.Args) != 2 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	delta := int64(value.StringToInt(req.Arg(1)).ExtractInt())
	n, wrongType := d.Keyspace.HIncrBy(key, delta)
	if wrongType {
		return value.NewError(errWrongType)
	}
	d.markDirty(key)
	return value.NewInt(int32(n))
}

func (d *Dispatcher) getZSet(key string) (*zset.ZSet, bool, value.Value) {
	existing, ok := d.Keyspace.Get(key)
	if !ok {
		return nil, false, value.Value{}
	}
	if !existing.IsSortedSet() {
		return nil, false, value.NewError(errWrongType)
	}
	return existing.ExtractSortedSet().(*zset.ZSet), true, value.Value{}
}

func (d *Dispatcher) zadd(req *request.Request) value.Value {
	if len(req.Args) != 3 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	z, found, errv := d.getZSet(key)
	if errv.IsError() {
		return errv
	}
	if !found {
		z = zset.New(d.Rand)
	}
	f := parseFloat(req.Arg(1).ExtractString())
	card := z.Add(f, req.Arg(2).ExtractString())
	d.Keyspace.SetKeepTTL(key, value.NewSortedSet(z))
	d.markDirty(key)
	return value.NewInt(int32(card))
}

func (d *Dispatcher) zscore(req *request.Request) value.Value {
	if len(req.Args) != 2 {
		return wrongArgs()
	}
	z, found, errv := d.getZSet(req.Arg(0).ExtractString())
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.Null_()
	}
	s, ok := z.Score(req.Arg(1).ExtractString())
	if !ok {
		return value.Null_()
	}
	return value.NewDouble(s)
}

func (d *Dispatcher) zcard(req *request.Request) value.Value {
	if len(req.Args) != 1 {
		return wrongArgs()
	}
	z, found, errv := d.getZSet(req.Arg(0).ExtractString())
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.NewInt(0)
	}
	return value.NewInt(int32(z.Card()))
}

func (d *Dispatcher) zcount(req *request.Request) value.Value {
	if len(req.Args) != 5 {
		return wrongArgs()
	}
	z, found, errv := d.getZSet(req.Arg(0).ExtractString())
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.NewInt(0)
	}
	min, inclMin, max, inclMax := parseRange(req, 1)
	return value.NewInt(int32(z.Count(min, inclMin, max, inclMax)))
}

func (d *Dispatcher) zrange(req *request.Request) value.Value {
	if len(req.Args) < 3 {
		return wrongArgs()
	}
	z, found, errv := d.getZSet(req.Arg(0).ExtractString())
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.NewList(list.NewList())
	}
	start := int(value.StringToInt(req.Arg(1)).ExtractInt())
	stop := clampMaxIndex(req.Arg(2))
	withScores := len(req.Args) == 4 && req.Arg(3).ExtractString() == "withscores"
	return pairsToList(z.Range(start, stop), withScores)
}

func (d *Dispatcher) zrangebyscore(req *request.Request) value.Value {
	if len(req.Args) < 5 {
		return wrongArgs()
	}
	z, found, errv := d.getZSet(req.Arg(0).ExtractString())
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.NewList(list.NewList())
	}
	min, inclMin, max, inclMax := parseRange(req, 1)
	withScores := len(req.Args) == 6 && req.Arg(5).ExtractString() == "withscores"
	return pairsToList(z.RangeByScore(min, inclMin, max, inclMax), withScores)
}

func (d *Dispatcher) zrank(req *request.Request) value.Value {
	if len(req.Args) < 2 {
		return wrongArgs()
	}
	z, found, errv := d.getZSet(req.Arg(0).ExtractString())
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.Null_()
	}
	rank, ok := z.Rank(req.Arg(1).ExtractString())
	if !ok {
		return value.Null_()
	}
	withScores := len(req.Args) == 3 && req.Arg(2).ExtractString() == "withscores"
	if !withScores {
		return value.NewInt(int32(rank))
	}
	score, _ := z.Score(req.Arg(1).ExtractString())
	return value.NewList(list.FromStrings([]string{itoa(rank), ftoa(score)}))
}

func (d *Dispatcher) zrem(req *request.Request) value.Value {
	if len(req.Args) < 2 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	z, found, errv := d.getZSet(key)
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.NewInt(0)
	}
	var removed int32
	for _, a := range req.Args[1:] {
		if z.Rem(a.ExtractString()) {
			removed++
		}
	}
	d.Keyspace.SetKeepTTL(key, value.NewSortedSet(z))
	d.markDirty(key)
	return value.NewInt(removed)
}

func (d *Dispatcher) zremrangebyscore(req *request.Request) value.Value {
	if len(req.Args) != 5 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	z, found, errv := d.getZSet(key)
	if errv.IsError() {
		return errv
	}
	if !found {
		return value.NewInt(0)
	}
	min, inclMin, max, inclMax := parseRange(req, 1)
	n := z.RemRangeByScore(min, inclMin, max, inclMax)
	d.Keyspace.SetKeepTTL(key, value.NewSortedSet(z))
	d.markDirty(key)
	return value.NewInt(int32(n))
}

func (d *Dispatcher) zinterstore(req *request.Request) value.Value {
	return d.zcombine(req, zset.InterStore)
}

func (d *Dispatcher) zunionstore(req *request.Request) value.Value {
	return d.zcombine(req, zset.UnionStore)
}

type combineFunc func(rnd *rand.Rand, sets []*zset.ZSet, weights []float64, agg zset.Aggregate) *zset.ZSet

func (d *Dispatcher) zcombine(req *request.Request, combine combineFunc) value.Value {
	// destination, n, key1..keyN, [weights w1..wN], [aggregate SUM|MIN|MAX]
	if len(req.Args) < 3 {
		return wrongArgs()
	}
	dest := req.Arg(0).ExtractString()
	n := int(value.StringToUint(req.Arg(1)).ExtractUint())
	if n <= 0 || len(req.Args) < 2+n {
		return wrongArgs()
	}
	sets := make([]*zset.ZSet, 0, n)
	for i := 0; i < n; i++ {
		z, found, errv := d.getZSet(req.Arg(2 + i).ExtractString())
		if errv.IsError() {
			return errv
		}
		if !found {
			z = zset.New(d.Rand)
		}
		sets = append(sets, z)
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	agg := zset.Sum
	rest := req.Args[2+n:]
	i := 0
	for i < len(rest) {
		switch rest[i].ExtractString() {
		case "weights":
			for j := 0; j < n && i+1+j < len(rest); j++ {
				weights[j] = parseFloat(rest[i+1+j].ExtractString())
			}
			i += 1 + n
		case "aggregate":
			if i+1 < len(rest) {
				switch rest[i+1].ExtractString() {
				case "min":
					agg = zset.Min
				case "max":
					agg = zset.Max
				default:
					agg = zset.Sum
				}
			}
			i += 2
		default:
			return value.NewError(errSyntax)
		}
	}

	out := combine(d.Rand, sets, weights, agg)
	d.Keyspace.SetKeepTTL(dest, value.NewSortedSet(out))
	d.markDirty(dest)
	return value.NewInt(int32(out.Card()))
}

func (d *Dispatcher) expire(req *request.Request) value.Value {
	if len(req.Args) != 2 {
		return wrongArgs()
	}
	key := req.Arg(0).ExtractString()
	seconds := int64(value.StringToUint(req.Arg(1)).ExtractUint())
	if d.Keyspace.Expire(key, seconds) {
		d.markDirty(key)
		return value.NewInt(1)
	}
	return value.NewInt(0)
}

func (d *Dispatcher) keys(req *request.Request) value.Value {
	if len(req.Args) != 0 {
		return wrongArgs()
	}
	return value.NewList(list.FromStrings(d.Keyspace.Keys()))
}

func (d *Dispatcher) flushall(req *request.Request) value.Value {
	for _, k := range d.Keyspace.Keys() {
		d.Keyspace.Del(k)
		d.markDirty(k)
	}
	return value.NewBool(true)
}

func (d *Dispatcher) save(req *request.Request) value.Value {
	if d.Save == nil || len(d.Dirty) == 0 {
		return value.NewBool(true)
	}
	if err := d.Save(); err != nil {
		return value.NewError(errSyntax)
	}
	d.Dirty = nil
	return value.NewBool(true)
}

func (d *Dispatcher) info(req *request.Request) value.Value {
	return value.NewUint(uint32(d.Keyspace.Len()))
}

// parseFloat reads a score argument; malformed input parses as 0 (the
// caller already guarded the argument count, not its numeric shape).
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseRange reads the four-token (min, inclMin, max, inclMax) range
// encoding shared by zcount/zrangebyscore/zremrangebyscore, starting at
// idx. The inclusivity tokens are the literal strings "inclusive" or
// "exclusive"; anything else is treated as inclusive.
func parseRange(req *request.Request, idx int) (min float64, inclMin bool, max float64, inclMax bool) {
	min = parseFloat(req.Arg(idx).ExtractString())
	inclMin = req.Arg(idx+1).ExtractString() != "exclusive"
	max = parseFloat(req.Arg(idx + 2).ExtractString())
	inclMax = req.Arg(idx+3).ExtractString() != "exclusive"
	return
}

func itoa(i int) string { return strconv.Itoa(i) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// pairsToList renders zset pairs as a list Value, optionally
// interleaving each member with its score as a string.
func pairsToList(pairs []zset.Pair, withScores bool) value.Value {
	strs := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		strs = append(strs, p.Member)
		if withScores {
			strs = append(strs, ftoa(p.Score))
		}
	}
	return value.NewList(list.FromStrings(strs))
}
