// Package store wires the key space, the sorted-set layer, the
// command dispatcher, and the single-writer worker into the store's
// public surface: Start/Shutdown lifecycle management plus a
// convenience API that submits requests and translates Error replies
// into Go errors.
package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/zond/kivi"
	"github.com/zond/kivi/command"
	"github.com/zond/kivi/hashtable"
	"github.com/zond/kivi/list"
	"github.com/zond/kivi/persistence"
	"github.com/zond/kivi/queue"
	"github.com/zond/kivi/request"
	"github.com/zond/kivi/value"
	"github.com/zond/kivi/zset"
)

// Store is the top-level façade: one keyspace, one worker, one
// snapshot path.
type Store struct {
	mu sync.Mutex

	cfg        kivi.Config
	keyspace   *hashtable.Keyspace
	dispatcher *command.Dispatcher
	q          *queue.Queue
	sweepIndex int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Store that has not yet been Started.
func New() *Store { return &Store{} }

// Start loads the configured snapshot (if any exists) and launches the
// worker goroutine. ctx governs the worker's lifetime; cancelling it
// (or calling Shutdown) stops the worker. Calling Start on a store whose
// worker is already running does nothing and returns nil.
func (s *Store) Start(ctx context.Context, cfg kivi.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.q != nil && s.q.Running() {
		return nil
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint32(time.Now().UnixNano())
	}
	s.cfg = cfg
	s.keyspace = hashtable.NewKeyspace(seed)
	s.sweepIndex = 0

	if err := persistence.Load(cfg.SnapshotPath, s.keyspace.Set); err != nil {
		return kivi.WithStack(err)
	}

	s.dispatcher = &command.Dispatcher{
		Keyspace: s.keyspace,
		Rand:     rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		Save: func() error {
			return persistence.Save(cfg.SnapshotPath, s.keyspace.Keys(), s.keyspace.Get)
		},
	}

	s.q = queue.New(s.dispatcher.Dispatch, s.sweepStep, queue.Backoff{
		Threshold: cfg.IdleThreshold,
		Ramp:      cfg.IdleRampDuration,
		Max:       cfg.IdleMaxSleep,
	})

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.q.Run(runCtx)
	}()

	return nil
}

// sweepStep runs one expiration-sweep tick across the configured
// number of rolling buckets. Called by the worker once per idle pass.
func (s *Store) sweepStep() {
	buckets := s.keyspace.ExpirationBucketCount()
	if buckets == 0 {
		return
	}
	n := s.cfg.ExpirationSweepBuckets
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		s.keyspace.MaintainExpires(s.sweepIndex % buckets)
		s.sweepIndex++
	}
}

// IsRunning reports whether the worker is still accepting requests.
func (s *Store) IsRunning() bool {
	s.mu.Lock()
	q := s.q
	s.mu.Unlock()
	return q != nil && q.Running()
}

// Shutdown asks the worker to persist a final snapshot and stop, then
// waits for its goroutine to exit.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	q := s.q
	cancel := s.cancel
	s.mu.Unlock()

	if q == nil {
		return nil
	}
	if q.Running() {
		if _, err := q.SubmitSync(ctx, request.New(request.Shutdown)); err != nil && !errors.Is(err, context.Canceled) {
			return kivi.WithStack(err)
		}
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Store) submit(ctx context.Context, action request.Action, args ...value.Value) (value.Value, error) {
	s.mu.Lock()
	q := s.q
	s.mu.Unlock()
	if q == nil || !q.Running() {
		return value.Value{}, kivi.ErrClosed
	}
	v, err := q.SubmitSync(ctx, request.New(action).Append(args...))
	if err != nil {
		return value.Value{}, kivi.WithStack(err)
	}
	if v.IsError() {
		return value.Value{}, translateError(v.ExtractError())
	}
	return v, nil
}

func translateError(msg string) error {
	switch msg {
	case "ERR database is closed":
		return kivi.ErrClosed
	case "ERR no such key":
		return kivi.ErrNoSuchKey
	case "WRONGTYPE Operation against a key holding the wrong kind of value":
		return kivi.ErrWrongType
	case "ERR wrong arguments ":
		return kivi.ErrWrongArgs
	case "ERR syntax error":
		return kivi.ErrSyntax
	case "ERR unknown command":
		return kivi.ErrUnknownCmd
	default:
		return errors.New(msg)
	}
}

func indexArg(i int) value.Value {
	if i == list.MaxIndex {
		return value.NewString("max")
	}
	return value.NewString(strconv.Itoa(i))
}

func rangeArgs(min float64, inclMin bool, max float64, inclMax bool) []value.Value {
	return []value.Value{
		value.NewString(strconv.FormatFloat(min, 'g', -1, 64)),
		inclusivityToken(inclMin),
		value.NewString(strconv.FormatFloat(max, 'g', -1, 64)),
		inclusivityToken(inclMax),
	}
}

func inclusivityToken(inclusive bool) value.Value {
	if inclusive {
		return value.NewString("inclusive")
	}
	return value.NewString("exclusive")
}

// Get returns key's string value, reporting false if the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.submit(ctx, request.Get, value.NewString(key))
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	return v.ExtractString(), true, nil
}

// Set installs val under key, clearing any existing TTL.
func (s *Store) Set(ctx context.Context, key, val string) error {
	_, err := s.submit(ctx, request.Set, value.NewString(key), value.NewString(val))
	return err
}

// Del removes every given key and returns how many were present.
func (s *Store) Del(ctx context.Context, keys ...string) (int32, error) {
	v, err := s.submit(ctx, request.Del, stringValues(keys)...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// Rename moves oldKey to newKey, preserving any TTL.
func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	_, err := s.submit(ctx, request.Rename, value.NewString(oldKey), value.NewString(newKey))
	return err
}

// LPush prepends values to the list at key, creating it if absent, and
// returns the list's new length.
func (s *Store) LPush(ctx context.Context, key string, values ...string) (int32, error) {
	v, err := s.submit(ctx, request.LPush, append([]value.Value{value.NewString(key)}, stringValues(values)...)...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// RPush appends values to the list at key, creating it if absent, and
// returns the list's new length.
func (s *Store) RPush(ctx context.Context, key string, values ...string) (int32, error) {
	v, err := s.submit(ctx, request.RPush, append([]value.Value{value.NewString(key)}, stringValues(values)...)...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// LPop removes and returns the head element of the list at key.
func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.submit(ctx, request.LPop, value.NewString(key))
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	return v.ExtractString(), true, nil
}

// LPopN removes and returns up to count elements from the head.
func (s *Store) LPopN(ctx context.Context, key string, count int) ([]string, error) {
	v, err := s.submit(ctx, request.LPop, value.NewString(key), value.NewString(strconv.Itoa(count)))
	if err != nil {
		return nil, err
	}
	return v.ExtractList().Strings(), nil
}

// RPop removes and returns the tail element of the list at key.
func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.submit(ctx, request.RPop, value.NewString(key))
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	return v.ExtractString(), true, nil
}

// RPopN removes and returns up to count elements from the tail.
func (s *Store) RPopN(ctx context.Context, key string, count int) ([]string, error) {
	v, err := s.submit(ctx, request.RPop, value.NewString(key), value.NewString(strconv.Itoa(count)))
	if err != nil {
		return nil, err
	}
	return v.ExtractList().Strings(), nil
}

// LLen returns the length of the list at key, or 0 if absent.
func (s *Store) LLen(ctx context.Context, key string) (int32, error) {
	v, err := s.submit(ctx, request.LLen, value.NewString(key))
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// LRange returns the elements of the list at key between start and
// stop, inclusive. Pass list.MaxIndex as stop to mean "to the end".
func (s *Store) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	v, err := s.submit(ctx, request.LRange, value.NewString(key), value.NewString(strconv.Itoa(start)), indexArg(stop))
	if err != nil {
		return nil, err
	}
	return v.ExtractList().Strings(), nil
}

// HGet returns a hash field's value, reporting false if the key or
// field is absent.
func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.submit(ctx, request.HGet, value.NewString(key), value.NewString(field))
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	return v.ExtractString(), true, nil
}

// HSet installs the given field/value pairs into the hash at key and
// returns how many fields were newly created.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) (int32, error) {
	args := []value.Value{value.NewString(key)}
	for field, val := range fields {
		args = append(args, value.NewString(field), value.NewString(val))
	}
	v, err := s.submit(ctx, request.HSet, args...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// HDel removes the given fields from the hash at key and returns how
// many were present.
func (s *Store) HDel(ctx context.Context, key string, fields ...string) (int32, error) {
	v, err := s.submit(ctx, request.HDel, append([]value.Value{value.NewString(key)}, stringValues(fields)...)...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// HIncrBy adds delta to the integer string stored at key, creating it
// at delta if absent, and returns the result.
func (s *Store) HIncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := s.submit(ctx, request.HIncrBy, value.NewString(key), value.NewString(strconv.FormatInt(delta, 10)))
	if err != nil {
		return 0, err
	}
	return int64(v.ExtractInt()), nil
}

// ZAdd inserts or updates member's score in the sorted set at key and
// returns the set's new cardinality.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) (int32, error) {
	v, err := s.submit(ctx, request.ZAdd, value.NewString(key), value.NewString(strconv.FormatFloat(score, 'g', -1, 64)), value.NewString(member))
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// ZScore returns member's score, reporting false if absent.
func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	v, err := s.submit(ctx, request.ZScore, value.NewString(key), value.NewString(member))
	if err != nil {
		return 0, false, err
	}
	if v.IsNull() {
		return 0, false, nil
	}
	return v.ExtractDouble(), true, nil
}

// ZCard returns the cardinality of the sorted set at key.
func (s *Store) ZCard(ctx context.Context, key string) (int32, error) {
	v, err := s.submit(ctx, request.ZCard, value.NewString(key))
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// ZCount returns the number of members in the given score range.
func (s *Store) ZCount(ctx context.Context, key string, min float64, inclMin bool, max float64, inclMax bool) (int32, error) {
	args := append([]value.Value{value.NewString(key)}, rangeArgs(min, inclMin, max, inclMax)...)
	v, err := s.submit(ctx, request.ZCount, args...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// ZRange returns the members between start and stop, inclusive,
// ordered by score. withScores interleaves each member with its score.
func (s *Store) ZRange(ctx context.Context, key string, start, stop int, withScores bool) ([]string, error) {
	args := []value.Value{value.NewString(key), value.NewString(strconv.Itoa(start)), indexArg(stop)}
	if withScores {
		args = append(args, value.NewString("withscores"))
	}
	v, err := s.submit(ctx, request.ZRange, args...)
	if err != nil {
		return nil, err
	}
	return v.ExtractList().Strings(), nil
}

// ZRangeByScore returns the members whose score lies in the given
// range, ordered by score.
func (s *Store) ZRangeByScore(ctx context.Context, key string, min float64, inclMin bool, max float64, inclMax bool, withScores bool) ([]string, error) {
	args := append([]value.Value{value.NewString(key)}, rangeArgs(min, inclMin, max, inclMax)...)
	if withScores {
		args = append(args, value.NewString("withscores"))
	}
	v, err := s.submit(ctx, request.ZRangeByScore, args...)
	if err != nil {
		return nil, err
	}
	return v.ExtractList().Strings(), nil
}

// ZRank returns member's zero-based rank, reporting false if absent.
func (s *Store) ZRank(ctx context.Context, key, member string) (int32, bool, error) {
	v, err := s.submit(ctx, request.ZRank, value.NewString(key), value.NewString(member))
	if err != nil {
		return 0, false, err
	}
	if v.IsNull() {
		return 0, false, nil
	}
	return v.ExtractInt(), true, nil
}

// ZRem removes the given members from the sorted set at key and
// returns how many were present.
func (s *Store) ZRem(ctx context.Context, key string, members ...string) (int32, error) {
	v, err := s.submit(ctx, request.ZRem, append([]value.Value{value.NewString(key)}, stringValues(members)...)...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// ZRemRangeByScore removes every member in the given score range and
// returns how many were removed.
func (s *Store) ZRemRangeByScore(ctx context.Context, key string, min float64, inclMin bool, max float64, inclMax bool) (int32, error) {
	args := append([]value.Value{value.NewString(key)}, rangeArgs(min, inclMin, max, inclMax)...)
	v, err := s.submit(ctx, request.ZRemRangeByScore, args...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

// Aggregate selects how ZInterStore/ZUnionStore combine weighted
// per-input scores.
type Aggregate = zset.Aggregate

const (
	Sum = zset.Sum
	Min = zset.Min
	Max = zset.Max
)

// ZInterStore writes the intersection of the named sets, weighted and
// aggregated, into dest and returns its cardinality.
func (s *Store) ZInterStore(ctx context.Context, dest string, keys []string, weights []float64, agg Aggregate) (int32, error) {
	return s.zcombine(ctx, request.ZInterStore, dest, keys, weights, agg)
}

// ZUnionStore writes the union of the named sets, weighted and
// aggregated, into dest and returns its cardinality.
func (s *Store) ZUnionStore(ctx context.Context, dest string, keys []string, weights []float64, agg Aggregate) (int32, error) {
	return s.zcombine(ctx, request.ZUnionStore, dest, keys, weights, agg)
}

func (s *Store) zcombine(ctx context.Context, action request.Action, dest string, keys []string, weights []float64, agg Aggregate) (int32, error) {
	args := []value.Value{value.NewString(dest), value.NewString(strconv.Itoa(len(keys)))}
	args = append(args, stringValues(keys)...)
	if len(weights) > 0 {
		args = append(args, value.NewString("weights"))
		for _, w := range weights {
			args = append(args, value.NewString(strconv.FormatFloat(w, 'g', -1, 64)))
		}
	}
	args = append(args, value.NewString("aggregate"), value.NewString(aggregateToken(agg)))
	v, err := s.submit(ctx, action, args...)
	if err != nil {
		return 0, err
	}
	return v.ExtractInt(), nil
}

func aggregateToken(agg Aggregate) string {
	switch agg {
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return "sum"
	}
}

// Expire sets key's TTL to seconds from now, reporting false if key is
// absent.
func (s *Store) Expire(ctx context.Context, key string, seconds int64) (bool, error) {
	v, err := s.submit(ctx, request.Expire, value.NewString(key), value.NewString(strconv.FormatInt(seconds, 10)))
	if err != nil {
		return false, err
	}
	return v.ExtractInt() == 1, nil
}

// Keys returns every non-expired key.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	v, err := s.submit(ctx, request.Keys)
	if err != nil {
		return nil, err
	}
	return v.ExtractList().Strings(), nil
}

// Flushall removes every key.
func (s *Store) Flushall(ctx context.Context) error {
	_, err := s.submit(ctx, request.FlushAll)
	return err
}

// Save writes the snapshot to the configured path immediately, without
// waiting for Shutdown.
func (s *Store) Save(ctx context.Context) error {
	_, err := s.submit(ctx, request.Save)
	return err
}

// Info returns the live key count.
func (s *Store) Info(ctx context.Context) (uint32, error) {
	v, err := s.submit(ctx, request.Info)
	if err != nil {
		return 0, err
	}
	return v.ExtractUint(), nil
}

func stringValues(strs []string) []value.Value {
	out := make([]value.Value, len(strs))
	for i, s := range strs {
		out[i] = value.NewString(s)
	}
	return out
}
