// Package queue implements the store's request FIFO and its
// single-writer worker loop: a coarse lock gates every access to the
// store's internals, the worker try-locks and drains the queue, and
// idle periods back off linearly up to a configured ceiling.
package queue

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zond/kivi/request"
	"github.com/zond/kivi/value"
)

// Dispatch executes one request to completion and returns its reply
// payload. The second return value is true exactly for a shutdown
// request, telling Run to stop after this dispatch.
type Dispatch func(*request.Request) (value.Value, bool)

// Backoff controls how the worker paces itself once the queue has sat
// empty past Threshold: the sleep ramps linearly from zero to Max over
// Ramp of continued idleness.
type Backoff struct {
	Threshold time.Duration
	Ramp      time.Duration
	Max       time.Duration
}

func (b Backoff) sleepFor(idleFor time.Duration) time.Duration {
	if idleFor <= b.Threshold {
		return 0
	}
	past := idleFor - b.Threshold
	if past >= b.Ramp {
		return b.Max
	}
	return time.Duration(float64(b.Max) * float64(past) / float64(b.Ramp))
}

type task struct {
	req   *request.Request
	reply *request.Reply
}

// Queue is the coarse-locked FIFO plus the worker loop that drains it.
type Queue struct {
	sem *semaphore.Weighted

	tasks []*task // guarded by sem

	wake chan struct{}

	running  atomic.Bool
	dispatch Dispatch
	sweep    func()
	backoff  Backoff
}

// New returns a queue that dispatches requests via dispatch and runs
// one expiration-sweep step via sweep after every drain.
func New(dispatch Dispatch, sweep func(), backoff Backoff) *Queue {
	q := &Queue{
		sem:      semaphore.NewWeighted(1),
		wake:     make(chan struct{}, 1),
		dispatch: dispatch,
		sweep:    sweep,
		backoff:  backoff,
	}
	q.running.Store(true)
	return q
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Submit enqueues req and returns its reply immediately. If the queue
// is no longer running, the reply is already fulfilled with a
// "database is closed" error.
func (q *Queue) Submit(ctx context.Context, req *request.Request) *request.Reply {
	reply := request.NewReply()
	if !q.running.Load() {
		reply.Fulfill(value.NewError("ERR database is closed"))
		return reply
	}
	if err := q.sem.Acquire(ctx, 1); err != nil {
		reply.Fulfill(value.NewError("ERR database is closed"))
		return reply
	}
	q.tasks = append(q.tasks, &task{req: req, reply: reply})
	q.sem.Release(1)
	q.signal()
	return reply
}

// SubmitSync submits req and blocks for its reply, honoring ctx
// cancellation on the wait.
func (q *Queue) SubmitSync(ctx context.Context, req *request.Request) (value.Value, error) {
	reply := q.Submit(ctx, req)
	return reply.WaitContext(ctx)
}

// Run drains the queue until ctx is cancelled or a shutdown request is
// dispatched. It is meant to run on its own goroutine for the store's
// lifetime.
func (q *Queue) Run(ctx context.Context) error {
	idleStart := time.Now()
	for {
		for !q.sem.TryAcquire(1) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				runtime.Gosched()
			}
		}

		drained, stop := q.drainLocked()
		q.sweep()
		q.sem.Release(1)

		if drained {
			idleStart = time.Now()
		}
		if stop {
			q.running.Store(false)
			return nil
		}

		idleFor := time.Since(idleStart)
		sleep := q.backoff.sleepFor(idleFor)
		if sleep <= 0 {
			select {
			case <-q.wake:
				idleStart = time.Now()
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-q.wake:
			timer.Stop()
			idleStart = time.Now()
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// drainLocked processes every currently-queued task and reports
// whether any work was done and whether a shutdown was dispatched.
// Caller must hold the semaphore.
func (q *Queue) drainLocked() (drained bool, stop bool) {
	for len(q.tasks) > 0 {
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		data, shutdown := q.dispatch(t.req)
		t.reply.Fulfill(data)
		drained = true
		if shutdown {
			return drained, true
		}
	}
	return drained, false
}

// Running reports whether the queue still accepts submissions.
func (q *Queue) Running() bool { return q.running.Load() }
