package request

import (
	"context"
	"testing"
	"time"

	"github.com/zond/kivi/value"
)

func TestNewAppendArg(t *testing.T) {
	req := New(Set).Append(value.NewString("k"), value.NewString("v"))
	if req.Action != Set {
		t.Fatalf("Action = %v, want Set", req.Action)
	}
	if req.Arg(0).ExtractString() != "k" || req.Arg(1).ExtractString() != "v" {
		t.Fatalf("Args = %v, want [k v]", req.Args)
	}
	if !req.Arg(2).IsNull() {
		t.Fatalf("Arg(2) out of range = %v, want Null", req.Arg(2))
	}
}

func TestReplyWaitBlocksUntilFulfilled(t *testing.T) {
	r := NewReply()
	if r.Done() {
		t.Fatal("Done() = true before Fulfill")
	}

	done := make(chan value.Value, 1)
	go func() { done <- r.Wait() }()

	select {
	case <-done:
		t.Fatal("Wait() returned before Fulfill was called")
	case <-time.After(20 * time.Millisecond):
	}

	r.Fulfill(value.NewString("v"))
	select {
	case got := <-done:
		if got.ExtractString() != "v" {
			t.Fatalf("Wait() = %v, want v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Fulfill")
	}
	if !r.Done() {
		t.Fatal("Done() = false after Fulfill")
	}
}

func TestReplyFulfillIsOnce(t *testing.T) {
	r := NewReply()
	r.Fulfill(value.NewString("first"))
	r.Fulfill(value.NewString("second"))
	if got := r.Wait(); got.ExtractString() != "first" {
		t.Fatalf("second Fulfill overwrote first: got %v, want first", got)
	}
}

func TestReplyWaitContextCancellation(t *testing.T) {
	r := NewReply()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := r.WaitContext(ctx)
	if err == nil {
		t.Fatal("WaitContext() error = nil, want ctx.Err()")
	}
	if !got.IsNull() {
		t.Fatalf("WaitContext() value on cancellation = %v, want zero Value", got)
	}
}

func TestReplyWaitContextFulfilledBeforeCancel(t *testing.T) {
	r := NewReply()
	r.Fulfill(value.NewString("v"))

	got, err := r.WaitContext(context.Background())
	if err != nil {
		t.Fatalf("WaitContext() error = %v, want nil (already fulfilled)", err)
	}
	if got.ExtractString() != "v" {
		t.Fatalf("WaitContext() = %v, want v", got)
	}
}
