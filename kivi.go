// Package kivi implements a self-contained, in-process key-value store with
// Redis-like value types, lazy expiration, incremental rehashing, and
// JSON snapshot persistence behind a single-writer worker.
package kivi

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors returned by the Go-facing convenience API. These are
// distinct from the protocol-level Error values carried inside a Reply
// (see package value and package request): a sentinel error means the
// call itself could not be completed, a Reply carrying an Error value
// means the store answered the request with a documented failure.
var (
	ErrClosed     = errors.New("store is closed")
	ErrNoSuchKey  = errors.New("no such key")
	ErrWrongType  = errors.New("wrong type")
	ErrWrongArgs  = errors.New("wrong arguments")
	ErrSyntax     = errors.New("syntax error")
	ErrUnknownCmd = errors.New("unknown command")
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStack wraps err with a stack trace unless it is nil or already
// carries one.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(stackTracer); !ok {
		return errors.WithStack(err)
	}
	return err
}

// StackTrace renders the stack trace carried by err, if any.
func StackTrace(err error) string {
	buf := &bytes.Buffer{}
	if err, ok := err.(stackTracer); ok {
		for _, f := range err.StackTrace() {
			fmt.Fprintf(buf, "%+v\n", f)
		}
	}
	return buf.String()
}

// Set is a small generic set used internally wherever the engine needs
// membership tracking without pulling in a container package for it.
type Set[K comparable] map[K]struct{}

func (s Set[K]) Add(k K) {
	s[k] = struct{}{}
}

func (s Set[K]) Del(k K) {
	delete(s, k)
}

func (s Set[K]) Has(k K) bool {
	_, found := s[k]
	return found
}
