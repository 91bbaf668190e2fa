// Package value implements the tagged-union Value type shared by the
// store's primary table, its request arguments, and its replies.
package value

import (
	"strconv"

	"github.com/zond/kivi/list"
)

// Kind discriminates the payload a Value carries.
type Kind int

const (
	Null Kind = iota
	Error
	Bool
	Int
	Uint
	Double
	String
	List
	Hash
	SortedSet
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Error:
		return "error"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Double:
		return "double"
	case String:
		return "string"
	case List:
		return "list"
	case Hash:
		return "hash"
	case SortedSet:
		return "sortedset"
	default:
		return "unknown"
	}
}

// ZSet is the narrow interface a sorted-set payload must satisfy. The
// concrete implementation lives in package zset; value only needs to
// hold it and callers type-assert it, so value does not import zset.
type ZSet interface {
	Card() int
}

// Value is a single owned container for every kind of data the store
// moves around: primary-table payloads, request arguments, and reply
// data. The zero Value is Null.
type Value struct {
	kind   Kind
	b      bool
	i      int32
	u      uint32
	d      float64
	s      string
	list   *list.List
	hash   map[string]string
	zset   ZSet
}

func Null_() Value { return Value{kind: Null} }

func NewError(message string) Value { return Value{kind: Error, s: message} }

func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

func NewInt(i int32) Value { return Value{kind: Int, i: i} }

func NewUint(u uint32) Value { return Value{kind: Uint, u: u} }

func NewDouble(d float64) Value { return Value{kind: Double, d: d} }

func NewString(s string) Value { return Value{kind: String, s: s} }

func NewList(l *list.List) Value { return Value{kind: List, list: l} }

func NewHash(h map[string]string) Value { return Value{kind: Hash, hash: h} }

func NewSortedSet(z ZSet) Value { return Value{kind: SortedSet, zset: z} }

func (v Value) Kind() Kind { return v.kind }

// Release is a no-op kept for API parity with the source's free_T: Go's
// garbage collector reclaims a Value's payload once it is no longer
// referenced. Callers that extracted a List/Hash/SortedSet payload out
// of a Value and want to mark it done with may call Release instead of
// just dropping the reference; the two are equivalent.
func (v Value) Release() {}

func (v Value) IsNull() bool      { return v.kind == Null }
func (v Value) IsError() bool     { return v.kind == Error }
func (v Value) IsBool() bool      { return v.kind == Bool }
func (v Value) IsInt() bool       { return v.kind == Int }
func (v Value) IsUint() bool      { return v.kind == Uint }
func (v Value) IsDouble() bool    { return v.kind == Double }
func (v Value) IsString() bool    { return v.kind == String }
func (v Value) IsList() bool      { return v.kind == List }
func (v Value) IsHash() bool      { return v.kind == Hash }
func (v Value) IsSortedSet() bool { return v.kind == SortedSet }

// Extractors return the payload for a matching kind, and the zero
// payload otherwise. Unlike the source's C extractors there is no shell
// to free; Go's garbage collector reclaims the Value itself.

func (v Value) ExtractError() string {
	if v.kind != Error {
		return ""
	}
	return v.s
}

func (v Value) ExtractBool() bool {
	if v.kind != Bool {
		return false
	}
	return v.b
}

func (v Value) ExtractInt() int32 {
	if v.kind != Int {
		return 0
	}
	return v.i
}

func (v Value) ExtractUint() uint32 {
	if v.kind != Uint {
		return 0
	}
	return v.u
}

func (v Value) ExtractDouble() float64 {
	if v.kind != Double {
		return 0
	}
	return v.d
}

func (v Value) ExtractString() string {
	if v.kind != String {
		return ""
	}
	return v.s
}

func (v Value) ExtractList() *list.List {
	if v.kind != List {
		return nil
	}
	return v.list
}

func (v Value) ExtractHash() map[string]string {
	if v.kind != Hash {
		return nil
	}
	return v.hash
}

func (v Value) ExtractSortedSet() ZSet {
	if v.kind != SortedSet {
		return nil
	}
	return v.zset
}

// StringToUint parses a String Value as base-10 unsigned, stopping at
// the first non-digit (matching strtoul, not strconv.ParseUint) and
// saturating to the type's maximum on overflow. Non-String values pass
// through unchanged, matching the source's "no exceptions, check the
// tag" discipline.
func StringToUint(v Value) Value {
	if v.kind != String {
		return v
	}
	digits := leadingDigits(v.s)
	if digits == "" {
		return NewUint(0)
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		n = uint64(^uint32(0))
	}
	return NewUint(uint32(n))
}

// StringToInt parses a String Value as base-10 signed, stopping at the
// first non-digit and saturating on overflow to the type's maximum
// (or to its minimum for negative input).
func StringToInt(v Value) Value {
	if v.kind != String {
		return v
	}
	digits := leadingSignedDigits(v.s)
	if digits == "" || digits == "-" {
		return NewInt(0)
	}
	n, err := strconv.ParseInt(digits, 10, 32)
	if err != nil {
		if digits[0] == '-' {
			n = int64(int32(-2147483648))
		} else {
			n = int64(int32(2147483647))
		}
	}
	return NewInt(int32(n))
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func leadingSignedDigits(s string) string {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return ""
	}
	return s[:i]
}

// IntToString formats an Int Value as a String Value.
func IntToString(v Value) Value {
	if v.kind != Int {
		return v
	}
	return NewString(strconv.FormatInt(int64(v.i), 10))
}
