package core

import (
	"fmt"
	"reflect"
	"strconv"
)

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindString
	kindNumber
)

// Value is a tag value: either a string or a number. The zero Value is
// absent and is never encoded.
type Value struct {
	kind valueKind
	str  string
	num  float64
}

// String returns a string Value.
func String(s string) Value {
	return Value{kind: kindString, str: s}
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{kind: kindNumber, num: f}
}

// ValueOf converts a Go value into a Value. Strings and the builtin numeric
// types are kept; anything else becomes the absent Value and is dropped at
// encode time.
func ValueOf(v interface{}) Value {
	switch tval := v.(type) {
	case Value:
		return tval
	case string:
		return String(tval)
	case int:
		return Number(float64(tval))
	case int8:
		return Number(float64(tval))
	case int16:
		return Number(float64(tval))
	case int32:
		return Number(float64(tval))
	case int64:
		return Number(float64(tval))
	case uint:
		return Number(float64(tval))
	case uint8:
		return Number(float64(tval))
	case uint16:
		return Number(float64(tval))
	case uint32:
		return Number(float64(tval))
	case uint64:
		return Number(float64(tval))
	case float32:
		return Number(float64(tval))
	case float64:
		return Number(tval)
	}
	return Value{}
}

// Text returns the string held by v. ok is false for numbers, absent values
// and the empty string, none of which may be written as meta.
func (v Value) Text() (s string, ok bool) {
	if v.kind != kindString || v.str == "" {
		return "", false
	}
	return v.str, true
}

// Float returns the number held by v.
func (v Value) Float() (f float64, ok bool) {
	if v.kind != kindNumber {
		return 0, false
	}
	return v.num, true
}

// IsAbsent reports whether v holds nothing.
func (v Value) IsAbsent() bool {
	return v.kind == kindAbsent
}

func (v Value) String() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

// SpanError carries the details of an error attached to a span. Fields holds
// any additional attributes, which are encoded as meta after the standard
// error.type, error.msg and error.stack entries.
type SpanError struct {
	Type    string
	Message string
	Stack   string
	Fields  map[string]Value
}

// NewSpanError builds a SpanError from err. It returns nil for a nil error.
func NewSpanError(err error) *SpanError {
	if err == nil {
		return nil
	}
	se := &SpanError{
		Type:    reflect.TypeOf(err).String(),
		Message: err.Error(),
	}
	if st, ok := err.(fmt.Formatter); ok {
		if stack := fmt.Sprintf("%+v", st); stack != se.Message {
			se.Stack = stack
		}
	}
	return se
}

// Span is one finished unit of work, ready to be encoded. Start is in
// nanoseconds since the Unix epoch and Duration in nanoseconds.
type Span struct {
	TraceID  uint64
	SpanID   uint64
	ParentID uint64

	Name     string
	Resource string
	Service  string
	Type     string

	// Error marks the span as failed. A non-nil ErrorDetail does the same
	// and also contributes error.* meta.
	Error       bool
	ErrorDetail *SpanError

	Start    int64
	Duration int64

	Meta     map[string]Value
	Metrics  map[string]Value
	Measured bool

	// Trace is the owning trace. Trace-level tags are written only on the
	// first span of Trace.Spans.
	Trace *Trace
}

// IsError reports whether the span is encoded with error=1.
func (s *Span) IsError() bool {
	return s.Error || s.ErrorDetail != nil
}

// SetMeta sets a meta tag, allocating the map on first use.
func (s *Span) SetMeta(key string, value Value) {
	if s.Meta == nil {
		s.Meta = make(map[string]Value)
	}
	s.Meta[key] = value
}

// SetMetric sets a metric tag, allocating the map on first use.
func (s *Span) SetMetric(key string, value Value) {
	if s.Metrics == nil {
		s.Metrics = make(map[string]Value)
	}
	s.Metrics[key] = value
}

// Trace is an ordered group of spans sharing a trace id. Origin,
// SamplingPriority, Meta and Metrics are trace-level and are attached to the
// first span only.
type Trace struct {
	Spans            []*Span
	Origin           string
	SamplingPriority Value
	Meta             map[string]Value
	Metrics          map[string]Value
}

// Add appends sp to the trace and points it back at t.
func (t *Trace) Add(sp *Span) {
	sp.Trace = t
	t.Spans = append(t.Spans, sp)
}

func (t *Trace) isFirst(sp *Span) bool {
	return t != nil && len(t.Spans) > 0 && t.Spans[0] == sp
}
