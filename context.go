package ctrace

import (
	"fmt"

	"github.com/Nordstrom/ctrace-agent/core"
)

// SpanContext represents Span state that must propagate to descendant Spans
// and across process boundaries.
type SpanContext interface {
	ForeachBaggageItem(handler func(k, v string) bool)
	TraceID() string
	SpanID() string
	BaggageItem(key string) string
}

// spanContext holds the basic Span metadata.
type spanContext struct {
	// A probabilistically unique identifier for a [multi-span] trace.
	traceID uint64

	// A probabilistically unique identifier for a span.
	spanID uint64

	// The span's associated baggage.
	baggage map[string]string // initialized on first use

	// origin and priority travel with an extracted context until a local
	// trace buffer takes them over.
	origin   string
	priority core.Value

	// trace is the in-process buffer the span belongs to; nil for a context
	// extracted from a carrier.
	trace *traceBuffer
}

// NewSpanContext creates a SpanContext for a remote parent, e.g. one read
// from a message queue header.
func NewSpanContext(
	traceID uint64,
	spanID uint64,
	baggage map[string]string,
) SpanContext {
	return spanContext{
		traceID: traceID,
		spanID:  spanID,
		baggage: baggage,
	}
}

func (c spanContext) TraceID() string {
	return fmt.Sprintf("%016x", c.traceID)
}

func (c spanContext) SpanID() string {
	return fmt.Sprintf("%016x", c.spanID)
}

func (c spanContext) BaggageItem(key string) string {
	if c.baggage == nil {
		return ""
	}
	return c.baggage[key]
}

// ForeachBaggageItem belongs to the opentracing.SpanContext interface
func (c spanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			break
		}
	}
}

// WithBaggageItem returns an entirely new SpanContext with the given
// key:value baggage pair set.
func (c spanContext) WithBaggageItem(key, val string) spanContext {
	newBaggage := make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		newBaggage[k] = v
	}
	newBaggage[key] = val

	c.baggage = newBaggage
	return c
}

// samplingPriority returns the trace priority, preferring the live buffer.
func (c spanContext) samplingPriority() core.Value {
	if c.trace != nil {
		return c.trace.samplingPriority()
	}
	return c.priority
}

func (c spanContext) traceOrigin() string {
	if c.trace != nil {
		return c.trace.origin()
	}
	return c.origin
}
