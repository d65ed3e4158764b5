package ctrace

import (
	"sync"

	"github.com/Nordstrom/ctrace-agent/core"
)

const (
	// traceBufferInitSize is the span capacity allocated for a new trace.
	traceBufferInitSize = 10

	// traceBufferMaxSize bounds the spans kept for one trace. Spans past it
	// are dropped so a runaway trace cannot grow without limit.
	traceBufferMaxSize = 10000
)

// traceBuffer collects the spans of one trace started in this process and
// hands the trace to the encoder once every pushed span has finished.
type traceBuffer struct {
	onComplete func(*core.Trace)

	sync.Mutex // protects the fields below
	trace      *core.Trace
	finished   int
	flushed    bool
}

func newTraceBuffer(onComplete func(*core.Trace)) *traceBuffer {
	return &traceBuffer{
		onComplete: onComplete,
		trace: &core.Trace{
			Spans: make([]*core.Span, 0, traceBufferInitSize),
		},
	}
}

// push registers sp with the trace. It reports false when the span was
// dropped, either because the trace is full or already flushed.
func (tb *traceBuffer) push(sp *core.Span) bool {
	tb.Lock()
	defer tb.Unlock()

	if tb.flushed {
		debug("trace %016x already flushed, dropping span %016x", sp.TraceID, sp.SpanID)
		return false
	}
	if len(tb.trace.Spans) >= traceBufferMaxSize {
		debug("trace %016x exceeds %d spans, dropping span %016x", sp.TraceID, traceBufferMaxSize, sp.SpanID)
		return false
	}
	tb.trace.Add(sp)
	return true
}

// ack records a finished span and flushes the trace when it was the last
// one outstanding.
func (tb *traceBuffer) ack() {
	tb.Lock()
	tb.finished++
	if tb.flushed || tb.finished < len(tb.trace.Spans) {
		tb.Unlock()
		return
	}
	tb.flushed = true
	trace := tb.trace
	tb.Unlock()

	tb.onComplete(trace)
}

func (tb *traceBuffer) len() int {
	tb.Lock()
	defer tb.Unlock()
	return len(tb.trace.Spans)
}

// setSamplingPriority, setOrigin and setTag are ignored once the trace has
// been handed to the encoder, which reads it without the buffer lock.
func (tb *traceBuffer) setSamplingPriority(p core.Value) {
	tb.Lock()
	defer tb.Unlock()
	if tb.flushed {
		return
	}
	tb.trace.SamplingPriority = p
}

func (tb *traceBuffer) samplingPriority() core.Value {
	tb.Lock()
	defer tb.Unlock()
	return tb.trace.SamplingPriority
}

func (tb *traceBuffer) setOrigin(origin string) {
	tb.Lock()
	defer tb.Unlock()
	if tb.flushed {
		return
	}
	tb.trace.Origin = origin
}

func (tb *traceBuffer) origin() string {
	tb.Lock()
	defer tb.Unlock()
	return tb.trace.Origin
}

// setTag stores a trace-level tag, written on the first span only.
func (tb *traceBuffer) setTag(key string, v core.Value) {
	tb.Lock()
	defer tb.Unlock()
	if tb.flushed {
		return
	}
	if _, ok := v.Float(); ok {
		if tb.trace.Metrics == nil {
			tb.trace.Metrics = make(map[string]core.Value)
		}
		tb.trace.Metrics[key] = v
		return
	}
	if tb.trace.Meta == nil {
		tb.trace.Meta = make(map[string]core.Value)
	}
	tb.trace.Meta[key] = v
}
