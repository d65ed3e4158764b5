package ctrace

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Nordstrom/ctrace-agent/core"
	"github.com/Nordstrom/ctrace-agent/ext"
	clog "github.com/Nordstrom/ctrace-agent/log"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
)

// propagatedTagPrefix marks tags that belong to the whole trace.
const propagatedTagPrefix = "_dd.p."

// Span represents an active, un-finished span in the OpenTracing system.
//
// Spans are created by the Tracer interface.
type Span interface {
	opentracing.Span
	RawContext() SpanContext
	RawTracer() Tracer
}

type span struct {
	tracer     *tracer
	sync.Mutex // protects the fields below

	context spanContext

	// We store <start, duration> rather than <start, end> so that only
	// one of the timestamps has global clock uncertainty issues.
	start time.Time

	// data is what the encoder sees once the trace completes.
	data *core.Span

	buffered bool

	// finished spans ignore further changes: once their trace completes the
	// encoder reads data without the span lock.
	finished bool
}

func (s *span) SetOperationName(operationName string) opentracing.Span {
	s.Lock()
	defer s.Unlock()
	if s.finished {
		return s
	}
	s.data.Name = operationName
	return s
}

func (s *span) SetTag(key string, value interface{}) opentracing.Span {
	s.Lock()
	defer s.Unlock()
	if s.finished {
		return s
	}
	return s.setTag(key, value)
}

// setTag routes well-known keys to the span's fixed fields or to the trace,
// numbers to metrics and everything else to meta.
func (s *span) setTag(key string, value interface{}) opentracing.Span {
	switch key {
	case ext.ServiceNameKey:
		s.data.Service = stringify(value)
	case ext.ResourceNameKey:
		s.data.Resource = stringify(value)
	case ext.SpanTypeKey:
		s.data.Type = stringify(value)
	case ext.ErrorKey:
		s.setError(value)
	case ext.MeasuredKey:
		s.data.Measured = truthy(value)
	case ext.HTTPStatusCodeKey:
		s.data.SetMeta(key, core.String(stringify(value)))
	case ext.SamplingPriorityKey:
		if p := core.ValueOf(value); !p.IsAbsent() {
			if _, ok := p.Float(); ok {
				s.context.trace.setSamplingPriority(p)
			}
		}
	case ext.OriginKey:
		s.context.trace.setOrigin(stringify(value))
	default:
		v := core.ValueOf(value)
		if _, ok := v.Float(); !ok {
			v = core.String(stringify(value))
		}
		if strings.HasPrefix(key, propagatedTagPrefix) {
			s.context.trace.setTag(key, v)
			return s
		}
		if _, ok := v.Float(); ok {
			s.data.SetMetric(key, v)
		} else {
			s.data.SetMeta(key, v)
		}
	}
	return s
}

func (s *span) setError(value interface{}) {
	switch v := value.(type) {
	case error:
		s.data.Error = true
		s.data.ErrorDetail = core.NewSpanError(v)
	default:
		s.data.Error = truthy(v)
		if !s.data.Error {
			s.data.ErrorDetail = nil
		}
	}
}

func (s *span) LogKV(keyValues ...interface{}) {
	fields, err := log.InterleavedKVToFields(keyValues...)
	if err != nil {
		s.LogFields(log.Error(err), log.String("function", "LogKV"))
		return
	}
	s.LogFields(fields...)
}

func (s *span) LogFields(fields ...log.Field) {
	s.Lock()
	defer s.Unlock()
	if s.finished {
		return
	}
	s.logFields(fields)
}

// logFields keeps error events as the span's error details. The v0.4 format
// has no place for other log records, so they are dropped.
func (s *span) logFields(fields []log.Field) {
	if !isErrorEvent(fields) {
		return
	}
	se := &core.SpanError{}
	for _, f := range fields {
		switch f.Key() {
		case clog.EventKey:
		case clog.ErrorKindKey:
			se.Type = stringify(f.Value())
		case clog.ErrorObjectKey:
			if err, ok := f.Value().(error); ok {
				detail := core.NewSpanError(err)
				se.Message = detail.Message
				if se.Type == "" {
					se.Type = detail.Type
				}
				if se.Stack == "" {
					se.Stack = detail.Stack
				}
			} else {
				se.Message = stringify(f.Value())
			}
		case clog.MessageKey:
			if se.Message == "" {
				se.Message = stringify(f.Value())
			}
		case clog.StackKey:
			se.Stack = stringify(f.Value())
		default:
			if se.Fields == nil {
				se.Fields = make(map[string]core.Value)
			}
			v := core.ValueOf(f.Value())
			if _, ok := v.Text(); !ok {
				v = core.String(stringify(f.Value()))
			}
			se.Fields[f.Key()] = v
		}
	}
	s.data.ErrorDetail = se
}

func isErrorEvent(fields []log.Field) bool {
	for _, f := range fields {
		if f.Key() == clog.EventKey && f.Value() == "error" {
			return true
		}
	}
	return false
}

func (s *span) LogEvent(event string) {
	s.Log(opentracing.LogData{
		Event: event,
	})
}

func (s *span) LogEventWithPayload(event string, payload interface{}) {
	s.Log(opentracing.LogData{
		Event:   event,
		Payload: payload,
	})
}

func (s *span) Log(ld opentracing.LogData) {
	s.LogFields(ld.ToLogRecord().Fields...)
}

func (s *span) Finish() {
	s.FinishWithOptions(opentracing.FinishOptions{})
}

func (s *span) FinishWithOptions(opts opentracing.FinishOptions) {
	finishTime := opts.FinishTime
	if finishTime.IsZero() {
		finishTime = time.Now()
	}

	s.Lock()
	if s.finished {
		s.Unlock()
		return
	}
	for _, lr := range opts.LogRecords {
		s.logFields(lr.Fields)
	}
	for _, ld := range opts.BulkLogData {
		s.logFields(ld.ToLogRecord().Fields)
	}
	s.data.Duration = finishTime.Sub(s.start).Nanoseconds()
	s.finished = true
	trace := s.context.trace
	buffered := s.buffered
	if s.tracer.options.DebugAssertUseAfterFinish {
		// This makes it much more likely to catch a panic on any subsequent
		// operation since s.tracer is accessed on every call to `Lock`.
		s.tracer = nil
	}
	s.Unlock()

	if buffered {
		trace.ack()
	}
}

func (s *span) Context() opentracing.SpanContext {
	s.Lock()
	defer s.Unlock()
	return s.context
}

func (s *span) RawContext() SpanContext {
	s.Lock()
	defer s.Unlock()
	return s.context
}

func (s *span) Tracer() opentracing.Tracer {
	return s.tracer
}

func (s *span) RawTracer() Tracer {
	return s.tracer
}

func (s *span) SetBaggageItem(key, val string) opentracing.Span {
	s.Lock()
	defer s.Unlock()
	s.context = s.context.WithBaggageItem(key, val)
	return s
}

func (s *span) BaggageItem(key string) string {
	s.Lock()
	defer s.Unlock()
	return s.context.baggage[key]
}

func stringify(v interface{}) string {
	switch tval := v.(type) {
	case string:
		return tval
	case fmt.Stringer:
		return tval.String()
	case error:
		return tval.Error()
	}
	return fmt.Sprint(v)
}

func truthy(v interface{}) bool {
	switch tval := v.(type) {
	case bool:
		return tval
	case string:
		b, err := strconv.ParseBool(tval)
		return err == nil && b
	case nil:
		return false
	}
	if f, ok := core.ValueOf(v).Float(); ok {
		return f != 0
	}
	return true
}
