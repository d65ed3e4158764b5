package ctrace

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Nordstrom/ctrace-agent/core"
	opentracing "github.com/opentracing/opentracing-go"
)

const (
	// HTTPHeaders represents SpanContexts as HTTP header string pairs.
	//
	// For Tracer.Inject(): the carrier must be a `TextMapWriter`.
	//
	// For Tracer.Extract(): the carrier must be a `TextMapReader`.
	//
	// For example, Inject():
	//
	//	carrier := opentracing.HTTPHeadersCarrier(httpReq.Header)
	//	err := span.Tracer().Inject(
	//	    span.Context(), ctrace.HTTPHeaders, carrier)
	//
	// Or Extract():
	//
	//	carrier := opentracing.HTTPHeadersCarrier(httpReq.Header)
	//	spanContext, err := tracer.Extract(
	//	    ctrace.HTTPHeaders, carrier)
	//
	HTTPHeaders = opentracing.HTTPHeaders

	// TextMap represents SpanContexts as key:value string pairs.
	//
	// Unlike HTTPHeaders, the TextMap format does not restrict the key or
	// value character sets in any way.
	TextMap = opentracing.TextMap
)

// Header names understood by the agent and by other tracers reporting to it.
const (
	TraceIDHeader          = "x-datadog-trace-id"
	ParentIDHeader         = "x-datadog-parent-id"
	SamplingPriorityHeader = "x-datadog-sampling-priority"
	OriginHeader           = "x-datadog-origin"
	BaggagePrefix          = "ot-baggage-"
)

type textMapPropagator struct {
	traceIDKey    string
	spanIDKey     string
	priorityKey   string
	originKey     string
	baggagePrefix string
	encodeKey     func(string) string
	decodeKey     func(string) string
	encodeValue   func(string) string
	decodeValue   func(string) string
}

func newTextMapPropagator() *textMapPropagator {
	var passthrough = func(s string) string {
		return s
	}

	return &textMapPropagator{
		traceIDKey:    TraceIDHeader,
		spanIDKey:     ParentIDHeader,
		priorityKey:   SamplingPriorityHeader,
		originKey:     OriginHeader,
		baggagePrefix: BaggagePrefix,
		encodeKey:     passthrough,
		decodeKey:     passthrough,
		encodeValue:   passthrough,
		decodeValue:   passthrough,
	}
}

func newHTTPHeadersPropagator() *textMapPropagator {
	return &textMapPropagator{
		traceIDKey:    TraceIDHeader,
		spanIDKey:     ParentIDHeader,
		priorityKey:   SamplingPriorityHeader,
		originKey:     OriginHeader,
		baggagePrefix: BaggagePrefix,
		encodeKey: func(key string) string {
			return url.QueryEscape(key)
		},
		decodeKey: func(key string) string {
			// ignore decoding errors, cannot do anything about them
			if k, err := url.QueryUnescape(key); err == nil {
				return strings.ToLower(k)
			}
			return strings.ToLower(key)
		},
		encodeValue: func(val string) string {
			return url.QueryEscape(val)
		},
		decodeValue: func(val string) string {
			// ignore decoding errors, cannot do anything about them
			if v, err := url.QueryUnescape(val); err == nil {
				return v
			}
			return val
		},
	}
}

func (p *textMapPropagator) Inject(
	ctx opentracing.SpanContext,
	opaqueCarrier interface{},
) error {
	sc, ok := ctx.(spanContext)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}
	carrier, ok := opaqueCarrier.(opentracing.TextMapWriter)
	if !ok {
		return opentracing.ErrInvalidCarrier
	}
	carrier.Set(p.traceIDKey, strconv.FormatUint(sc.traceID, 10))
	carrier.Set(p.spanIDKey, strconv.FormatUint(sc.spanID, 10))
	if f, ok := sc.samplingPriority().Float(); ok {
		carrier.Set(p.priorityKey, strconv.Itoa(int(f)))
	}
	if origin := sc.traceOrigin(); origin != "" {
		carrier.Set(p.originKey, p.encodeValue(origin))
	}

	for k, v := range sc.baggage {
		carrier.Set(p.baggagePrefix+p.encodeKey(k), p.encodeValue(v))
	}
	return nil
}

func (p *textMapPropagator) Extract(
	opaqueCarrier interface{},
) (opentracing.SpanContext, error) {
	carrier, ok := opaqueCarrier.(opentracing.TextMapReader)
	if !ok {
		return nil, opentracing.ErrInvalidCarrier
	}
	requiredFieldCount := 0
	var sc spanContext
	var err error

	decodedBaggage := make(map[string]string)
	err = carrier.ForeachKey(func(k, v string) error {
		k = p.decodeKey(k)
		switch strings.ToLower(k) {
		case p.traceIDKey:
			if sc.traceID, err = strconv.ParseUint(v, 10, 64); err != nil {
				return opentracing.ErrSpanContextCorrupted
			}
		case p.spanIDKey:
			if sc.spanID, err = strconv.ParseUint(v, 10, 64); err != nil {
				return opentracing.ErrSpanContextCorrupted
			}
		case p.priorityKey:
			priority, err := strconv.Atoi(v)
			if err != nil {
				return opentracing.ErrSpanContextCorrupted
			}
			sc.priority = core.Number(float64(priority))
			requiredFieldCount--
		case p.originKey:
			sc.origin = p.decodeValue(v)
			requiredFieldCount--
		default:
			if strings.HasPrefix(k, p.baggagePrefix) {
				key := strings.TrimPrefix(k, p.baggagePrefix)
				decodedBaggage[key] = p.decodeValue(v)
			}
			// Balance off the requiredFieldCount++ just below...
			requiredFieldCount--
		}
		requiredFieldCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if requiredFieldCount < 2 {
		if requiredFieldCount == 0 {
			return nil, opentracing.ErrSpanContextNotFound
		}
		return nil, opentracing.ErrSpanContextCorrupted
	}
	if sc.traceID == 0 {
		return nil, opentracing.ErrSpanContextCorrupted
	}
	if len(decodedBaggage) > 0 {
		sc.baggage = decodedBaggage
	}
	return sc, nil
}
