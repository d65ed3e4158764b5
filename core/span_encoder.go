package core

import "sort"

// SpanEncoder renders a decoded span for humans and log pipelines.
type SpanEncoder interface {
	Encode(DecodedSpan) []byte
}

// spanEncoder is a SpanEncoder implementation that writes one JSON object
// per line, with meta and metrics keys sorted.
type spanEncoder struct {
	jsonEncoder
}

// NewSpanEncoder creates a fast, low-allocation JSON encoder.
func NewSpanEncoder() SpanEncoder {
	return &spanEncoder{jsonEncoder: jsonEncoder{}}
}

func (enc *spanEncoder) Encode(sp DecodedSpan) []byte {
	bytes := make([]byte, 0, 512)

	bytes = append(bytes, '{')
	bytes = enc.encodeKeyID(bytes, "traceId", sp.TraceID)
	bytes = enc.encodeKeyID(bytes, "spanId", sp.SpanID)
	if sp.ParentID > 0 {
		bytes = enc.encodeKeyID(bytes, "parentId", sp.ParentID)
	}
	bytes = enc.encodeKeyString(bytes, "name", sp.Name)
	bytes = enc.encodeKeyString(bytes, "resource", sp.Resource)
	bytes = enc.encodeKeyString(bytes, "service", sp.Service)
	if sp.Type != "" {
		bytes = enc.encodeKeyString(bytes, "type", sp.Type)
	}
	bytes = enc.encodeKeyUint(bytes, "error", uint64(sp.Error))
	bytes = enc.encodeKeyInt(bytes, "start", sp.Start)
	bytes = enc.encodeKeyInt(bytes, "duration", sp.Duration)
	bytes = enc.encodeMeta(bytes, sp.Meta)
	bytes = enc.encodeMetrics(bytes, sp.Metrics)
	bytes = append(bytes, '}', '\n')

	return bytes
}

func (enc *spanEncoder) encodeMeta(bytes []byte, meta map[string]string) []byte {
	if len(meta) == 0 {
		return bytes
	}
	bytes = enc.encodeKey(bytes, "meta")
	bytes = append(bytes, '{')
	for _, k := range sortedKeys(meta) {
		bytes = enc.encodeKeyString(bytes, k, meta[k])
	}
	return append(bytes, '}')
}

func (enc *spanEncoder) encodeMetrics(bytes []byte, metrics map[string]float64) []byte {
	if len(metrics) == 0 {
		return bytes
	}
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bytes = enc.encodeKey(bytes, "metrics")
	bytes = append(bytes, '{')
	for _, k := range keys {
		bytes = enc.encodeKeyFloat(bytes, k, metrics[k])
	}
	return append(bytes, '}')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
