package core

import (
	"encoding/binary"
	"sync"

	godebug "github.com/tj/go-debug"
)

// SoftLimit is the size either buffer may reach before the writer is asked
// to flush. It is not a hard cap: the agent accepts payloads up to 50 MiB.
const SoftLimit = 8 * 1024 * 1024

const (
	msgpackArray32 = 0xdd
	msgpackMap32   = 0xdf
	msgpackUint32  = 0xce
	msgpackUint64  = 0xcf

	spanMapNoType   = 0x8b // fixmap, 11 entries
	spanMapWithType = 0x8c // fixmap, 12 entries

	payloadHeaderSize = 5
)

var debug = godebug.Debug("ctrace:encoder")

// Writer drains an encoder. Flush is called when a buffer crosses SoftLimit;
// the writer must eventually call MakePayload. Flush is called without the
// encoder lock held, so calling MakePayload from it is allowed.
type Writer interface {
	Flush()
}

// EncoderStats is a snapshot of the buffered state of an encoder.
type EncoderStats struct {
	Traces      int
	TraceBytes  int
	StringBytes int
	Strings     int
}

// EncoderV4 encodes traces into the agent v0.4 msgpack format. Encoded
// traces accumulate in one buffer until MakePayload frames and drains them.
//
// An EncoderV4 is safe for concurrent use: Encode and MakePayload are
// serialized by one lock. A panic inside Encode (allocation failure) leaves
// the buffers in an undefined state and the encoder must be discarded.
type EncoderV4 struct {
	mu sync.Mutex

	writer     Writer
	config     *TracerConfig
	traceBytes *Chunk
	strings    *stringCache
	traceCount int
}

// NewEncoderV4 creates an encoder that signals w when it should be flushed.
// A nil cfg is treated as an empty configuration.
func NewEncoderV4(w Writer, cfg *TracerConfig) *EncoderV4 {
	if cfg == nil {
		cfg = &TracerConfig{}
	}
	enc := &EncoderV4{
		writer:     w,
		config:     cfg,
		traceBytes: NewChunk(0),
		strings:    newStringCache(),
	}
	enc.reset()
	return enc
}

// Count returns the number of traces encoded since the last MakePayload.
func (enc *EncoderV4) Count() int {
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.traceCount
}

// Stats returns the current buffer usage.
func (enc *EncoderV4) Stats() EncoderStats {
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return EncoderStats{
		Traces:      enc.traceCount,
		TraceBytes:  enc.traceBytes.Len(),
		StringBytes: enc.strings.size(),
		Strings:     enc.strings.count(),
	}
}

// Encode appends one trace to the buffer. spans is normally the complete,
// ordered span list of a trace.
func (enc *EncoderV4) Encode(spans []*Span) {
	if !enc.encode(spans) || enc.writer == nil {
		return
	}
	debug("soft limit of %d bytes exceeded, flushing", SoftLimit)
	enc.writer.Flush()
}

func (enc *EncoderV4) encode(spans []*Span) (full bool) {
	enc.mu.Lock()
	defer enc.mu.Unlock()

	bytes := enc.traceBytes
	start := bytes.Len()

	enc.traceCount++
	enc.encodeTrace(bytes, spans)

	if Encoded.HasSubscribers() {
		Encoded.Publish(bytes.Bytes()[start:bytes.Len()])
	}

	return bytes.Len() > SoftLimit || enc.strings.size() > SoftLimit
}

// MakePayload frames every buffered trace into one payload and resets the
// encoder. The caller owns the returned slice.
func (enc *EncoderV4) MakePayload() []byte {
	enc.mu.Lock()
	defer enc.mu.Unlock()

	traces := enc.traceBytes.Bytes()
	payload := make([]byte, payloadHeaderSize+len(traces))
	payload[0] = msgpackArray32
	binary.BigEndian.PutUint32(payload[1:payloadHeaderSize], uint32(enc.traceCount))
	copy(payload[payloadHeaderSize:], traces)

	enc.reset()

	if Assembled.HasSubscribers() {
		Assembled.Publish(payload)
	}
	return payload
}

// PayloadTraceCount returns the trace count from the header of a payload
// produced by MakePayload.
func PayloadTraceCount(payload []byte) int {
	if len(payload) < payloadHeaderSize || payload[0] != msgpackArray32 {
		return 0
	}
	return int(binary.BigEndian.Uint32(payload[1:payloadHeaderSize]))
}

func (enc *EncoderV4) reset() {
	enc.traceCount = 0
	enc.traceBytes.Reset()
	enc.strings.reset()
}

func (enc *EncoderV4) encodeTrace(bytes *Chunk, spans []*Span) {
	bytes.AppendUint32(msgpackArray32, uint32(len(spans)))

	for _, sp := range spans {
		if sp.Type != "" {
			bytes.AppendByte(spanMapWithType)
			enc.encodeString(bytes, "type")
			enc.encodeString(bytes, sp.Type)
		} else {
			bytes.AppendByte(spanMapNoType)
		}

		enc.encodeString(bytes, "trace_id")
		bytes.AppendUint64(msgpackUint64, sp.TraceID)
		enc.encodeString(bytes, "span_id")
		bytes.AppendUint64(msgpackUint64, sp.SpanID)
		enc.encodeString(bytes, "parent_id")
		bytes.AppendUint64(msgpackUint64, sp.ParentID)
		enc.encodeString(bytes, "name")
		enc.encodeString(bytes, sp.Name)
		enc.encodeString(bytes, "resource")
		enc.encodeString(bytes, sp.Resource)
		enc.encodeString(bytes, "service")
		enc.encodeString(bytes, sp.Service)
		enc.encodeString(bytes, "error")
		bytes.AppendUint32(msgpackUint32, boolToUint32(sp.IsError()))
		enc.encodeString(bytes, "start")
		bytes.AppendUint64(msgpackUint64, uint64(sp.Start))
		enc.encodeString(bytes, "duration")
		bytes.AppendUint64(msgpackUint64, uint64(sp.Duration))
		enc.encodeString(bytes, "meta")
		enc.encodeMeta(bytes, sp)
		enc.encodeString(bytes, "metrics")
		enc.encodeMetrics(bytes, sp)
	}
}

func (enc *EncoderV4) encodeMeta(bytes *Chunk, sp *Span) {
	offset := bytes.Len()
	bytes.AppendUint32(msgpackMap32, 0)

	var (
		cfg    = enc.config
		trace  = sp.Trace
		length uint32
	)

	length += enc.encodeMetaString(bytes, "service", cfg.Service)
	length += enc.encodeMetaString(bytes, "env", cfg.Env)
	length += enc.encodeMetaString(bytes, "version", cfg.Version)
	length += enc.encodeMetaString(bytes, "runtime-id", cfg.runtimeID())
	if trace != nil {
		length += enc.encodeMetaString(bytes, "_dd.origin", trace.Origin)
	}
	length += enc.encodeMetaString(bytes, "_dd.hostname", cfg.Hostname)

	if e := sp.ErrorDetail; e != nil {
		length += enc.encodeMetaString(bytes, "error.type", e.Type)
		length += enc.encodeMetaString(bytes, "error.msg", e.Message)
		length += enc.encodeMetaString(bytes, "error.stack", e.Stack)
		length += enc.encodeMetaMap(bytes, e.Fields)
	}

	if sp.Service == cfg.Service {
		length += enc.encodeMetaString(bytes, "language", Language)
	}

	length += enc.encodeMetaMap(bytes, cfg.Meta)
	length += enc.encodeMetaMap(bytes, sp.Meta)

	if trace.isFirst(sp) {
		length += enc.encodeMetaMap(bytes, trace.Meta)
	}

	bytes.PutUint32At(offset+1, length)
}

func (enc *EncoderV4) encodeMetaMap(bytes *Chunk, tags map[string]Value) (n uint32) {
	for k, v := range tags {
		if s, ok := v.Text(); ok {
			n += enc.encodeMetaString(bytes, k, s)
		}
	}
	return n
}

func (enc *EncoderV4) encodeMetaString(bytes *Chunk, key, value string) uint32 {
	if value == "" {
		return 0
	}
	enc.encodeString(bytes, key)
	enc.encodeString(bytes, value)
	return 1
}

func (enc *EncoderV4) encodeMetrics(bytes *Chunk, sp *Span) {
	offset := bytes.Len()
	bytes.AppendUint32(msgpackMap32, 0)

	var (
		trace  = sp.Trace
		length uint32
	)

	if trace != nil {
		length += enc.encodeMetric(bytes, "_sampling_priority_v1", trace.SamplingPriority)
	}
	length += enc.encodeMetric(bytes, "_dd.measured", Number(float64(boolToUint32(sp.Measured))))

	length += enc.encodeMetricsMap(bytes, enc.config.Metrics)
	length += enc.encodeMetricsMap(bytes, sp.Metrics)

	if trace.isFirst(sp) {
		length += enc.encodeMetricsMap(bytes, trace.Metrics)
	}

	bytes.PutUint32At(offset+1, length)
}

func (enc *EncoderV4) encodeMetricsMap(bytes *Chunk, tags map[string]Value) (n uint32) {
	for k, v := range tags {
		n += enc.encodeMetric(bytes, k, v)
	}
	return n
}

func (enc *EncoderV4) encodeMetric(bytes *Chunk, key string, value Value) uint32 {
	f, ok := value.Float()
	if !ok {
		return 0
	}
	enc.encodeString(bytes, key)
	bytes.AppendFloat64(f)
	return 1
}

func (enc *EncoderV4) encodeString(bytes *Chunk, value string) {
	enc.strings.encode(bytes, value)
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
