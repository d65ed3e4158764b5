package core

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// DecodedSpan is a span read back from a v0.4 payload. Meta and Metrics keep
// the last value of a duplicated key, as the agent does; MetaLen and
// MetricsLen are the entry counts written in the map headers.
type DecodedSpan struct {
	Fields int

	TraceID  uint64
	SpanID   uint64
	ParentID uint64

	Name     string
	Resource string
	Service  string
	Type     string
	Error    uint32

	Start    int64
	Duration int64

	Meta       map[string]string
	MetaLen    int
	Metrics    map[string]float64
	MetricsLen int
}

// DecodedTrace is the ordered span list of one trace.
type DecodedTrace []DecodedSpan

// DecodePayload decodes a payload produced by EncoderV4.MakePayload.
func DecodePayload(b []byte) ([]DecodedTrace, error) {
	traces, o, err := DecodeNextPayload(b)
	if err != nil {
		return nil, err
	}
	if len(o) != 0 {
		return nil, fmt.Errorf("core: %d trailing bytes after payload", len(o))
	}
	return traces, nil
}

// DecodeNextPayload decodes the payload at the front of b and returns the
// bytes following it, so that payloads written back to back can be read in
// sequence.
func DecodeNextPayload(b []byte) ([]DecodedTrace, []byte, error) {
	n, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, msgp.WrapError(err, "payload")
	}
	traces := make([]DecodedTrace, 0, n)
	for i := uint32(0); i < n; i++ {
		var t DecodedTrace
		t, o, err = DecodeTrace(o)
		if err != nil {
			return nil, b, msgp.WrapError(err, fmt.Sprintf("trace %d", i))
		}
		traces = append(traces, t)
	}
	return traces, o, nil
}

// DecodeTrace decodes one trace from the front of b, such as the bytes
// published on the Encoded channel, and returns the remaining bytes.
func DecodeTrace(b []byte) (DecodedTrace, []byte, error) {
	n, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, msgp.WrapError(err, "spans")
	}
	t := make(DecodedTrace, n)
	for i := range t {
		o, err = t[i].UnmarshalMsg(o)
		if err != nil {
			return nil, b, msgp.WrapError(err, fmt.Sprintf("span %d", i))
		}
	}
	return t, o, nil
}

// UnmarshalMsg reads one span map from the front of bts.
func (s *DecodedSpan) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var fields uint32
	fields, o, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	s.Fields = int(fields)
	for ; fields > 0; fields-- {
		var key string
		key, o, err = msgp.ReadStringBytes(o)
		if err != nil {
			return bts, msgp.WrapError(err, "key")
		}
		switch key {
		case "type":
			s.Type, o, err = msgp.ReadStringBytes(o)
		case "trace_id":
			s.TraceID, o, err = msgp.ReadUint64Bytes(o)
		case "span_id":
			s.SpanID, o, err = msgp.ReadUint64Bytes(o)
		case "parent_id":
			s.ParentID, o, err = msgp.ReadUint64Bytes(o)
		case "name":
			s.Name, o, err = msgp.ReadStringBytes(o)
		case "resource":
			s.Resource, o, err = msgp.ReadStringBytes(o)
		case "service":
			s.Service, o, err = msgp.ReadStringBytes(o)
		case "error":
			s.Error, o, err = msgp.ReadUint32Bytes(o)
		case "start":
			var u uint64
			u, o, err = msgp.ReadUint64Bytes(o)
			s.Start = int64(u)
		case "duration":
			var u uint64
			u, o, err = msgp.ReadUint64Bytes(o)
			s.Duration = int64(u)
		case "meta":
			o, err = s.unmarshalMeta(o)
		case "metrics":
			o, err = s.unmarshalMetrics(o)
		default:
			o, err = msgp.Skip(o)
		}
		if err != nil {
			return bts, msgp.WrapError(err, key)
		}
	}
	return o, nil
}

func (s *DecodedSpan) unmarshalMeta(bts []byte) ([]byte, error) {
	n, o, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	s.MetaLen = int(n)
	s.Meta = make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		var k, v string
		if k, o, err = msgp.ReadStringBytes(o); err != nil {
			return bts, err
		}
		if v, o, err = msgp.ReadStringBytes(o); err != nil {
			return bts, msgp.WrapError(err, k)
		}
		s.Meta[k] = v
	}
	return o, nil
}

func (s *DecodedSpan) unmarshalMetrics(bts []byte) ([]byte, error) {
	n, o, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	s.MetricsLen = int(n)
	s.Metrics = make(map[string]float64, n)
	for i := uint32(0); i < n; i++ {
		var k string
		var v float64
		if k, o, err = msgp.ReadStringBytes(o); err != nil {
			return bts, err
		}
		if v, o, err = msgp.ReadFloat64Bytes(o); err != nil {
			return bts, msgp.WrapError(err, k)
		}
		s.Metrics[k] = v
	}
	return o, nil
}
