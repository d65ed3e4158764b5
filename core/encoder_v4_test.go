package core

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/vmihailenco/msgpack/v5"
)

type flushCounter struct {
	sync.Mutex
	flushes int
	onFlush func()
}

func (w *flushCounter) Flush() {
	w.Lock()
	w.flushes++
	fn := w.onFlush
	w.Unlock()
	if fn != nil {
		fn()
	}
}

func (w *flushCounter) count() int {
	w.Lock()
	defer w.Unlock()
	return w.flushes
}

// agentSpan mirrors what the agent unmarshals from a v0.4 payload.
type agentSpan struct {
	Type     string             `msgpack:"type"`
	TraceID  uint64             `msgpack:"trace_id"`
	SpanID   uint64             `msgpack:"span_id"`
	ParentID uint64             `msgpack:"parent_id"`
	Name     string             `msgpack:"name"`
	Resource string             `msgpack:"resource"`
	Service  string             `msgpack:"service"`
	Error    int32              `msgpack:"error"`
	Start    uint64             `msgpack:"start"`
	Duration uint64             `msgpack:"duration"`
	Meta     map[string]string  `msgpack:"meta"`
	Metrics  map[string]float64 `msgpack:"metrics"`
}

func newTrace(spans ...*Span) []*Span {
	t := &Trace{}
	for _, sp := range spans {
		t.Add(sp)
	}
	return t.Spans
}

func fixstr(s string) []byte {
	return append([]byte{0xa0 | byte(len(s))}, s...)
}

var _ = Describe("EncoderV4", func() {

	var (
		w   *flushCounter
		cfg *TracerConfig
		enc *EncoderV4
	)

	BeforeEach(func() {
		w = &flushCounter{}
		cfg = &TracerConfig{RuntimeID: "rid"}
		enc = NewEncoderV4(w, cfg)
	})

	decode := func() []DecodedTrace {
		traces, err := DecodePayload(enc.MakePayload())
		Ω(err).ShouldNot(HaveOccurred())
		return traces
	}

	Describe("Encode", func() {
		It("counts an empty span list as a trace", func() {
			enc.Encode(nil)
			Ω(enc.Count()).Should(Equal(1))
			Ω(enc.MakePayload()).Should(Equal([]byte{0xdd, 0, 0, 0, 1, 0xdd, 0, 0, 0, 0}))
		})

		It("encodes a minimal span byte for byte", func() {
			cfg.RuntimeID = ""
			enc.Encode(newTrace(&Span{
				TraceID:  1,
				SpanID:   2,
				Name:     "op",
				Resource: "op",
				Service:  "svc",
				Start:    1000,
				Duration: 500,
			}))
			payload := enc.MakePayload()

			Ω(payload[:5]).Should(Equal([]byte{0xdd, 0, 0, 0, 1}))
			Ω(payload[5:10]).Should(Equal([]byte{0xdd, 0, 0, 0, 1}))
			Ω(payload[10]).Should(Equal(byte(0x8b)))

			expected := []byte{}
			expected = append(expected, fixstr("trace_id")...)
			expected = append(expected, 0xcf, 0, 0, 0, 0, 0, 0, 0, 1)
			expected = append(expected, fixstr("span_id")...)
			expected = append(expected, 0xcf, 0, 0, 0, 0, 0, 0, 0, 2)
			expected = append(expected, fixstr("parent_id")...)
			expected = append(expected, 0xcf, 0, 0, 0, 0, 0, 0, 0, 0)
			expected = append(expected, fixstr("name")...)
			expected = append(expected, fixstr("op")...)
			expected = append(expected, fixstr("resource")...)
			expected = append(expected, fixstr("op")...)
			expected = append(expected, fixstr("service")...)
			expected = append(expected, fixstr("svc")...)
			expected = append(expected, fixstr("error")...)
			expected = append(expected, 0xce, 0, 0, 0, 0)
			expected = append(expected, fixstr("start")...)
			expected = append(expected, 0xcf, 0, 0, 0, 0, 0, 0, 0x03, 0xe8)
			expected = append(expected, fixstr("duration")...)
			expected = append(expected, 0xcf, 0, 0, 0, 0, 0, 0, 0x01, 0xf4)
			expected = append(expected, fixstr("meta")...)
			Ω(payload[11 : 11+len(expected)]).Should(Equal(expected))

			meta := payload[11+len(expected):]
			Ω(meta[0]).Should(Equal(byte(0xdf)))
			// runtime-id only: the config has no service, so no language tag
			// is expected for "svc" either.
			Ω(binary.BigEndian.Uint32(meta[1:5])).Should(Equal(uint32(1)))
		})

		It("counts traces until the payload is made", func() {
			for i := 0; i < 3; i++ {
				enc.Encode(newTrace(&Span{SpanID: uint64(i + 1)}))
			}
			Ω(enc.Count()).Should(Equal(3))

			payload := enc.MakePayload()
			Ω(PayloadTraceCount(payload)).Should(Equal(3))
			Ω(enc.Count()).Should(BeZero())
		})

		It("uses 12 keys only when the type is set", func() {
			enc.Encode(newTrace(&Span{SpanID: 1, Type: "web"}, &Span{SpanID: 2}))
			traces := decode()
			Ω(traces).Should(HaveLen(1))
			Ω(traces[0][0].Fields).Should(Equal(12))
			Ω(traces[0][0].Type).Should(Equal("web"))
			Ω(traces[0][1].Fields).Should(Equal(11))
		})

		It("writes error as 0 or 1, never the error itself", func() {
			enc.Encode(newTrace(
				&Span{SpanID: 1},
				&Span{SpanID: 2, Error: true},
				&Span{SpanID: 3, ErrorDetail: &SpanError{Message: "boom"}},
			))
			t := decode()[0]
			Ω(t[0].Error).Should(Equal(uint32(0)))
			Ω(t[1].Error).Should(Equal(uint32(1)))
			Ω(t[2].Error).Should(Equal(uint32(1)))
			Ω(t[2].Meta).Should(HaveKeyWithValue("error.msg", "boom"))
		})

		It("is readable by a generic msgpack decoder", func() {
			enc.Encode(newTrace(&Span{
				TraceID:  math.MaxUint64,
				SpanID:   7,
				Name:     "n",
				Service:  "s",
				Type:     "db",
				Start:    42,
				Duration: -1,
				Meta:     map[string]Value{"k": String("v")},
				Metrics:  map[string]Value{"m": Number(2.5)},
			}))
			var traces [][]agentSpan
			Ω(msgpack.Unmarshal(enc.MakePayload(), &traces)).Should(Succeed())
			Ω(traces).Should(HaveLen(1))

			sp := traces[0][0]
			Ω(sp.TraceID).Should(Equal(uint64(math.MaxUint64)))
			Ω(sp.SpanID).Should(Equal(uint64(7)))
			Ω(sp.Type).Should(Equal("db"))
			Ω(int64(sp.Start)).Should(Equal(int64(42)))
			Ω(int64(sp.Duration)).Should(Equal(int64(-1)))
			Ω(sp.Meta).Should(HaveKeyWithValue("k", "v"))
			Ω(sp.Metrics).Should(HaveKeyWithValue("m", 2.5))
			Ω(sp.Metrics).Should(HaveKeyWithValue("_dd.measured", 0.0))
		})

		table.DescribeTable("round-trips ids and timings",
			func(id uint64, start, duration int64) {
				enc.Encode(newTrace(&Span{
					TraceID:  id,
					SpanID:   id,
					ParentID: id,
					Name:     "name",
					Resource: "resource",
					Service:  "service",
					Start:    start,
					Duration: duration,
				}))
				sp := decode()[0][0]
				Ω(sp.TraceID).Should(Equal(id))
				Ω(sp.SpanID).Should(Equal(id))
				Ω(sp.ParentID).Should(Equal(id))
				Ω(sp.Start).Should(Equal(start))
				Ω(sp.Duration).Should(Equal(duration))
				Ω(sp.Name).Should(Equal("name"))
				Ω(sp.Resource).Should(Equal("resource"))
				Ω(sp.Service).Should(Equal("service"))
			},
			table.Entry("zero", uint64(0), int64(0), int64(0)),
			table.Entry("max", uint64(math.MaxUint64), int64(math.MaxInt64), int64(math.MaxInt64)),
			table.Entry("beyond 32 bits", uint64(1)<<40, int64(1700000000000000000), int64(5000000000)),
			table.Entry("negative", uint64(12345), int64(-1), int64(-2)),
			table.Entry("min", uint64(1), int64(math.MinInt64), int64(math.MinInt64)),
		)

		It("publishes the bytes of each encoded trace", func() {
			var published [][]byte
			unsubscribe := Encoded.Subscribe(func(b []byte) {
				published = append(published, append([]byte(nil), b...))
			})
			defer unsubscribe()

			enc.Encode(newTrace(&Span{SpanID: 1, Name: "a"}))
			enc.Encode(newTrace(&Span{SpanID: 2, Name: "b"}, &Span{SpanID: 3, Name: "c"}))

			Ω(published).Should(HaveLen(2))
			t, rest, err := DecodeTrace(published[1])
			Ω(err).ShouldNot(HaveOccurred())
			Ω(rest).Should(BeEmpty())
			Ω(t).Should(HaveLen(2))
			Ω(t[1].Name).Should(Equal("c"))
		})
	})

	Describe("meta", func() {
		It("writes config tags in order and skips empty ones", func() {
			cfg.Service = "svc"
			cfg.Version = "1.0"
			cfg.Hostname = "host"
			enc.Encode(newTrace(&Span{Service: "other"}))
			sp := decode()[0][0]
			Ω(sp.Meta).Should(Equal(map[string]string{
				"service":      "svc",
				"version":      "1.0",
				"runtime-id":   "rid",
				"_dd.hostname": "host",
			}))
			Ω(sp.MetaLen).Should(Equal(4))
		})

		It("adds the language tag for the tracer's own service", func() {
			cfg.Service = "svc"
			enc.Encode(newTrace(&Span{Service: "svc"}, &Span{Service: "db"}))
			t := decode()[0]
			Ω(t[0].Meta).Should(HaveKeyWithValue("language", "go"))
			Ω(t[1].Meta).ShouldNot(HaveKey("language"))
		})

		It("writes the trace origin", func() {
			spans := newTrace(&Span{SpanID: 1})
			spans[0].Trace.Origin = "synthetics"
			enc.Encode(spans)
			Ω(decode()[0][0].Meta).Should(HaveKeyWithValue("_dd.origin", "synthetics"))
		})

		It("counts only the entries actually written", func() {
			enc.Encode(newTrace(&Span{
				Meta: map[string]Value{
					"ok":     String("yes"),
					"empty":  String(""),
					"number": Number(3),
					"absent": {},
					"bool":   ValueOf(true),
				},
			}))
			sp := decode()[0][0]
			Ω(sp.MetaLen).Should(Equal(3))
			Ω(sp.Meta).Should(Equal(map[string]string{
				"runtime-id": "rid",
				"language":   "go",
				"ok":         "yes",
			}))
		})

		It("expands error details and extra fields", func() {
			enc.Encode(newTrace(&Span{
				ErrorDetail: &SpanError{
					Type:    "*errors.errorString",
					Message: "boom",
					Fields: map[string]Value{
						"code":  String("E42"),
						"retry": Number(1),
					},
				},
			}))
			sp := decode()[0][0]
			Ω(sp.Meta).Should(HaveKeyWithValue("error.type", "*errors.errorString"))
			Ω(sp.Meta).Should(HaveKeyWithValue("error.msg", "boom"))
			Ω(sp.Meta).ShouldNot(HaveKey("error.stack"))
			Ω(sp.Meta).Should(HaveKeyWithValue("code", "E42"))
			Ω(sp.Meta).ShouldNot(HaveKey("retry"))
			Ω(sp.MetaLen).Should(Equal(5))
		})

		It("emits duplicated keys from every source", func() {
			cfg.Meta = map[string]Value{"team": String("a")}
			enc.Encode(newTrace(&Span{Meta: map[string]Value{"team": String("b")}}))
			sp := decode()[0][0]
			Ω(sp.MetaLen).Should(Equal(4))
			Ω(sp.Meta).Should(HaveKeyWithValue("team", "b"))
		})

		It("writes trace-level meta on the first span only", func() {
			spans := newTrace(&Span{SpanID: 1}, &Span{SpanID: 2}, &Span{SpanID: 3})
			spans[0].Trace.Meta = map[string]Value{"_dd.p.dm": String("-1")}
			enc.Encode(spans)
			t := decode()[0]
			Ω(t[0].Meta).Should(HaveKeyWithValue("_dd.p.dm", "-1"))
			Ω(t[1].Meta).ShouldNot(HaveKey("_dd.p.dm"))
			Ω(t[2].Meta).ShouldNot(HaveKey("_dd.p.dm"))
		})

		It("handles spans without a trace", func() {
			enc.Encode([]*Span{{SpanID: 1}})
			sp := decode()[0][0]
			Ω(sp.Meta).Should(Equal(map[string]string{"runtime-id": "rid", "language": "go"}))
			Ω(sp.Metrics).Should(Equal(map[string]float64{"_dd.measured": 0}))
		})
	})

	Describe("metrics", func() {
		It("writes priority and measured first", func() {
			spans := newTrace(&Span{Measured: true})
			spans[0].Trace.SamplingPriority = Number(2)
			enc.Encode(spans)
			sp := decode()[0][0]
			Ω(sp.Metrics).Should(Equal(map[string]float64{
				"_sampling_priority_v1": 2,
				"_dd.measured":          1,
			}))
		})

		It("skips non-numeric values without counting them", func() {
			cfg.Metrics = map[string]Value{"global": Number(1), "bad": String("x")}
			enc.Encode(newTrace(&Span{
				Metrics: map[string]Value{
					"zero":   Number(0),
					"nan":    Number(math.NaN()),
					"string": String("1"),
					"absent": {},
				},
			}))
			sp := decode()[0][0]
			Ω(sp.MetricsLen).Should(Equal(4))
			Ω(sp.Metrics).Should(HaveKeyWithValue("global", 1.0))
			Ω(sp.Metrics).Should(HaveKeyWithValue("zero", 0.0))
			Ω(sp.Metrics).Should(HaveKey("nan"))
			Ω(sp.Metrics).ShouldNot(HaveKey("bad"))
			Ω(sp.Metrics).ShouldNot(HaveKey("string"))
		})

		It("writes trace-level metrics on the first span only", func() {
			spans := newTrace(&Span{SpanID: 1}, &Span{SpanID: 2})
			spans[0].Trace.Metrics = map[string]Value{"_top_level": Number(1)}
			enc.Encode(spans)
			t := decode()[0]
			Ω(t[0].Metrics).Should(HaveKey("_top_level"))
			Ω(t[1].Metrics).ShouldNot(HaveKey("_top_level"))
		})
	})

	Describe("string interning", func() {
		It("does not grow the string buffer for repeated traces", func() {
			trace := func() []*Span {
				return newTrace(&Span{Name: "http.request", Resource: "GET /", Service: "web"})
			}
			enc.Encode(trace())
			first := enc.Stats()
			enc.Encode(trace())
			second := enc.Stats()

			Ω(second.StringBytes).Should(Equal(first.StringBytes))
			Ω(second.Strings).Should(Equal(first.Strings))
			Ω(second.TraceBytes).Should(Equal(2 * first.TraceBytes))
		})

		It("encodes repeated values identically", func() {
			var published [][]byte
			unsubscribe := Encoded.Subscribe(func(b []byte) {
				published = append(published, append([]byte(nil), b...))
			})
			defer unsubscribe()

			enc.Encode(newTrace(&Span{Name: "same"}))
			enc.Encode(newTrace(&Span{Name: "same"}))
			Ω(published).Should(HaveLen(2))
			Ω(published[0]).Should(Equal(published[1]))
		})
	})

	Describe("soft limit", func() {
		It("signals one flush when the trace buffer crosses it", func() {
			big := strings.Repeat("x", SoftLimit/3)
			enc.Encode(newTrace(&Span{Name: big}))
			Ω(w.count()).Should(BeZero())
			enc.Encode(newTrace(&Span{Name: big}))
			Ω(w.count()).Should(BeZero())
			enc.Encode(newTrace(&Span{Name: big}))
			Ω(w.count()).Should(Equal(1))
		})

		It("starts counting again after the payload is made", func() {
			enc.Encode(newTrace(&Span{Name: strings.Repeat("a", SoftLimit)}))
			Ω(w.count()).Should(Equal(1))
			enc.MakePayload()
			enc.Encode(newTrace(&Span{Name: "small"}))
			Ω(w.count()).Should(Equal(1))
		})

		It("lets the writer drain synchronously", func() {
			var payload []byte
			w.onFlush = func() { payload = enc.MakePayload() }
			enc.Encode(newTrace(&Span{Name: strings.Repeat("y", SoftLimit+1)}))

			Ω(w.count()).Should(Equal(1))
			Ω(PayloadTraceCount(payload)).Should(Equal(1))
			Ω(enc.Count()).Should(BeZero())
		})

		It("does not require a writer", func() {
			enc = NewEncoderV4(nil, nil)
			Ω(func() {
				enc.Encode(newTrace(&Span{Name: strings.Repeat("z", SoftLimit+1)}))
			}).ShouldNot(Panic())
		})
	})

	Describe("MakePayload", func() {
		It("allocates exactly the trace bytes plus the header", func() {
			enc.Encode(newTrace(&Span{SpanID: 1}))
			size := enc.Stats().TraceBytes
			Ω(enc.MakePayload()).Should(HaveLen(size + 5))
		})

		It("frames an empty payload", func() {
			Ω(enc.MakePayload()).Should(Equal([]byte{0xdd, 0, 0, 0, 0}))
		})

		It("resets all session state", func() {
			enc.Encode(newTrace(&Span{Name: "a", Service: "b"}))
			enc.MakePayload()
			Ω(enc.Stats()).Should(Equal(EncoderStats{
				Traces:      0,
				TraceBytes:  0,
				StringBytes: 1,
				Strings:     1,
			}))
			Ω(enc.strings.ranges[""]).Should(Equal(stringRange{start: 0, end: 1}))
		})

		It("returns a buffer the encoder no longer touches", func() {
			enc.Encode(newTrace(&Span{Name: "first"}))
			payload := enc.MakePayload()
			snapshot := append([]byte(nil), payload...)
			enc.Encode(newTrace(&Span{Name: "second"}))
			Ω(payload).Should(Equal(snapshot))
		})

		It("publishes the assembled payload", func() {
			var sizes []int
			unsubscribe := Assembled.Subscribe(func(b []byte) { sizes = append(sizes, len(b)) })
			defer unsubscribe()

			enc.Encode(newTrace(&Span{}))
			payload := enc.MakePayload()
			Ω(sizes).Should(Equal([]int{len(payload)}))
		})
	})

	Describe("concurrency", func() {
		It("serializes encodes and payloads", func() {
			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				traces int
			)
			const workers, perWorker = 8, 50
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						enc.Encode(newTrace(&Span{SpanID: uint64(i*perWorker + j + 1), Name: "op"}))
						if j%10 == 0 {
							decoded, err := DecodePayload(enc.MakePayload())
							Ω(err).ShouldNot(HaveOccurred())
							mu.Lock()
							traces += len(decoded)
							mu.Unlock()
						}
					}
				}(i)
			}
			wg.Wait()
			decoded, err := DecodePayload(enc.MakePayload())
			Ω(err).ShouldNot(HaveOccurred())
			Ω(traces + len(decoded)).Should(Equal(workers * perWorker))
		})
	})
})

var _ = Describe("NewSpanError", func() {
	It("captures type and message", func() {
		se := NewSpanError(errors.New("boom"))
		Ω(se.Type).Should(Equal("*errors.errorString"))
		Ω(se.Message).Should(Equal("boom"))
		Ω(se.Stack).Should(BeEmpty())
	})

	It("returns nil for nil", func() {
		Ω(NewSpanError(nil)).Should(BeNil())
	})
})
