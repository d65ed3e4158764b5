package ctrace

import (
	"net/http"
	"strconv"

	"github.com/Nordstrom/ctrace-agent/ext"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	opentracing "github.com/opentracing/opentracing-go"
)

var _ = Describe("Propagation", func() {

	var (
		rec *recordingWriter
		trc Tracer
		sp  opentracing.Span
	)

	BeforeEach(func() {
		rec = &recordingWriter{}
		trc = NewWithOptions(TracerOptions{Transport: rec})
		sp = trc.StartSpan("x")
	})

	Describe("TextMap", func() {
		It("injects decimal ids and baggage", func() {
			sp.SetBaggageItem("bkey", "b val")
			carrier := opentracing.TextMapCarrier{}
			Ω(trc.Inject(sp.Context(), opentracing.TextMap, carrier)).Should(Succeed())

			sc := sp.Context().(spanContext)
			Ω(carrier).Should(HaveLen(3))
			Ω(carrier[TraceIDHeader]).Should(MatchRegexp(`^\d+$`))
			Ω(carrier[ParentIDHeader]).Should(Equal(carrier[TraceIDHeader]))
			Ω(carrier[TraceIDHeader]).Should(Equal(strconv.FormatUint(sc.traceID, 10)))
			Ω(carrier["ot-baggage-bkey"]).Should(Equal("b val"))
		})

		It("round-trips ids, baggage, priority and origin", func() {
			sp.SetBaggageItem("bkey", "bval")
			sp.SetTag(ext.SamplingPriorityKey, 1)
			sp.SetTag(ext.OriginKey, "synthetics")
			carrier := opentracing.TextMapCarrier{}
			Ω(trc.Inject(sp.Context(), opentracing.TextMap, carrier)).Should(Succeed())
			Ω(carrier[SamplingPriorityHeader]).Should(Equal("1"))
			Ω(carrier[OriginHeader]).Should(Equal("synthetics"))

			ctx, err := trc.Extract(opentracing.TextMap, carrier)
			Ω(err).ShouldNot(HaveOccurred())
			got := ctx.(spanContext)
			want := sp.Context().(spanContext)
			Ω(got.traceID).Should(Equal(want.traceID))
			Ω(got.spanID).Should(Equal(want.spanID))
			Ω(got.baggage).Should(Equal(map[string]string{"bkey": "bval"}))
			Ω(got.origin).Should(Equal("synthetics"))
			f, ok := got.priority.Float()
			Ω(ok).Should(BeTrue())
			Ω(f).Should(Equal(1.0))
			Ω(got.trace).Should(BeNil())
		})

		It("reports a missing context", func() {
			_, err := trc.Extract(opentracing.TextMap, opentracing.TextMapCarrier{"other": "v"})
			Ω(err).Should(Equal(opentracing.ErrSpanContextNotFound))
		})

		It("reports a partial context", func() {
			_, err := trc.Extract(opentracing.TextMap, opentracing.TextMapCarrier{TraceIDHeader: "1"})
			Ω(err).Should(Equal(opentracing.ErrSpanContextCorrupted))
		})

		It("reports malformed ids", func() {
			_, err := trc.Extract(opentracing.TextMap, opentracing.TextMapCarrier{
				TraceIDHeader:  "abc",
				ParentIDHeader: "1",
			})
			Ω(err).Should(Equal(opentracing.ErrSpanContextCorrupted))
		})

		It("rejects foreign span contexts", func() {
			other := opentracing.NoopTracer{}.StartSpan("other")
			err := trc.Inject(other.Context(), opentracing.TextMap, opentracing.TextMapCarrier{})
			Ω(err).Should(Equal(opentracing.ErrInvalidSpanContext))
		})

		It("rejects bad carriers", func() {
			Ω(trc.Inject(sp.Context(), opentracing.TextMap, "carrier")).Should(Equal(opentracing.ErrInvalidCarrier))
			_, err := trc.Extract(opentracing.TextMap, "carrier")
			Ω(err).Should(Equal(opentracing.ErrInvalidCarrier))
		})
	})

	Describe("HTTPHeaders", func() {
		It("round-trips through canonicalized headers", func() {
			sp.SetBaggageItem("Some Key", "a&b")
			hdrs := http.Header{}
			carrier := opentracing.HTTPHeadersCarrier(hdrs)
			Ω(trc.Inject(sp.Context(), opentracing.HTTPHeaders, carrier)).Should(Succeed())
			Ω(hdrs.Get("X-Datadog-Trace-Id")).ShouldNot(BeEmpty())

			ctx, err := trc.Extract(opentracing.HTTPHeaders, carrier)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(ctx.(spanContext).traceID).Should(Equal(sp.Context().(spanContext).traceID))
			Ω(ctx.(spanContext).baggage).Should(HaveKeyWithValue("some key", "a&b"))
		})
	})

	Describe("Binary", func() {
		It("is unsupported", func() {
			Ω(trc.Inject(sp.Context(), opentracing.Binary, nil)).Should(Equal(opentracing.ErrUnsupportedFormat))
			_, err := trc.Extract(opentracing.Binary, nil)
			Ω(err).Should(Equal(opentracing.ErrUnsupportedFormat))
		})
	})

	Describe("remote parents", func() {
		It("carry origin and priority into the local trace", func() {
			ctx, err := trc.Extract(opentracing.TextMap, opentracing.TextMapCarrier{
				TraceIDHeader:          "42",
				ParentIDHeader:         "7",
				SamplingPriorityHeader: "2",
				OriginHeader:           "rum",
			})
			Ω(err).ShouldNot(HaveOccurred())

			child := trc.StartSpan("child", opentracing.ChildOf(ctx))
			child.Finish()

			s := flushedTrace(trc, rec)[0]
			Ω(s.TraceID).Should(Equal(uint64(42)))
			Ω(s.ParentID).Should(Equal(uint64(7)))
			Ω(s.Meta).Should(HaveKeyWithValue("_dd.origin", "rum"))
			Ω(s.Metrics).Should(HaveKeyWithValue("_sampling_priority_v1", 2.0))
		})
	})
})
