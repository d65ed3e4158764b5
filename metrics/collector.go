// Package metrics exposes what the trace encoder does as Prometheus metrics.
package metrics

import (
	"github.com/Nordstrom/ctrace-agent/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinylib/msgp/msgp"
)

// Collector counts encoded traces and assembled payloads by subscribing to
// the encoder channels.
type Collector struct {
	EncodedBytes  prometheus.Counter
	Traces        prometheus.Counter
	Spans         prometheus.Counter
	Payloads      prometheus.Counter
	PayloadTraces prometheus.Counter
	PayloadBytes  prometheus.Histogram

	unsubscribe []func()
}

// NewCollector creates the metrics, registers them with reg and starts
// listening to core.Encoded and core.Assembled.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		EncodedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_encoder_encoded_bytes_total",
			Help: "Total bytes of encoded traces",
		}),
		Traces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_encoder_traces_total",
			Help: "Total traces encoded",
		}),
		Spans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_encoder_spans_total",
			Help: "Total spans encoded",
		}),
		Payloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_encoder_payloads_total",
			Help: "Total payloads assembled",
		}),
		PayloadTraces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_encoder_payload_traces_total",
			Help: "Total traces handed to writers in payloads",
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctrace_encoder_payload_bytes",
			Help:    "Size of assembled payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
	reg.MustRegister(c.EncodedBytes, c.Traces, c.Spans, c.Payloads, c.PayloadTraces, c.PayloadBytes)

	c.unsubscribe = []func(){
		core.Encoded.Subscribe(c.onEncoded),
		core.Assembled.Subscribe(c.onAssembled),
	}
	return c
}

// Close stops listening to the encoder. The metrics stay registered.
func (c *Collector) Close() {
	for _, unsub := range c.unsubscribe {
		unsub()
	}
}

func (c *Collector) onEncoded(trace []byte) {
	c.EncodedBytes.Add(float64(len(trace)))
	c.Traces.Inc()
	if n, _, err := msgp.ReadArrayHeaderBytes(trace); err == nil {
		c.Spans.Add(float64(n))
	}
}

func (c *Collector) onAssembled(payload []byte) {
	c.Payloads.Inc()
	c.PayloadTraces.Add(float64(core.PayloadTraceCount(payload)))
	c.PayloadBytes.Observe(float64(len(payload)))
}
