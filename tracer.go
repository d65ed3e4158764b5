package ctrace

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/Nordstrom/ctrace-agent/core"
	opentracing "github.com/opentracing/opentracing-go"
)

// Tracer is a simple, thin interface for Span creation and SpanContext
// propagation.
type Tracer interface {
	opentracing.Tracer
	StartSpanWithOptions(string, opentracing.StartSpanOptions) opentracing.Span

	// Flush asks the writer to deliver every finished trace.
	Flush()

	// Close flushes and stops the writer. The tracer must not be used after.
	Close()
}

// tracer implements the `Tracer` interface.
type tracer struct {
	options TracerOptions
	encoder *core.EncoderV4
	writer  Writer

	// flushEach reports every trace as soon as it is encoded.
	flushEach bool

	rng *rand.Rand
	sync.Mutex
	textMapPropagator     *textMapPropagator
	httpHeadersPropagator *textMapPropagator
}

// TracerOptions allows creating a customized Tracer via NewWithOptions. The
// object must not be updated when there is an active tracer using it.
type TracerOptions struct {
	// ServiceName is the "service" of every span unless a span overrides it
	// with the service.name tag. Defaults to $CTRACE_SERVICE_NAME.
	ServiceName string `toml:"service"`

	// Env and Version are reported on every span. They default to
	// $CTRACE_ENV and $CTRACE_VERSION.
	Env     string `toml:"env"`
	Version string `toml:"version"`

	// Hostname is reported as _dd.hostname. Defaults to $CTRACE_HOSTNAME.
	Hostname string `toml:"hostname"`

	// AgentURL is the base URL of the trace agent. Defaults to
	// $CTRACE_AGENT_URL. When both are empty traces are printed to Writer
	// instead of being sent.
	AgentURL string `toml:"agent_url"`

	// FlushInterval is how often buffered traces are sent to the agent.
	FlushInterval time.Duration `toml:"flush_interval"`

	// GlobalTags are added to every span.
	GlobalTags map[string]interface{} `toml:"tags"`

	// Writer receives JSON span lines when no agent is configured. It
	// defaults to os.Stdout.
	Writer io.Writer `toml:"-"`

	// Transport overrides how payloads are delivered.
	Transport Writer `toml:"-"`

	// DebugAssertUseAfterFinish is provided strictly for development purposes.
	// When set, it attempts to exacerbate issues emanating from use of Spans
	// after calling Finish by running additional assertions.
	DebugAssertUseAfterFinish bool `toml:"-"`
}

// New creates a default Tracer.
func New() Tracer {
	return NewWithOptions(TracerOptions{})
}

// NewWithOptions creates a customized Tracer.
func NewWithOptions(opts TracerOptions) Tracer {
	opts = opts.withEnv()

	t := &tracer{
		options:               opts,
		rng:                   rand.New(rand.NewSource(time.Now().UnixNano())),
		textMapPropagator:     newTextMapPropagator(),
		httpHeadersPropagator: newHTTPHeadersPropagator(),
	}
	switch {
	case opts.Transport != nil:
		t.writer = opts.Transport
	case opts.AgentURL != "":
		t.writer = NewAgentWriter(opts.AgentURL, opts.FlushInterval, nil)
	default:
		t.writer = NewReportingWriter(opts.Writer)
		t.flushEach = true
	}
	t.encoder = core.NewEncoderV4(t.writer, opts.config())
	t.writer.Attach(t.encoder)
	return t
}

func (t *tracer) StartSpan(
	operationName string,
	opts ...opentracing.StartSpanOption,
) opentracing.Span {
	sso := opentracing.StartSpanOptions{}
	for _, o := range opts {
		o.Apply(&sso)
	}
	return t.StartSpanWithOptions(operationName, sso)
}

func (t *tracer) StartSpanWithOptions(
	operationName string,
	opts opentracing.StartSpanOptions,
) opentracing.Span {
	// Start time.
	startTime := opts.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	sp := &span{
		tracer: t,
		start:  startTime,
		data: &core.Span{
			Name:    operationName,
			Service: t.options.ServiceName,
			Start:   startTime.UnixNano(),
		},
	}

	// Look for a parent in the list of References. Contexts of other tracers
	// are ignored.
	var parent *spanContext
	for _, ref := range opts.References {
		if refCtx, ok := ref.ReferencedContext.(spanContext); ok && refCtx.traceID != 0 {
			parent = &refCtx
			break
		}
	}
	if parent != nil {
		sp.context.traceID = parent.traceID
		sp.context.spanID = t.randomID()
		sp.data.ParentID = parent.spanID
		sp.context.trace = parent.trace

		if l := len(parent.baggage); l > 0 {
			sp.context.baggage = make(map[string]string, l)
			for k, v := range parent.baggage {
				sp.context.baggage[k] = v
			}
		}
		if sp.context.trace == nil {
			// Remote parent: this process starts its own chunk of the trace.
			sp.context.trace = t.newTraceBuffer()
			sp.context.trace.setOrigin(parent.origin)
			sp.context.trace.setSamplingPriority(parent.priority)
		}
	} else {
		sp.context.traceID = t.randomID()
		sp.context.spanID = sp.context.traceID
		sp.context.trace = t.newTraceBuffer()
	}
	sp.data.TraceID = sp.context.traceID
	sp.data.SpanID = sp.context.spanID
	sp.buffered = sp.context.trace.push(sp.data)

	for k, v := range opts.Tags {
		sp.setTag(k, v)
	}
	return sp
}

func (t *tracer) newTraceBuffer() *traceBuffer {
	return newTraceBuffer(t.encode)
}

// encode hands a completed trace to the encoder.
func (t *tracer) encode(trace *core.Trace) {
	t.encoder.Encode(trace.Spans)
	if t.flushEach {
		t.writer.Flush()
	}
}

func (t *tracer) Inject(sc opentracing.SpanContext, format interface{}, carrier interface{}) error {
	switch format {
	case opentracing.TextMap:
		return t.textMapPropagator.Inject(sc, carrier)
	case opentracing.HTTPHeaders:
		return t.httpHeadersPropagator.Inject(sc, carrier)
	}
	return opentracing.ErrUnsupportedFormat
}

func (t *tracer) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	switch format {
	case opentracing.TextMap:
		return t.textMapPropagator.Extract(carrier)
	case opentracing.HTTPHeaders:
		return t.httpHeadersPropagator.Extract(carrier)
	}
	return nil, opentracing.ErrUnsupportedFormat
}

func (t *tracer) Flush() {
	t.writer.Flush()
}

func (t *tracer) Close() {
	t.writer.Stop()
}

func (t *tracer) randomNumber() uint64 {
	return t.rng.Uint64()
}

// randomID generates a random trace/span ID, using tracer.random() generator.
// It never returns 0.
func (t *tracer) randomID() uint64 {
	t.Lock()
	defer t.Unlock()

	val := t.randomNumber()
	for val == 0 {
		val = t.randomNumber()
	}
	return val
}
