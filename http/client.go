package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/Nordstrom/ctrace-agent/ext"
	"github.com/Nordstrom/ctrace-agent/log"
	opentracing "github.com/opentracing/opentracing-go"
)

type tracedTransport struct {
	component string
	transport http.RoundTripper
	options   httpOptions
}

// NewTracedTransport creates a new Transporter (http.RoundTripper) that intercepts
// and traces egress requests.
func NewTracedTransport(t http.RoundTripper, options ...Option) http.RoundTripper {
	opts := httpOptions{
		opNameFunc: func(r *http.Request) string {
			return r.Method + ":" + r.URL.Path
		},
		resourceFunc: func(r *http.Request) string {
			return r.Method + " " + r.URL.Host
		},
	}

	for _, opt := range options {
		opt(&opts)
	}
	if t == nil {
		t = http.DefaultTransport
	}
	return &tracedTransport{
		component: "ctrace.TracedTransport",
		transport: t,
		options:   opts,
	}
}

type closeTracker struct {
	io.ReadCloser
	sp opentracing.Span
}

func (c closeTracker) Close() error {
	err := c.ReadCloser.Close()
	if err != nil {
		c.sp.SetTag(ext.ErrorKey, true)
		c.sp.LogFields(log.ErrorFields(err)...)
	}
	c.sp.Finish()
	return err
}

func (t *tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	span, _ := opentracing.StartSpanFromContext(
		req.Context(),
		t.options.opNameFunc(req),
		ext.SpanKindClient(),
		ext.SpanTypeHTTP(),
		ext.ResourceName(t.options.resourceFunc(req)),
		ext.Component(t.component),
		ext.HTTPMethod(req.Method),
		ext.HTTPUrl(req.URL.String()),
	)

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	tracer := opentracing.GlobalTracer()
	tracer.Inject(
		span.Context(),
		opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(req.Header))

	debug("Starting client RoundTrip: %s %s", req.Method, req.URL)
	res, err := t.transport.RoundTrip(req)

	if err != nil {
		span.SetTag(ext.ErrorKey, true)
		span.LogFields(log.ErrorFields(err)...)
		span.Finish()
		return res, err
	}

	span.SetTag(ext.HTTPStatusCodeKey, strconv.Itoa(res.StatusCode))
	if res.StatusCode >= 400 {
		span.SetTag(ext.ErrorKey, true)
	}
	if req.Method == "HEAD" || res.Body == nil {
		span.Finish()
	} else {
		res.Body = closeTracker{res.Body, span}
	}
	return res, nil
}
