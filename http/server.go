package http

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/Nordstrom/ctrace-agent/ext"
	"github.com/Nordstrom/ctrace-agent/log"
	"github.com/felixge/httpsnoop"
	opentracing "github.com/opentracing/opentracing-go"
	godebug "github.com/tj/go-debug"
)

var debug = godebug.Debug("ctrace:http")

// maxErrorBody caps how much of an error response is kept on the span.
const maxErrorBody = 1024

// TracedHandler returns a http.Handler that is traced as an opentracing.Span
func TracedHandler(h http.Handler, options ...Option) http.Handler {
	mux, muxFound := h.(*http.ServeMux)
	route := func(r *http.Request) string {
		if muxFound {
			if _, pattern := mux.Handler(r); pattern != "" {
				return pattern
			}
		}
		return r.URL.Path
	}
	opts := httpOptions{
		opNameFunc: func(r *http.Request) string {
			return r.Method + ":" + route(r)
		},
		resourceFunc: func(r *http.Request) string {
			return r.Method + " " + route(r)
		},
	}

	for _, opt := range options {
		opt(&opts)
	}
	fn := func(w http.ResponseWriter, r *http.Request) {
		var (
			tracer       = opentracing.GlobalTracer()
			parentCtx, _ = tracer.Extract(
				opentracing.HTTPHeaders,
				opentracing.HTTPHeadersCarrier(r.Header))

			span, ctx = opentracing.StartSpanFromContext(
				r.Context(),
				opts.opNameFunc(r),
				opentracing.ChildOf(parentCtx),
				ext.SpanKindServer(),
				ext.SpanTypeWeb(),
				ext.ResourceName(opts.resourceFunc(r)),
				ext.Component("ctrace.TracedHandler"),
				ext.HTTPRemoteAddr(remoteAddr(r)),
				ext.HTTPMethod(r.Method),
				ext.HTTPUrl(r.URL.String()),
				ext.HTTPUserAgent(r.UserAgent()),
			)

			status        = http.StatusOK
			body          []byte
			headerWritten = false
			lock          sync.Mutex
			hooks         = httpsnoop.Hooks{
				WriteHeader: func(fn httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						fn(code)
						lock.Lock()
						defer lock.Unlock()
						if !headerWritten {
							status = code
							headerWritten = true
						}
					}
				},
				Write: func(fn httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(bytes []byte) (int, error) {
						n, err := fn(bytes)
						lock.Lock()
						defer lock.Unlock()

						if room := maxErrorBody - len(body); room > 0 {
							if len(bytes) > room {
								bytes = bytes[:room]
							}
							body = append(body, bytes...)
						}
						headerWritten = true
						return n, err
					}
				},
			}
			wr = r.WithContext(ctx)
		)
		debug("TracedHandler: ServeHTTP(%s %s)", r.Method, r.URL.Path)
		h.ServeHTTP(httpsnoop.Wrap(w, hooks), wr)
		span.SetTag(ext.HTTPStatusCodeKey, strconv.Itoa(status))

		if status >= 400 {
			span.SetTag(ext.ErrorKey, true)
			if status >= 500 || len(body) > 0 {
				span.LogFields(
					log.Event("error"),
					log.ErrorKind("http-server"),
					log.Message(string(body)),
				)
			}
		}

		span.Finish()
	}

	return http.HandlerFunc(fn)
}

// TracedHandlerFunc returns a http.HandlerFunc that is traced as an opentracing.Span
func TracedHandlerFunc(fn func(http.ResponseWriter, *http.Request), options ...Option) http.HandlerFunc {
	return TracedHandler(http.HandlerFunc(fn), options...).ServeHTTP
}
