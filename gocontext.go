package ctrace

import (
	"context"

	"github.com/Nordstrom/ctrace-agent/ext"
	clog "github.com/Nordstrom/ctrace-agent/log"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
)

// ChildOf returns a StartSpanOption pointing to a dependent parent span.
// If sc == nil, the option has no effect.
var ChildOf = opentracing.ChildOf

// ContextWithSpan returns a copy of ctx holding span.
func ContextWithSpan(ctx context.Context, span opentracing.Span) context.Context {
	return opentracing.ContextWithSpan(ctx, span)
}

// StartSpanFromContext starts a Span that is a child of the Span in ctx, or
// a root Span when ctx has none, and returns a context holding it.
func StartSpanFromContext(ctx context.Context, operationName string, opts ...opentracing.StartSpanOption) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, operationName, opts...)
}

// SetResource sets the resource of the Span in ctx. Agents group spans by
// resource, so it should name a route or query shape rather than carry ids.
func SetResource(ctx context.Context, resource string) {
	SetTag(ctx, ext.ResourceNameKey, resource)
}

// SetTag tags the Span in ctx. Without a Span it does nothing.
func SetTag(ctx context.Context, key string, value interface{}) {
	if span := opentracing.SpanFromContext(ctx); span != nil {
		span.SetTag(key, value)
	}
}

// LogErrorMessage marks the Span in ctx as failed with message as error.msg.
// Extra fields become error meta.
func LogErrorMessage(ctx context.Context, message string, fields ...log.Field) {
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return
	}
	f := []log.Field{
		clog.Event("error"),
		clog.ErrorKind("message"),
		clog.Message(message),
	}
	span.SetTag(ext.ErrorKey, true)
	span.LogFields(append(f, fields...)...)
}

// LogErrorObject marks the Span in ctx as failed with e: its type becomes
// error.type and its "%+v" form the stack.
func LogErrorObject(ctx context.Context, e error, fields ...log.Field) {
	span := opentracing.SpanFromContext(ctx)
	if span == nil || e == nil {
		return
	}
	span.SetTag(ext.ErrorKey, true)
	span.LogFields(append(clog.ErrorFields(e), fields...)...)
}
