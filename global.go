package ctrace

import (
	opentracing "github.com/opentracing/opentracing-go"
	godebug "github.com/tj/go-debug"
)

var (
	debug = godebug.Debug("ctrace")
)

func init() {
	debug("Initializing ctrace...")
	Init(TracerOptions{})
}

// Init initializes the global Tracer returned by Global(). A global ctrace
// Tracer it replaces is closed.
func Init(opts TracerOptions) Tracer {
	if prev, ok := opentracing.GlobalTracer().(Tracer); ok {
		defer prev.Close()
	}
	opentracing.SetGlobalTracer(NewWithOptions(opts))

	return Global()
}

// Global returns the global Tracer
func Global() Tracer {
	return opentracing.GlobalTracer().(Tracer)
}
