// Package ctrace is an OpenTracing tracer that reports to a local trace agent.
//
// Finished traces are encoded into the agent's v0.4 msgpack format by
// package core and sent to the agent in batches by an AgentWriter. Without
// an agent URL the tracer prints one JSON line per span to stdout instead,
// which is handy when developing locally.
//
//	tracer := ctrace.Init(ctrace.TracerOptions{
//	    ServiceName: "checkout",
//	    AgentURL:    "http://localhost:8126",
//	})
//	defer tracer.Close()
//
// Set DEBUG=ctrace* to see what the tracer is doing.
package ctrace
