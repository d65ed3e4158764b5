package core

import "github.com/google/uuid"

// Language is reported in the "language" meta tag of spans that belong to
// the tracer's own service.
const Language = "go"

var runtimeID = uuid.NewString()

// RuntimeID returns the identifier of this process, generated once at start.
func RuntimeID() string {
	return runtimeID
}

// TracerConfig is the read-only tracer snapshot consulted on every encode.
// It must not be mutated while an encoder is using it.
type TracerConfig struct {
	Service  string
	Env      string
	Version  string
	Hostname string

	// Meta and Metrics are added to every span.
	Meta    map[string]Value
	Metrics map[string]Value

	// RuntimeID overrides the process runtime id. Mostly useful in tests.
	RuntimeID string
}

func (c *TracerConfig) runtimeID() string {
	if c.RuntimeID != "" {
		return c.RuntimeID
	}
	return runtimeID
}
