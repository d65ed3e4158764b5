package core

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// errNilSink signals that a SpanReporter was created without a writer.
var errNilSink = errors.New("core: can't report spans to a nil writer")

// SpanReporter writes the spans of decoded traces to a sink.
type SpanReporter interface {
	Report(DecodedTrace) error
}

type spanReporter struct {
	io.Writer
	SpanEncoder
	sync.Mutex
}

// NewSpanReporter creates a new default SpanReporter.
func NewSpanReporter(w io.Writer, e SpanEncoder) SpanReporter {
	return &spanReporter{Writer: w, SpanEncoder: e}
}

func (r *spanReporter) Report(t DecodedTrace) error {
	if r.Writer == nil {
		return errNilSink
	}

	r.Lock()
	defer r.Unlock()
	for _, sp := range t {
		bytes := r.Encode(sp)
		expectedBytes := len(bytes)

		n, err := r.Write(bytes)
		if err != nil {
			return err
		}
		if n != expectedBytes {
			return fmt.Errorf("incomplete write: only wrote %v of %v bytes", n, expectedBytes)
		}
	}
	return nil
}
