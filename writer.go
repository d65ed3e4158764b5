package ctrace

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Nordstrom/ctrace-agent/core"
)

const (
	// TracerVersion is reported to the agent with every payload.
	TracerVersion = "1.0.0"

	// DefaultAgentURL is where a local agent listens.
	DefaultAgentURL = "http://localhost:8126"

	// DefaultFlushInterval is how often AgentWriter drains the encoder.
	DefaultFlushInterval = time.Second

	tracesPath = "/v0.4/traces"
)

// PayloadSource is the side of the encoder a writer drains.
type PayloadSource interface {
	Count() int
	MakePayload() []byte
}

// Writer delivers the payloads of an encoder. Flush is called by the encoder
// when its buffers pass the soft limit and must not block on delivery.
type Writer interface {
	core.Writer

	// Attach binds the writer to the encoder it drains. It is called once,
	// before the first Flush.
	Attach(src PayloadSource)

	// Stop drains what is buffered and releases the writer.
	Stop()
}

// AgentWriter sends payloads to the trace agent over HTTP from a background
// goroutine, on a timer and whenever Flush is signalled.
type AgentWriter struct {
	url      string
	client   *http.Client
	interval time.Duration

	src      PayloadSource
	flush    chan struct{}
	stop     chan struct{}
	done     chan struct{}
	start    sync.Once
	stopOnce sync.Once
}

// NewAgentWriter creates an AgentWriter for the agent at agentURL. A zero
// interval means DefaultFlushInterval and a nil client http.DefaultClient.
func NewAgentWriter(agentURL string, interval time.Duration, client *http.Client) *AgentWriter {
	if agentURL == "" {
		agentURL = DefaultAgentURL
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &AgentWriter{
		url:      strings.TrimSuffix(agentURL, "/") + tracesPath,
		client:   client,
		interval: interval,
		flush:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Attach starts the background goroutine.
func (w *AgentWriter) Attach(src PayloadSource) {
	w.start.Do(func() {
		w.src = src
		go w.run()
	})
}

// Flush asks the background goroutine to send what is buffered. It never
// blocks; a flush already pending absorbs this one.
func (w *AgentWriter) Flush() {
	select {
	case w.flush <- struct{}{}:
	default:
	}
}

// Stop sends what is buffered and waits for the background goroutine.
func (w *AgentWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.start.Do(func() {
		close(w.done)
	})
	<-w.done
}

func (w *AgentWriter) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.flush:
			w.drain()
		case <-ticker.C:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *AgentWriter) drain() {
	if w.src.Count() == 0 {
		return
	}
	if err := w.send(w.src.MakePayload()); err != nil {
		debug("failed to send traces: %v", err)
	}
}

// send PUTs one payload to the agent. Payloads without traces are skipped.
func (w *AgentWriter) send(payload []byte) error {
	count := core.PayloadTraceCount(payload)
	if count == 0 {
		return nil
	}
	req, err := http.NewRequest(http.MethodPut, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("cannot create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/msgpack")
	req.Header.Set("X-Datadog-Trace-Count", strconv.Itoa(count))
	req.Header.Set("Datadog-Meta-Lang", core.Language)
	req.Header.Set("Datadog-Meta-Tracer-Version", TracerVersion)

	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach agent at %s: %w", w.url, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= 400 {
		return fmt.Errorf("agent at %s responded %s", w.url, res.Status)
	}
	debug("sent %d traces (%d bytes)", count, len(payload))
	return nil
}

// ReportingWriter prints every buffered span as a JSON line, synchronously
// on each Flush.
type ReportingWriter struct {
	sync.Mutex
	src      PayloadSource
	reporter core.SpanReporter
}

// NewReportingWriter creates a ReportingWriter printing to out, or to
// os.Stdout when out is nil.
func NewReportingWriter(out io.Writer) *ReportingWriter {
	if out == nil {
		out = os.Stdout
	}
	return &ReportingWriter{
		reporter: core.NewSpanReporter(out, core.NewSpanEncoder()),
	}
}

// Attach binds the writer to src.
func (w *ReportingWriter) Attach(src PayloadSource) {
	w.Lock()
	defer w.Unlock()
	w.src = src
}

// Flush reports the buffered traces.
func (w *ReportingWriter) Flush() {
	if err := w.report(); err != nil {
		debug("failed to report traces: %v", err)
	}
}

// Stop reports whatever is still buffered.
func (w *ReportingWriter) Stop() {
	w.Flush()
}

func (w *ReportingWriter) report() error {
	w.Lock()
	defer w.Unlock()

	if w.src == nil || w.src.Count() == 0 {
		return nil
	}
	traces, err := core.DecodePayload(w.src.MakePayload())
	if err != nil {
		return err
	}
	for _, t := range traces {
		if err := w.reporter.Report(t); err != nil {
			return err
		}
	}
	return nil
}
