package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ctrace "github.com/Nordstrom/ctrace-agent"
	"github.com/Nordstrom/ctrace-agent/core"
	chttp "github.com/Nordstrom/ctrace-agent/http"
	"github.com/Nordstrom/ctrace-agent/metrics"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	godebug "github.com/tj/go-debug"
)

var debug = godebug.Debug("ctrace:demo")

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a traced HTTP server that reports to the agent",
	Long: `Serves /gateway, /ok and /err with traced handlers. /gateway calls
/ok or /err (?api=err) through a traced client, so each request produces a
trace of three spans. Encoder metrics are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	f := demoCmd.Flags()
	f.String("addr", ":8004", "listen address")
	f.String("config", "", "TOML file with tracer options")
	f.String("agent", "", "agent URL; traces are printed to stdout when empty")
	f.String("service", "ctrace-demo", "service name")
	f.String("save", "", "append every assembled payload to this file")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	addr, _ := f.GetString("addr")
	configPath, _ := f.GetString("config")
	agentURL, _ := f.GetString("agent")
	service, _ := f.GetString("service")
	savePath, _ := f.GetString("save")

	var opts ctrace.TracerOptions
	if configPath != "" {
		var err error
		if opts, err = ctrace.LoadOptions(configPath); err != nil {
			return err
		}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = service
	}
	if agentURL != "" {
		opts.AgentURL = agentURL
	}
	opts.Writer = cmd.OutOrStdout()

	if savePath != "" {
		save, err := savePayloads(savePath)
		if err != nil {
			return err
		}
		defer save()
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	defer collector.Close()

	tracer := ctrace.Init(opts)
	defer tracer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: newDemoMux(addr, reg)}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "ctrace demo listening at %s\n", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

// savePayloads appends every assembled payload to path until the returned
// function is called.
func savePayloads(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	unsubscribe := core.Assembled.Subscribe(func(payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		if _, err := f.Write(payload); err != nil {
			debug("cannot save payload: %v", err)
		}
	})
	return func() {
		unsubscribe()
		f.Close()
	}, nil
}

func newDemoMux(addr string, reg *prometheus.Registry) http.Handler {
	base := "http://localhost" + addr
	client := &http.Client{Transport: chttp.NewTracedTransport(http.DefaultTransport)}

	traced := http.NewServeMux()
	traced.HandleFunc("/gateway", func(w http.ResponseWriter, r *http.Request) {
		api := r.URL.Query().Get("api")
		if api == "" {
			api = "ok"
		}
		req, err := http.NewRequestWithContext(r.Context(), "GET", base+"/"+api+"?"+r.URL.Query().Encode(), nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		opentracing.SpanFromContext(r.Context()).SetBaggageItem("origin", r.RemoteAddr)

		resp, err := client.Do(req)
		if err != nil {
			ctrace.LogErrorObject(r.Context(), err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	})
	traced.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		msg := fmt.Sprintf("Hello %v!", r.URL.Query().Get("region"))
		ctrace.SetResource(r.Context(), "GET /ok")
		ctrace.SetTag(r.Context(), "greeting", msg)
		w.Write([]byte(msg))
	})
	traced.HandleFunc("/err", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("There was an ERROR!"))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", chttp.TracedHandler(traced))
	return mux
}
