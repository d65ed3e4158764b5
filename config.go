package ctrace

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/Nordstrom/ctrace-agent/core"
)

// Environment variables consulted for options left empty.
const (
	EnvServiceName = "CTRACE_SERVICE_NAME"
	EnvEnv         = "CTRACE_ENV"
	EnvVersion     = "CTRACE_VERSION"
	EnvAgentURL    = "CTRACE_AGENT_URL"
	EnvHostname    = "CTRACE_HOSTNAME"
)

// LoadOptions reads TracerOptions from a TOML file such as:
//
//	service = "checkout"
//	env = "prod"
//	agent_url = "http://localhost:8126"
//	flush_interval = "2s"
//
//	[tags]
//	team = "payments"
//	shard = 3
func LoadOptions(path string) (TracerOptions, error) {
	var opts TracerOptions
	md, err := toml.DecodeFile(path, &opts)
	if err != nil {
		return TracerOptions{}, fmt.Errorf("cannot load tracer options from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return TracerOptions{}, fmt.Errorf("unknown tracer options in %s: %v", path, undecoded)
	}
	return opts, nil
}

// withEnv fills empty options from the environment.
func (opts TracerOptions) withEnv() TracerOptions {
	fill := func(v *string, env string) {
		if *v == "" {
			*v = os.Getenv(env)
		}
	}
	fill(&opts.ServiceName, EnvServiceName)
	fill(&opts.Env, EnvEnv)
	fill(&opts.Version, EnvVersion)
	fill(&opts.AgentURL, EnvAgentURL)
	fill(&opts.Hostname, EnvHostname)
	return opts
}

// config snapshots the options consulted by the encoder. Numeric global tags
// become metrics, everything else meta.
func (opts TracerOptions) config() *core.TracerConfig {
	cfg := &core.TracerConfig{
		Service:  opts.ServiceName,
		Env:      opts.Env,
		Version:  opts.Version,
		Hostname: opts.Hostname,
	}
	for k, v := range opts.GlobalTags {
		val := core.ValueOf(v)
		if _, ok := val.Float(); ok {
			if cfg.Metrics == nil {
				cfg.Metrics = make(map[string]core.Value)
			}
			cfg.Metrics[k] = val
			continue
		}
		if cfg.Meta == nil {
			cfg.Meta = make(map[string]core.Value)
		}
		cfg.Meta[k] = core.String(stringify(v))
	}
	return cfg
}
