package cmds

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/proc/dapclient"
	"github.com/eclipse-che/debugd/pkg/proc/sim"
	"github.com/eclipse-che/debugd/pkg/proc/wsagent"
	"github.com/eclipse-che/debugd/pkg/store"
)

// Properties of a debug configuration that are consumed by debugd instead
// of being forwarded to the debug adapter.
const (
	propRequest           = "request"
	propLineDelay         = "lineDelay"
	propStrictBreakpoints = "strictBreakpoints"
	propMaxVariableDepth  = "maxVariableDepth"
)

// newTarget returns the detached debuggee described by cfg.
func newTarget(cfg *store.DebugConfiguration) (proc.Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "sim":
		script, err := sim.LoadScript(cfg.Script)
		if err != nil {
			return nil, err
		}
		var opts sim.Options
		if s, ok := cfg.Properties[propLineDelay]; ok {
			opts.LineDelay, err = time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("configuration %s: %s: %v", cfg.Name, propLineDelay, err)
			}
		}
		if s, ok := cfg.Properties[propStrictBreakpoints]; ok {
			opts.StrictBreakpoints, err = strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("configuration %s: %s: %v", cfg.Name, propStrictBreakpoints, err)
			}
		}
		return sim.New(script, opts), nil

	case "dap":
		opts, err := dapOptions(cfg)
		if err != nil {
			return nil, err
		}
		return dapclient.New(opts), nil

	case "ws":
		return wsagent.NewClient(agentURL(cfg.Address)), nil
	}
	return nil, fmt.Errorf("configuration %s: unknown type %q", cfg.Name, cfg.Type)
}

// dapOptions maps cfg to the launch or attach request sent to the adapter.
func dapOptions(cfg *store.DebugConfiguration) (dapclient.Options, error) {
	opts := dapclient.Options{
		Addr:      cfg.Address,
		Arguments: make(map[string]interface{}),
	}
	for k, v := range cfg.Properties {
		switch k {
		case propRequest:
			switch v {
			case "attach":
				opts.Attach = true
			case "launch":
			default:
				return opts, fmt.Errorf("configuration %s: unknown request %q", cfg.Name, v)
			}
		case propMaxVariableDepth:
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("configuration %s: %s: %v", cfg.Name, propMaxVariableDepth, err)
			}
			opts.MaxVariableDepth = n
		default:
			opts.Arguments[k] = propertyValue(v)
		}
	}
	return opts, nil
}

// propertyValue converts the string form of a launch argument back to a
// boolean or a number when it looks like one.
func propertyValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

func agentURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "ws://" + addr + "/"
}

// resolveConfiguration returns the configuration called name from s, or an
// ad hoc sim configuration when name is the path of a script.
func resolveConfiguration(ctx context.Context, s store.Store, name string) (*store.DebugConfiguration, error) {
	if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
		return &store.DebugConfiguration{Name: "sim", Type: "sim", Script: name}, nil
	}
	if s == nil {
		return nil, fmt.Errorf("configuration %s: no store", name)
	}
	return store.LoadConfiguration(ctx, s, name)
}
