package cmds

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/eclipse-che/debugd/cmd/debugd/cmds/helphelpers"
	"github.com/eclipse-che/debugd/pkg/proc/dapclient"
	"github.com/eclipse-che/debugd/pkg/proc/sim"
	"github.com/eclipse-che/debugd/pkg/proc/wsagent"
	"github.com/eclipse-che/debugd/pkg/store"
)

var loopScript = filepath.Join("..", "..", "..", "_fixtures", "loop.yml")

func newTestCommand(t *testing.T) *cobra.Command {
	t.Setenv("DEBUGD_CONFIG_DIR", t.TempDir())
	return New()
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewTarget(t *testing.T) {
	testCases := []struct {
		cfg    store.DebugConfiguration
		tgterr string
	}{
		{store.DebugConfiguration{Name: "a", Type: "sim", Script: loopScript}, ""},
		{store.DebugConfiguration{Name: "a", Type: "sim", Script: loopScript, Properties: map[string]string{"lineDelay": "1ms", "strictBreakpoints": "true"}}, ""},
		{store.DebugConfiguration{Name: "a", Type: "sim", Script: loopScript, Properties: map[string]string{"lineDelay": "soon"}}, "lineDelay"},
		{store.DebugConfiguration{Name: "a", Type: "sim", Script: "nonexistent.yml"}, "nonexistent.yml"},
		{store.DebugConfiguration{Name: "a", Type: "dap", Address: "localhost:4711"}, ""},
		{store.DebugConfiguration{Name: "a", Type: "dap", Address: "localhost:4711", Properties: map[string]string{"request": "restart"}}, `unknown request "restart"`},
		{store.DebugConfiguration{Name: "a", Type: "ws", Address: "localhost:4040"}, ""},
		{store.DebugConfiguration{Name: "a", Type: "gdb", Address: "localhost:1234"}, `unknown type "gdb"`},
		{store.DebugConfiguration{Name: "a", Type: "ws"}, "needs an address"},
	}

	for _, tc := range testCases {
		cfg := tc.cfg
		target, err := newTarget(&cfg)
		if tc.tgterr != "" {
			if err == nil || !strings.Contains(err.Error(), tc.tgterr) {
				t.Errorf("%#v: expected error containing %q, got %v", cfg, tc.tgterr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%#v: unexpected error %v", cfg, err)
			continue
		}
		switch cfg.Type {
		case "sim":
			if _, ok := target.(*sim.Process); !ok {
				t.Errorf("%#v: wrong target %T", cfg, target)
			}
		case "dap":
			if _, ok := target.(*dapclient.Process); !ok {
				t.Errorf("%#v: wrong target %T", cfg, target)
			}
		case "ws":
			if _, ok := target.(*wsagent.Client); !ok {
				t.Errorf("%#v: wrong target %T", cfg, target)
			}
		}
	}
}

func TestDAPOptions(t *testing.T) {
	opts, err := dapOptions(&store.DebugConfiguration{
		Name:    "adapter",
		Type:    "dap",
		Address: "localhost:4711",
		Properties: map[string]string{
			"request":          "attach",
			"maxVariableDepth": "3",
			"program":          "/projects/app",
			"stopOnEntry":      "true",
			"port":             "2345",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !opts.Attach || opts.MaxVariableDepth != 3 || opts.Addr != "localhost:4711" {
		t.Fatalf("wrong options %#v", opts)
	}
	if len(opts.Arguments) != 3 {
		t.Fatalf("wrong arguments %#v", opts.Arguments)
	}
	if opts.Arguments["program"] != "/projects/app" || opts.Arguments["stopOnEntry"] != true || opts.Arguments["port"] != 2345 {
		t.Fatalf("wrong arguments %#v", opts.Arguments)
	}

	if _, err := dapOptions(&store.DebugConfiguration{Name: "adapter", Properties: map[string]string{"maxVariableDepth": "deep"}}); err == nil {
		t.Fatal("expected error for a malformed depth")
	}
}

func TestAgentURL(t *testing.T) {
	for in, tgt := range map[string]string{
		"localhost:4040":           "ws://localhost:4040/",
		"ws://agent:4040/session":  "ws://agent:4040/session",
		"wss://che.example.org/ws": "wss://che.example.org/ws",
	} {
		if out := agentURL(in); out != tgt {
			t.Errorf("agentURL(%q) = %q, expected %q", in, out, tgt)
		}
	}
}

func TestResolveConfiguration(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	saved := &store.DebugConfiguration{Name: "adapter", Type: "dap", Address: "localhost:4711"}
	if err := store.SaveConfiguration(ctx, s, saved); err != nil {
		t.Fatal(err)
	}

	cfg, err := resolveConfiguration(ctx, s, loopScript)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != "sim" || cfg.Script != loopScript {
		t.Fatalf("wrong configuration for a script: %#v", cfg)
	}

	cfg, err = resolveConfiguration(ctx, s, "adapter")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != "dap" || cfg.Address != "localhost:4711" {
		t.Fatalf("wrong configuration: %#v", cfg)
	}

	if _, err := resolveConfiguration(ctx, s, "missing"); err == nil || !strings.Contains(err.Error(), "key not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, err := resolveConfiguration(ctx, nil, "adapter"); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestParseConfiguration(t *testing.T) {
	cfg, err := parseConfiguration("app", "dap", "localhost:4711", []string{"request=attach", "program=/projects/app"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Address != "localhost:4711" || cfg.Script != "" || cfg.Properties["request"] != "attach" {
		t.Fatalf("wrong configuration %#v", cfg)
	}

	if _, err := parseConfiguration("app", "dap", "localhost:4711", []string{"=attach"}); err == nil || err.Error() != `malformed property "=attach"` {
		t.Fatalf("expected malformed property error, got %v", err)
	}
	if _, err := remoteConfiguration([]string{"sim", loopScript}); err == nil {
		t.Fatal("remote accepted a sim target")
	}
}

func TestConfigsCommand(t *testing.T) {
	root := newTestCommand(t)
	out, err := run(t, root, "configs")
	if err != nil {
		t.Fatal(err)
	}
	if out != "no debug configurations\n" {
		t.Fatalf("unexpected output %q", out)
	}

	root = New()
	if out, err = run(t, root, "configs", "save", "loop", "sim", loopScript, "lineDelay=1ms"); err != nil {
		t.Fatal(err)
	}
	if out != "saved loop\n" {
		t.Fatalf("unexpected output %q", out)
	}
	root = New()
	if _, err = run(t, root, "configs", "save", "adapter", "dap", "localhost:4711"); err != nil {
		t.Fatal(err)
	}

	root = New()
	if out, err = run(t, root, "configs", "list"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "adapter") || !strings.HasPrefix(lines[1], "loop") {
		t.Fatalf("unexpected list %q", out)
	}
	if !strings.Contains(lines[1], loopScript) {
		t.Fatalf("script missing from %q", lines[1])
	}

	root = New()
	if _, err = run(t, root, "configs", "delete", "adapter"); err != nil {
		t.Fatal(err)
	}
	root = New()
	if _, err = run(t, root, "configs", "delete", "adapter"); err == nil || !strings.Contains(err.Error(), "key not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	root = New()
	if _, err = run(t, root, "configs", "save", "bad", "gdb", "localhost:1"); err == nil {
		t.Fatal("saved a configuration with an unknown type")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newTestCommand(t)
	out, err := run(t, root, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "debugd\nVersion: ") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestMissingArguments(t *testing.T) {
	for _, args := range [][]string{
		{"sim"},
		{"remote", "dap"},
		{"debug"},
		{"connect"},
		{"dap"},
		{"agent"},
		{"configs", "save", "loop", "sim"},
		{"configs", "delete"},
	} {
		root := newTestCommand(t)
		if _, err := run(t, root, args...); err == nil {
			t.Errorf("%q: expected error", args)
		}
	}
}

func TestHelpHidesFlags(t *testing.T) {
	root := newTestCommand(t)
	connect, _, err := root.Find([]string{"connect"})
	if err != nil {
		t.Fatal(err)
	}
	helphelpers.Prepare(connect)
	for _, name := range []string{"headless", "accept-multiclient", "listen"} {
		if f := root.PersistentFlags().Lookup(name); !f.Hidden {
			t.Errorf("flag %s shown in the help of connect", name)
		}
	}
	if f := root.PersistentFlags().Lookup("init"); f.Hidden {
		t.Errorf("flag init hidden in the help of connect")
	}

	root = New()
	out, err := run(t, root, "help", "dap")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "--headless") || !strings.Contains(out, "--listen") {
		t.Fatalf("unexpected help for dap:\n%s", out)
	}
}
