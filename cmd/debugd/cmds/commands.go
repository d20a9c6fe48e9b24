package cmds

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eclipse-che/debugd/cmd/debugd/cmds/helphelpers"
	"github.com/eclipse-che/debugd/pkg/config"
	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/proc/wsagent"
	"github.com/eclipse-che/debugd/pkg/store"
	"github.com/eclipse-che/debugd/pkg/terminal"
	nativetls "github.com/eclipse-che/debugd/pkg/tls"
	"github.com/eclipse-che/debugd/pkg/version"
	"github.com/eclipse-che/debugd/service"
	"github.com/eclipse-che/debugd/service/api"
	"github.com/eclipse-che/debugd/service/dap"
	"github.com/eclipse-che/debugd/service/debugger"
	"github.com/eclipse-che/debugd/service/rpc2"
	"github.com/eclipse-che/debugd/service/rpccommon"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// headless is whether to run without terminal.
	headless bool
	// attachOnStart is whether to attach to the debuggee before serving clients.
	attachOnStart bool
	// apiVersion is the requested API version while running headless
	apiVersion int
	// acceptMulti allows multiple clients to connect to the same server
	acceptMulti bool
	// addr is the debugging server listen address.
	addr string
	// initFile is the path to initialization file.
	initFile string
	// actionTimeout overrides the action timeout of the config file.
	actionTimeout time.Duration
	// verbose prints build details with the version.
	verbose bool
	// checkLocalConnUser is true if the debugger should check that local
	// connections come from the same user that started the headless server
	checkLocalConnUser bool
	// tlsOpts secures the headless server and the connect client.
	tlsOpts nativetls.Options

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const debugdCommandLongDesc = `debugd is a debug session controller.

debugd drives a debuggee through a transport (a scripted simulation, a Debug
Adapter Protocol server or a websocket agent), keeps the user's breakpoints
with their conditions and hit counts, and exposes the session to a terminal
client, to JSON-RPC clients and to DAP front ends.

Saved debug configurations are started with ` + "`debugd debug <name>`" + `.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main debugd root command.
	rootCommand = &cobra.Command{
		Use:   "debugd",
		Short: "debugd controls debug sessions and their breakpoints.",
		Long:  debugdCommandLongDesc,
	}

	rootCommand.PersistentFlags().StringVarP(&addr, "listen", "l", "127.0.0.1:0", "Debugging server listen address.")

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugging server logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'debugd help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'debugd help log').")

	rootCommand.PersistentFlags().BoolVarP(&headless, "headless", "", false, "Run debug server only, in headless mode.")
	rootCommand.PersistentFlags().BoolVarP(&acceptMulti, "accept-multiclient", "", false, "Allows a headless server to accept multiple client connections.")
	rootCommand.PersistentFlags().IntVar(&apiVersion, "api-version", 2, "Selects API version when headless.")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.PersistentFlags().BoolVar(&attachOnStart, "attach", false, "Attach to the debuggee as soon as the server starts.")
	rootCommand.PersistentFlags().BoolVarP(&checkLocalConnUser, "only-same-user", "", true, "Only connections from the same user that started this instance of debugd are allowed to connect.")
	rootCommand.PersistentFlags().StringVar(&tlsOpts.Cert, "tls-cert", "", "Certificate of the headless server, or of the client with 'connect' (PEM).")
	rootCommand.PersistentFlags().StringVar(&tlsOpts.Key, "tls-key", "", "Private key matching --tls-cert (PEM).")
	rootCommand.PersistentFlags().StringVar(&tlsOpts.CA, "tls-ca", "", "Certificate authority verifying the peer; on a headless server it requires client certificates.")
	rootCommand.PersistentFlags().DurationVar(&actionTimeout, "action-timeout", 0, "Bounds every call made to the debuggee (default from the config file).")

	// 'sim' subcommand.
	simCommand := &cobra.Command{
		Use:   "sim <script.yml>",
		Short: "Debug a simulated program.",
		Long: `Starts a debug session on a scripted, simulated debuggee.

The script lists the lines of the program, with the variables they assign
and the functions they enter, and is useful to try breakpoints, conditions
and hit counts without a real debug adapter.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a script")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(executeConfiguration(&store.DebugConfiguration{Name: "sim", Type: "sim", Script: args[0]}))
		},
	}
	rootCommand.AddCommand(simCommand)

	// 'remote' subcommand.
	remoteCommand := &cobra.Command{
		Use:   "remote <dap|ws> <address> [key=value...]",
		Short: "Debug a program behind a debug adapter or a debugd agent.",
		Long: `Starts a debug session on a remote debuggee.

With 'dap' the address is the TCP address of a Debug Adapter Protocol server;
the key=value pairs are sent as arguments of the launch request, or of the
attach request if request=attach is given.
With 'ws' the address is the address of a 'debugd agent'.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return errors.New("you must provide a transport and an address")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := remoteConfiguration(args)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			os.Exit(executeConfiguration(cfg))
		},
	}
	rootCommand.AddCommand(remoteCommand)

	// 'debug' subcommand.
	debugCommand := &cobra.Command{
		Use:   "debug <configuration>",
		Short: "Start a saved debug configuration.",
		Long: `Starts a debug session described by a saved debug configuration.

Breakpoints of the session are saved under the name of the configuration
and restored the next time it is started. See 'debugd configs'.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide the name of a configuration")
			}
			return nil
		},
		Run: debugCmd,
	}
	rootCommand.AddCommand(debugCommand)

	// 'connect' subcommand.
	connectCommand := &cobra.Command{
		Use:   "connect addr",
		Short: "Connect to a headless debug server.",
		Long:  "Connect to a running headless debug server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide an address as the first argument")
			}
			return nil
		},
		Run: connectCmd,
	}
	rootCommand.AddCommand(connectCommand)

	// 'dap' subcommand.
	dapCommand := &cobra.Command{
		Use:   "dap <configuration|script.yml>",
		Short: "Starts a TCP server communicating via Debug Adaptor Protocol (DAP).",
		Long: `Starts a TCP server communicating via Debug Adaptor Protocol (DAP).

The server controls the debuggee of the given saved configuration, or a
simulated debuggee if a script is given. The session starts with the
launch or attach request of the client and the debuggee is attached once
the client sends configurationDone.
The server does not accept multiple client connections.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a configuration or a script")
			}
			return nil
		},
		Run: dapCmd,
	}
	rootCommand.AddCommand(dapCommand)

	// 'agent' subcommand.
	agentCommand := &cobra.Command{
		Use:   "agent <configuration|script.yml>",
		Short: "Serves a debuggee to remote debugd instances over websocket.",
		Long: `Serves a debuggee over websocket.

Another debugd connects to the agent with 'debugd remote ws <address>'.
One client is served at a time.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a configuration or a script")
			}
			return nil
		},
		Run: agentCmd,
	}
	rootCommand.AddCommand(agentCommand)

	rootCommand.AddCommand(newConfigsCommand())

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "debugd\n%s\n", version.DebugdVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	debugger	Log session state changes and breakpoint hits
	rpc		Log all RPC messages
	dap		Log all DAP messages
	transport	Log traffic with the debuggee (dap adapter, websocket agent)
	store		Log breakpoint and configuration persistence

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
This option will also redirect the "server listening at" message in headless
and dap modes.

`,
	})

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helphelpers.Prepare(cmd)
		defaultHelp(cmd, args)
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func newConfigsCommand() *cobra.Command {
	configsCommand := &cobra.Command{
		Use:   "configs",
		Short: "Manage saved debug configurations.",
		Long: `Lists, saves and deletes debug configurations.

Configurations are kept in the store selected by the 'store' section of the
config file. Types are:

	sim	a simulated debuggee, the target is the path of its script
	dap	a Debug Adapter Protocol server, the target is its address
	ws	a debugd agent, the target is its address`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listConfigs(cmd)
		},
	}

	configsCommand.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lists saved debug configurations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listConfigs(cmd)
		},
	})

	configsCommand.AddCommand(&cobra.Command{
		Use:   "save <name> <sim|dap|ws> <script|address> [key=value...]",
		Short: "Creates or replaces a debug configuration.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 3 {
				return errors.New("you must provide a name, a type and a target")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseConfiguration(args[0], args[1], args[2], args[3:])
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, s store.Store) error {
				if err := store.SaveConfiguration(ctx, s, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", cfg.Name)
				return nil
			})
		},
	})

	configsCommand.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Deletes a debug configuration.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide the name of a configuration")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, s store.Store) error {
				if _, err := store.LoadConfiguration(ctx, s, args[0]); err != nil {
					return err
				}
				return store.DeleteConfiguration(ctx, s, args[0])
			})
		},
	})

	configsCommand.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serves the store over HTTP.",
		Long: `Serves the configured store over HTTP at the --listen address.

Other debugd instances share its debug configurations and breakpoints by
selecting the 'http' store backend with this address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveStore(cmd)
		},
	})

	return configsCommand
}

func serveStore(cmd *cobra.Command) error {
	s, err := store.Open(conf)
	if err != nil {
		return err
	}
	defer s.Close()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("couldn't start listener: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "store listening at: %s\n", listener.Addr())
	srv := &http.Server{Handler: store.NewHandler(s)}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go func() {
		<-ch
		srv.Close()
	}()
	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func listConfigs(cmd *cobra.Command) error {
	return withStore(func(ctx context.Context, s store.Store) error {
		cfgs, err := store.ListConfigurations(ctx, s)
		if err != nil {
			return err
		}
		if len(cfgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no debug configurations")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', 0)
		for _, cfg := range cfgs {
			target := cfg.Address
			if cfg.Type == "sim" {
				target = cfg.Script
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", cfg.Name, cfg.Type, target)
		}
		return w.Flush()
	})
}

// withStore opens the configured store for the duration of fn.
func withStore(fn func(ctx context.Context, s store.Store) error) error {
	s, err := store.Open(conf)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), conf.GetActionTimeout())
	defer cancel()
	return fn(ctx, s)
}

// parseConfiguration builds a configuration from the command line form
// used by 'configs save' and 'remote'.
func parseConfiguration(name, typ, target string, props []string) (*store.DebugConfiguration, error) {
	cfg := &store.DebugConfiguration{Name: name, Type: typ}
	if typ == "sim" {
		cfg.Script = target
	} else {
		cfg.Address = target
	}
	for _, kv := range props {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed property %q", kv)
		}
		if cfg.Properties == nil {
			cfg.Properties = make(map[string]string)
		}
		cfg.Properties[k] = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func remoteConfiguration(args []string) (*store.DebugConfiguration, error) {
	switch args[0] {
	case "dap", "ws":
	default:
		return nil, fmt.Errorf("unknown transport %q, must be dap or ws", args[0])
	}
	return parseConfiguration("remote", args[0], args[1], args[2:])
}

func debugCmd(cmd *cobra.Command, args []string) {
	var cfg *store.DebugConfiguration
	err := withStore(func(ctx context.Context, s store.Store) error {
		var err error
		cfg, err = store.LoadConfiguration(ctx, s, args[0])
		return err
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(executeConfiguration(cfg))
}

func dapCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		if headless {
			fmt.Fprintf(os.Stderr, "Warning: headless mode not supported with dap\n")
		}
		if acceptMulti {
			fmt.Fprintf(os.Stderr, "Warning: accept multiclient mode not supported with dap\n")
		}
		if initFile != "" {
			fmt.Fprint(os.Stderr, "Warning: init file ignored with dap\n")
		}
		if tlsOpts.Enabled() {
			fmt.Fprintf(os.Stderr, "Warning: tls not supported with dap\n")
		}
		if attachOnStart {
			fmt.Fprintf(os.Stderr, "Warning: attach ignored with dap; the session starts with the launch/attach request\n")
		}

		st := openStore()
		if st != nil {
			defer st.Close()
		}
		cfg, err := loadConfiguration(st, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		target, err := newTarget(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			fmt.Printf("couldn't start listener: %s\n", err)
			return 1
		}
		disconnectChan := make(chan struct{})
		server := dap.NewServer(&service.Config{
			Listener:           listener,
			Target:             target,
			CheckLocalConnUser: checkLocalConnUser,
			DisconnectChan:     disconnectChan,
			Debugger:           debuggerConfig(st, cfg),
		})
		defer server.Stop()

		server.Run()
		waitForDisconnectSignal(disconnectChan)
		return 0
	}()
	os.Exit(status)
}

func agentCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		st := openStore()
		if st != nil {
			defer st.Close()
		}
		cfg, err := loadConfiguration(st, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if cfg.Type == "ws" {
			fmt.Fprintf(os.Stderr, "configuration %s is already served by an agent\n", cfg.Name)
			return 1
		}
		target, err := newTarget(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			fmt.Printf("couldn't start listener: %s\n", err)
			return 1
		}
		agent := wsagent.NewAgent(target, timeout())

		done := make(chan error, 1)
		go func() { done <- agent.Serve(listener) }()

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT)
		select {
		case <-ch:
			listener.Close()
			return 0
		case err := <-done:
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			return 0
		}
	}()
	os.Exit(status)
}

func connectCmd(cmd *cobra.Command, args []string) {
	addr := args[0]
	if addr == "" {
		fmt.Fprint(os.Stderr, "An empty address was provided. You must provide an address as the first argument.\n")
		os.Exit(1)
	}
	var conn net.Conn
	if tlsOpts.Enabled() {
		var err error
		conn, err = nativetls.Dial("tcp", addr, tlsOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not connect to %s: %v\n", addr, err)
			os.Exit(1)
		}
	}
	st := openStore()
	if st != nil {
		defer st.Close()
	}
	os.Exit(connect(addr, conn, conf, st))
}

// waitForDisconnectSignal is a blocking function that waits for either
// a SIGINT (Ctrl-C) signal from the OS or for disconnectChan to be closed
// by the server when the client disconnects.
func waitForDisconnectSignal(disconnectChan chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	if runtime.GOOS == "windows" {
		// On windows Ctrl-C may be delivered to us when it is meant for a
		// debuggee running in the same console.
		go func() {
			for range ch {
			}
		}()
		<-disconnectChan
		return
	}
	select {
	case <-ch:
	case <-disconnectChan:
	}
}

func timeout() time.Duration {
	if actionTimeout > 0 {
		return actionTimeout
	}
	return conf.GetActionTimeout()
}

// openStore opens the configured store. Without a store breakpoints are
// not persisted and saved configurations are unavailable, which is not
// fatal.
func openStore() store.Store {
	st, err := store.Open(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open store: %v\n", err)
		return nil
	}
	return st
}

func loadConfiguration(st store.Store, name string) (*store.DebugConfiguration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout())
	defer cancel()
	return resolveConfiguration(ctx, st, name)
}

// debuggerConfig returns the session controller configuration for cfg.
// Breakpoints of saved configurations are kept under their own key.
func debuggerConfig(st store.Store, cfg *store.DebugConfiguration) debugger.Config {
	dc := debugger.Config{
		ActionTimeout:  timeout(),
		Store:          st,
		SubstitutePath: conf.SubstitutePath,
	}
	if cfg != nil && cfg.Name != "" {
		dc.StoreKey = "breakpoints/" + cfg.Name
	}
	return dc
}

func connect(addr string, clientConn net.Conn, conf *config.Config, configs store.Store) int {
	// Create and start a terminal - attach to running instance
	var client *rpc2.RPCClient
	var err error
	if clientConn != nil {
		client, err = rpc2.NewClientFromConn(clientConn)
	} else {
		client, err = rpc2.NewClient(addr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if client.IsMulticlient() {
		state, _ := client.GetStateNonBlocking()
		// Another client may have left the debuggee running, stop it so
		// that our first command sees a suspended location.
		if state != nil && state.State == api.StateRunning {
			_, err := client.Halt()
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not halt: %v", err)
				return 1
			}
		}
	}
	term := terminal.New(client, conf)
	term.InitFile = initFile
	term.Configs = configs
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}

func executeConfiguration(cfg *store.DebugConfiguration) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	target, err := newTarget(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	st := openStore()
	if st != nil {
		defer st.Close()
	}
	return execute(target, cfg, st)
}

func execute(target proc.Process, cfg *store.DebugConfiguration, st store.Store) int {
	if headless && (initFile != "") {
		fmt.Fprint(os.Stderr, "Warning: init file ignored with --headless\n")
	}

	if !headless && acceptMulti {
		fmt.Fprint(os.Stderr, "Warning accept-multi: ignored\n")
		// acceptMulti won't work in normal (non-headless) mode because we always
		// call server.Stop after the terminal client exits.
		acceptMulti = false
	}

	var listener net.Listener
	var clientConn net.Conn
	var err error

	// Make a TCP listener
	if headless {
		listener, err = net.Listen("tcp", addr)
	} else {
		listener, clientConn = service.ListenerPipe()
	}
	if err != nil {
		fmt.Printf("couldn't start listener: %s\n", err)
		return 1
	}
	if headless && tlsOpts.Enabled() {
		tl, err := nativetls.WrapListener(listener, tlsOpts)
		if err != nil {
			listener.Close()
			fmt.Fprintf(os.Stderr, "could not set up tls: %v\n", err)
			return 1
		}
		listener = tl
	}
	defer listener.Close()

	disconnectChan := make(chan struct{})

	// Create and start a debugger server
	var server service.Server
	switch apiVersion {
	case 2:
		server = rpccommon.NewServer(&service.Config{
			Listener:           listener,
			Target:             target,
			AttachOnStart:      attachOnStart,
			AcceptMulti:        acceptMulti,
			CheckLocalConnUser: checkLocalConnUser,
			APIVersion:         apiVersion,
			DisconnectChan:     disconnectChan,
			Debugger:           debuggerConfig(st, cfg),
		})
	default:
		fmt.Printf("Unknown API version: %d\n", apiVersion)
		return 1
	}

	if err := server.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if headless {
		logflags.WriteAPIListeningMessage(listener.Addr())
		waitForDisconnectSignal(disconnectChan)
		if err := server.Stop(); err != nil {
			fmt.Println(err)
		}
		return 0
	}

	status := connect(listener.Addr().String(), clientConn, conf, st)
	if err := server.Stop(); err != nil {
		fmt.Println(err)
	}
	return status
}
