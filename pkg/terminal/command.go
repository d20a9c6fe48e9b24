// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/eclipse-che/debugd/pkg/locspec"
	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/store"
	"github.com/eclipse-che/debugd/service"
	"github.com/eclipse-che/debugd/service/api"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the debugd terminal.
type Commands struct {
	cmds    []command
	actions []Action
	client  service.Client
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands(client service.Client) *Commands {
	c := &Commands{client: client, actions: Actions}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command or of an action for more information about it.`},
		{aliases: []string{"attach", "debug"}, group: sessionCmds, cmdFn: attach, helpMsg: `Connects the session to the debuggee.

	attach

Breakpoints created while disconnected are installed before the debuggee runs.`},
		{aliases: []string{"detach", "disconnect"}, group: sessionCmds, cmdFn: detach, helpMsg: `Disconnects the session from the debuggee.

	detach

Breakpoints are kept and installed again by the next attach.`},
		{aliases: []string{"state"}, group: sessionCmds, cmdFn: printState, helpMsg: "Prints the state of the debug session."},
		{aliases: []string{"break", "b"}, group: breakCmds, cmdFn: breakpoint, helpMsg: `Sets a breakpoint.

	break <location> [if <condition>]

The location is <file>:<line>, <line> in the current file or +<n>/-<n> lines
from the current line.

See also: "help condition", "help hitcount" and "help clear"`},
		{aliases: []string{"condition", "cond"}, group: breakCmds, cmdFn: conditionCmd, helpMsg: `Set breakpoint condition.

	condition <breakpoint id> [<boolean expression>]

Specifies that the breakpoint should suspend the debuggee only if the boolean
expression is true. Without an expression the condition is removed.`},
		{aliases: []string{"hitcount"}, group: breakCmds, cmdFn: hitCountCmd, helpMsg: `Sets the hit count of a breakpoint.

	hitcount <breakpoint id> <n>

With n > 0 the breakpoint is removed after suspending the debuggee n times.
With n = 0 it is never removed.`},
		{aliases: []string{"toggle"}, group: breakCmds, cmdFn: toggle, helpMsg: `Toggles on or off a breakpoint.

	toggle <breakpoint id>`},
		{aliases: []string{"clear"}, group: breakCmds, cmdFn: clear, helpMsg: `Deletes breakpoint.

	clear <breakpoint id>`},
		{aliases: []string{"clearall"}, group: breakCmds, cmdFn: clearAll, helpMsg: `Deletes all breakpoints.`},
		{aliases: []string{"breakpoints", "bp"}, group: breakCmds, cmdFn: breakpoints, helpMsg: "Print out info for breakpoints."},
		{aliases: []string{"continue", "c"}, group: runCmds, cmdFn: c.cont, helpMsg: "Run until breakpoint or program termination."},
		{aliases: []string{"next", "n"}, group: runCmds, cmdFn: c.next, helpMsg: "Step over to next source line."},
		{aliases: []string{"step", "s"}, group: runCmds, cmdFn: c.step, helpMsg: "Single step through program."},
		{aliases: []string{"stepout", "so"}, group: runCmds, cmdFn: c.stepout, helpMsg: "Step out of the current function."},
		{aliases: []string{"halt"}, group: runCmds, cmdFn: c.halt, helpMsg: "Suspends the running debuggee."},
		{aliases: []string{"runto"}, group: runCmds, cmdFn: c.runTo, helpMsg: `Resumes the debuggee until it reaches a location.

	runto <location>

The debuggee still suspends at the breakpoints it meets before the location.`},
		{aliases: []string{"print", "p"}, group: dataCmds, cmdFn: printVar, helpMsg: `Evaluate an expression.

	print <expression>`},
		{aliases: []string{"set"}, group: dataCmds, cmdFn: setVar, helpMsg: `Changes the value of a variable.

	set <variable> = <value>

The value is an expression evaluated where the debuggee is suspended.`},
		{aliases: []string{"locals"}, group: dataCmds, cmdFn: locals, helpMsg: `Print local variables.

	locals [-v] [<regex>]

If regex is specified only local variables with a name matching it will be returned. If -v is specified containers are printed on multiple lines.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.

	exit [-c]

When connected to a headless instance started with the --accept-multiclient, pass -c to resume the execution of the debuggee before disconnecting.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of debugd commands

	source <path>`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config substitute-path <from> <to>
	config substitute-path <from>

Adds or removes a path substitution rule.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"configs"}, cmdFn: configsCmd, helpMsg: `Manages the saved debug configurations.

	configs
	configs <name>
	configs -save <name> <type> <script or address> [<key>=<value>...]
	configs -delete <name>

Called without arguments it lists the saved configurations.`},
		{aliases: []string{"actions"}, cmdFn: c.listActions, helpMsg: `Lists the IDE actions and the command each one runs.

An action id can be typed in place of the command it runs.`},
		{aliases: []string{"version"}, cmdFn: version, helpMsg: "Prints the version of the debugger server."},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// Action ids resolve to the command they are mapped to. If it cannot find
// the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	if a := c.action(cmdstr); a != nil {
		return func(t *Term, args string) error {
			cmdline := a.Command
			if args != "" {
				cmdline += " " + args
			}
			return c.Call(cmdline, t)
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		if a := c.action(args); a != nil {
			fmt.Fprintf(t.stdout, "%s: runs %q\n", a.Title, a.Command)
			return nil
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

func attach(t *Term, args string) error {
	if _, err := t.client.Attach(); err != nil {
		return err
	}
	state, err := t.client.GetState()
	if err != nil {
		return err
	}
	printcontext(t, state)
	return nil
}

func detach(t *Term, args string) error {
	if err := t.client.Detach(); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, "detached from the debuggee")
	return nil
}

func printState(t *Term, args string) error {
	state, err := t.client.GetStateNonBlocking()
	if err != nil {
		return err
	}
	printcontext(t, state)
	return nil
}

// currentLocation returns the location of the current stop, nil if the
// debuggee is not suspended.
func currentLocation(t *Term) *proc.Location {
	state, err := t.client.GetStateNonBlocking()
	if err != nil || state.CurrentLocation == nil {
		return nil
	}
	loc := state.CurrentLocation.ProcLocation()
	return &loc
}

func breakpoint(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	spec, cond := args, ""
	if idx := strings.Index(args, " if "); idx >= 0 {
		spec, cond = strings.TrimSpace(args[:idx]), strings.TrimSpace(args[idx+len(" if "):])
	}
	loc, err := locspec.Resolve(spec, currentLocation(t), t.conf.SubstitutePath)
	if err != nil {
		return err
	}
	bp, err := t.client.CreateBreakpoint(&api.Breakpoint{File: loc.File, Line: loc.Line, Cond: cond})
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%s set at %s\n", formatBreakpointName(bp, true), formatBreakpointLocation(bp))
	return nil
}

func breakpointArg(t *Term, args string) (*api.Breakpoint, string, error) {
	v := split2PartsBySpace(args)
	if v[0] == "" {
		return nil, "", errors.New("not enough arguments")
	}
	id, err := strconv.Atoi(v[0])
	if err != nil {
		return nil, "", fmt.Errorf("%q is not a breakpoint id", v[0])
	}
	bp, err := t.client.GetBreakpoint(id)
	if err != nil {
		return nil, "", err
	}
	var rest string
	if len(v) > 1 {
		rest = v[1]
	}
	return bp, rest, nil
}

func conditionCmd(t *Term, args string) error {
	bp, cond, err := breakpointArg(t, args)
	if err != nil {
		return err
	}
	bp.Cond = cond
	return t.client.AmendBreakpoint(bp)
}

func hitCountCmd(t *Term, args string) error {
	bp, rest, err := breakpointArg(t, args)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return fmt.Errorf("%q is not a hit count", rest)
	}
	bp.HitCount = n
	return t.client.AmendBreakpoint(bp)
}

func toggle(t *Term, args string) error {
	bp, _, err := breakpointArg(t, args)
	if err != nil {
		return err
	}
	bp, err = t.client.ToggleBreakpoint(bp.ID)
	if err != nil {
		return err
	}
	state := "enabled"
	if bp.Disabled {
		state = "disabled"
	}
	fmt.Fprintf(t.stdout, "%s %s\n", formatBreakpointName(bp, true), state)
	return nil
}

func clear(t *Term, args string) error {
	bp, _, err := breakpointArg(t, args)
	if err != nil {
		return err
	}
	bp, err = t.client.ClearBreakpoint(bp.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%s cleared at %s\n", formatBreakpointName(bp, true), formatBreakpointLocation(bp))
	return nil
}

func clearAll(t *Term, args string) error {
	bps, err := t.client.ClearAllBreakpoints()
	if err != nil {
		return err
	}
	for _, bp := range bps {
		fmt.Fprintf(t.stdout, "%s cleared at %s\n", formatBreakpointName(bp, true), formatBreakpointLocation(bp))
	}
	return nil
}

// byID sorts breakpoints by ID.
type byID []*api.Breakpoint

func (a byID) Len() int           { return len(a) }
func (a byID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byID) Less(i, j int) bool { return a[i].ID < a[j].ID }

func breakpoints(t *Term, args string) error {
	bps, err := t.client.ListBreakpoints()
	if err != nil {
		return err
	}
	sort.Sort(byID(bps))
	for _, bp := range bps {
		enabled := "(enabled)"
		if bp.Disabled {
			enabled = "(disabled)"
		}
		fmt.Fprintf(t.stdout, "%s %s at %s (%d)\n", formatBreakpointName(bp, true), enabled, formatBreakpointLocation(bp), bp.TotalHitCount)
		if bp.Cond != "" {
			fmt.Fprintf(t.stdout, "\tcond %s\n", bp.Cond)
		}
		switch {
		case bp.HitCount > 0:
			fmt.Fprintf(t.stdout, "\tremoved after %d more hits\n", bp.Remaining)
		case bp.HitCount < 0:
			fmt.Fprintln(t.stdout, "\tonly active during runto")
		}
	}
	return nil
}

func formatBreakpointName(bp *api.Breakpoint, upcase bool) string {
	thing := "breakpoint"
	if upcase {
		thing = "Breakpoint"
	}
	if bp.Transient {
		thing = "Temporary " + strings.ToLower(thing)
	}
	return fmt.Sprintf("%s %d", thing, bp.ID)
}

func formatBreakpointLocation(bp *api.Breakpoint) string {
	return fmt.Sprintf("%s:%d", bp.File, bp.Line)
}

func (c *Commands) cont(t *Term, args string) error {
	return c.resume(t, t.client.Continue)
}

func (c *Commands) next(t *Term, args string) error {
	return c.resume(t, t.client.Next)
}

func (c *Commands) step(t *Term, args string) error {
	return c.resume(t, t.client.Step)
}

func (c *Commands) stepout(t *Term, args string) error {
	return c.resume(t, t.client.StepOut)
}

func (c *Commands) runTo(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	return c.resume(t, func() (*api.DebuggerState, error) {
		return t.client.RunTo(args)
	})
}

func (c *Commands) halt(t *Term, args string) error {
	if _, err := t.client.Halt(); err != nil {
		return err
	}
	state, err := t.client.GetState()
	if err != nil {
		return err
	}
	printcontext(t, state)
	return nil
}

func (c *Commands) resume(t *Term, fn func() (*api.DebuggerState, error)) error {
	state, err := fn()
	if err != nil {
		return err
	}
	printcontext(t, state)
	return nil
}

// printcontext prints where the debuggee is suspended, or why the session
// is not suspended.
func printcontext(t *Term, state *api.DebuggerState) {
	switch state.State {
	case api.StateRunning:
		fmt.Fprintln(t.stdout, "running")
		return
	case api.StateDisconnected:
		if state.Exited {
			fmt.Fprintf(t.stdout, "Process has exited with status %d\n", state.ExitStatus)
		} else {
			fmt.Fprintln(t.stdout, "not connected to the debuggee")
		}
		return
	}
	if state.CondError != "" && state.Breakpoint != nil {
		fmt.Fprintf(t.stdout, "Warning: could not evaluate the condition of %s: %s\n", formatBreakpointName(state.Breakpoint, false), state.CondError)
	}
	loc := "<unknown>"
	if state.CurrentLocation != nil {
		loc = fmt.Sprintf("%s:%d", state.CurrentLocation.File, state.CurrentLocation.Line)
	}
	if state.Breakpoint != nil {
		t.Println("> ", fmt.Sprintf("[%s] %s (hits total:%d)", formatBreakpointName(state.Breakpoint, false), loc, state.Breakpoint.TotalHitCount))
		if state.Breakpoint.HitCount > 0 && state.Breakpoint.Remaining == 0 {
			fmt.Fprintf(t.stdout, "%s removed after its last hit\n", formatBreakpointName(state.Breakpoint, true))
		}
		return
	}
	t.Println("> ", fmt.Sprintf("%s (%s)", loc, state.StopReason))
}

func printVar(t *Term, args string) error {
	if len(args) == 0 {
		return errors.New("not enough arguments")
	}
	val, err := t.client.EvalVariable(args)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, val.MultilineString(""))
	return nil
}

func setVar(t *Term, args string) error {
	// HACK: in go '=' is not an operator, we detect the error and try to recover from it by splitting the input string
	idx := strings.Index(args, "=")
	if idx < 0 || idx == len(args)-1 || args[idx+1] == '=' {
		return errors.New("syntax error '=' not found")
	}

	lexpr := strings.TrimSpace(args[:idx])
	rexpr := strings.TrimSpace(args[idx+1:])
	if lexpr == "" || rexpr == "" {
		return errors.New("syntax error '=' not found")
	}
	return t.client.SetVariable(lexpr, rexpr)
}

func locals(t *Term, args string) error {
	verbose := false
	if strings.HasPrefix(args, "-v") {
		verbose = true
		args = strings.TrimSpace(args[len("-v"):])
	}
	var filter *regexp.Regexp
	if args != "" {
		var err error
		filter, err = regexp.Compile(args)
		if err != nil {
			return fmt.Errorf("invalid filter argument: %s", err.Error())
		}
	}
	vars, err := t.client.ListLocalVariables()
	if err != nil {
		return err
	}
	found := 0
	for i := range vars {
		v := &vars[i]
		if filter != nil && !filter.MatchString(v.Name) {
			continue
		}
		found++
		if verbose {
			fmt.Fprintf(t.stdout, "%s = %s\n", v.Name, v.MultilineString(""))
		} else {
			fmt.Fprintf(t.stdout, "%s = %s\n", v.Name, v.SinglelineString())
		}
	}
	if found == 0 {
		fmt.Fprintln(t.stdout, "(no locals)")
	}
	return nil
}

// ExitRequestError is returned when the user
// exits the terminal.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	if args == "-c" {
		if !t.client.IsMulticlient() {
			return errors.New("not connected to an --accept-multiclient server")
		}
		t.quitContinue = true
	}
	return ExitRequestError{}
}

func (c *Commands) sourceCommand(t *Term, args string) error {
	if len(args) == 0 {
		return errors.New("wrong number of arguments: source <filename>")
	}
	return c.executeFile(t, args)
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}

func configsCmd(t *Term, args string) error {
	if t.Configs == nil {
		return errors.New("no configuration store")
	}
	w, err := splitArgs(args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	switch {
	case len(w) == 0:
		cfgs, err := store.ListConfigurations(ctx, t.Configs)
		if err != nil {
			return err
		}
		if len(cfgs) == 0 {
			fmt.Fprintln(t.stdout, "no debug configurations")
		}
		for _, cfg := range cfgs {
			fmt.Fprintf(t.stdout, "%s\t%s\n", cfg.Name, cfg.Type)
		}
		return nil
	case w[0] == "-delete":
		if len(w) != 2 {
			return errors.New("wrong number of arguments: configs -delete <name>")
		}
		return store.DeleteConfiguration(ctx, t.Configs, w[1])
	case w[0] == "-save":
		if len(w) < 4 {
			return errors.New("wrong number of arguments: configs -save <name> <type> <script or address>")
		}
		cfg := &store.DebugConfiguration{Name: w[1], Type: w[2]}
		if cfg.Type == "sim" {
			cfg.Script = w[3]
		} else {
			cfg.Address = w[3]
		}
		for _, kv := range w[4:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("malformed property %q", kv)
			}
			if cfg.Properties == nil {
				cfg.Properties = make(map[string]string)
			}
			cfg.Properties[k] = v
		}
		return store.SaveConfiguration(ctx, t.Configs, cfg)
	case len(w) == 1:
		cfg, err := store.LoadConfiguration(ctx, t.Configs, w[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(t.stdout, "name: %s\ntype: %s\n", cfg.Name, cfg.Type)
		if cfg.Script != "" {
			fmt.Fprintf(t.stdout, "script: %s\n", cfg.Script)
		}
		if cfg.Address != "" {
			fmt.Fprintf(t.stdout, "address: %s\n", cfg.Address)
		}
		keys := make([]string, 0, len(cfg.Properties))
		for k := range cfg.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(t.stdout, "%s=%s\n", k, cfg.Properties[k])
		}
		return nil
	}
	return fmt.Errorf("wrong arguments to \"configs\": %s", args)
}

func version(t *Term, args string) error {
	v, err := t.client.GetVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Server: %s (API v%d)\n", v.DebugdVersion, v.APIVersion)
	return nil
}

// splitArgs splits a command line into words using shell quoting rules.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

func split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}
