package dap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-dap"

	"github.com/eclipse-che/debugd/service/api"
)

// replCmd runs a debugd command typed in the debug console.
func (s *Server) replCmd(cmdstr string) (string, error) {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	for _, cmd := range debugCommands(s) {
		for _, alias := range cmd.aliases {
			if alias == cmdname {
				return cmd.cmdFn(args)
			}
		}
	}
	return "", errNoCmd
}

type cmdfunc func(args string) (string, error)

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

const (
	msgHelp = `Prints the help message.

help [command]

Type "help" followed by the name of a command for more information about it.`

	msgRunTo = `Resumes the debuggee until it reaches a location.

runto <location>

The location is either <file>:<line>, <line> in the current file or +<n>/-<n>
lines from the current line. The temporary breakpoint is removed the next time
the debuggee resumes.`

	msgBreakpoints = `Lists the breakpoints.`

	msgClearAll = `Deletes all breakpoints.`
)

// debugCommands returns a list of commands with default commands defined.
func debugCommands(s *Server) []command {
	return []command{
		{aliases: []string{"help", "h"}, cmdFn: s.helpMessage, helpMsg: msgHelp},
		{aliases: []string{"runto"}, cmdFn: s.runTo, helpMsg: msgRunTo},
		{aliases: []string{"breakpoints", "bp"}, cmdFn: s.listBreakpoints, helpMsg: msgBreakpoints},
		{aliases: []string{"clearall"}, cmdFn: s.clearAll, helpMsg: msgClearAll},
	}
}

var errNoCmd = errors.New("command not available")

func (s *Server) helpMessage(args string) (string, error) {
	var buf bytes.Buffer
	if args != "" {
		for _, cmd := range debugCommands(s) {
			for _, alias := range cmd.aliases {
				if alias == args {
					return cmd.helpMsg, nil
				}
			}
		}
		return "", errNoCmd
	}

	fmt.Fprintln(&buf, "The following commands are available:")

	for _, cmd := range debugCommands(s) {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(&buf, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(&buf, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}

	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "Type help followed by a command for full documentation.")
	return buf.String(), nil
}

func (s *Server) runTo(args string) (string, error) {
	if args == "" {
		return "", errors.New("not enough arguments")
	}
	if err := s.resume(&api.DebuggerCommand{Name: api.RunTo, Location: args}); err != nil {
		return "", err
	}
	return "running to " + args, nil
}

func (s *Server) listBreakpoints(string) (string, error) {
	var buf bytes.Buffer
	bps := s.debugger.Breakpoints()
	if len(bps) == 0 {
		return "no breakpoints", nil
	}
	for _, bp := range bps {
		fmt.Fprintf(&buf, "Breakpoint %d at %s:%d", bp.ID, bp.File, bp.Line)
		if bp.Disabled {
			fmt.Fprint(&buf, " (disabled)")
		}
		if bp.Cond != "" {
			fmt.Fprintf(&buf, " if %s", bp.Cond)
		}
		if bp.Remaining >= 0 {
			fmt.Fprintf(&buf, " (%d hits left)", bp.Remaining)
		}
		fmt.Fprintln(&buf)
	}
	return buf.String(), nil
}

func (s *Server) clearAll(string) (string, error) {
	cleared, err := s.debugger.ClearAllBreakpoints()
	if err != nil {
		return "", err
	}
	for _, bp := range cleared {
		s.send(&dap.BreakpointEvent{
			Event: *newEvent("breakpoint"),
			Body:  dap.BreakpointEventBody{Reason: "removed", Breakpoint: dap.Breakpoint{Id: bp.ID}},
		})
	}
	return fmt.Sprintf("%d breakpoints cleared", len(cleared)), nil
}
