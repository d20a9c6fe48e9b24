package helphelpers

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Prepare prepares cmd flag set for the invocation of its usage function by
// hiding flags that we want cobra to parse but we don't want to show to the
// user.
// We do this because not all flags associated with the root command are
// valid for all subcommands but we don't want to move them out of the root
// command and into subcommands, since that would change how cobra parses
// the command line.
//
// For example:
//
//	debugd --headless connect localhost:2345
//
// must parse successfully even though the headless flag is not applicable
// to the 'connect' subcommand.
//
// Prepare is a destructive command, cmd can not be reused after it has been
// called.
func Prepare(cmd *cobra.Command) {
	switch cmd.Name() {
	case "debugd", "help", "version", "log", "configs", "list", "save", "delete":
		hideAllFlags(cmd)
	case "connect":
		hideFlag(cmd, "accept-multiclient")
		hideFlag(cmd, "headless")
		hideFlag(cmd, "listen")
		hideFlag(cmd, "action-timeout")
		hideFlag(cmd, "attach")
	case "dap", "agent":
		hideFlag(cmd, "headless")
		hideFlag(cmd, "accept-multiclient")
		hideFlag(cmd, "init")
		hideFlag(cmd, "attach")
		hideFlag(cmd, "tls-cert")
		hideFlag(cmd, "tls-key")
		hideFlag(cmd, "tls-ca")
		if cmd.Name() == "agent" {
			hideFlag(cmd, "only-same-user")
		}
	case "serve":
		for _, name := range []string{"headless", "accept-multiclient", "init", "attach", "action-timeout", "only-same-user", "tls-cert", "tls-key", "tls-ca"} {
			hideFlag(cmd, name)
		}
	case "sim", "remote", "debug":
		// All flags apply
	}
}

func hideAllFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Hidden = true
	})
	for ; cmd != nil; cmd = cmd.Parent() {
		cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
			flag.Hidden = true
		})
	}
}

func hideFlag(cmd *cobra.Command, name string) {
	if cmd == nil {
		return
	}
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if flag != nil {
		flag.Hidden = true
		return
	}
	hideFlag(cmd.Parent(), name)
}
