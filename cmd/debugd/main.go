package main

import (
	"os"

	"github.com/eclipse-che/debugd/cmd/debugd/cmds"
	"github.com/eclipse-che/debugd/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.DebugdVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
