package dap

import (
	"fmt"
	"strconv"
	"strings"
)

// LaunchConfig is the collection of launch request attributes recognized
// by the debugd DAP implementation. The debuggee is chosen when the
// server starts, launch only starts the debug session.
type LaunchConfig struct {
	// Name of the debug configuration, used in log messages.
	Name string `json:"name,omitempty"`

	LaunchAttachCommonConfig
}

// AttachConfig is the collection of attach request attributes recognized
// by the debugd DAP implementation.
type AttachConfig struct {
	LaunchAttachCommonConfig
}

// LaunchAttachCommonConfig is the attributes common in both launch/attach requests.
type LaunchAttachCommonConfig struct {
	// An array of mappings from a local path (client) to the remote path
	// (debuggee). Locations of breakpoints are translated with it.
	SubstitutePath []SubstitutePath `json:"substitutePath,omitempty"`
}

// SubstitutePath defines a mapping from a local path to the remote path.
type SubstitutePath struct {
	// The local path to be replaced when passing paths to the debugger.
	From string `json:"from,omitempty"`
	// The remote path to be replaced when passing paths back to the client.
	To string `json:"to,omitempty"`
}

func (m *SubstitutePath) UnmarshalJSON(data []byte) error {
	// use custom unmarshal to check if both from/to are set.
	type tmpType SubstitutePath
	var tmp tmpType

	if err := unmarshalStrict(data, &tmp); err != nil {
		return err
	}
	if tmp.From == "" && tmp.To == "" {
		return fmt.Errorf("'substitutePath' requires both 'from' and 'to' entries")
	}
	*m = SubstitutePath(tmp)
	return nil
}

// parseHitCondition converts the hit condition of a DAP source breakpoint
// into a hit count. "" means unlimited, "N" or "==N" removes the
// breakpoint after N hits, "-1" only stops on run to cursor.
func parseHitCondition(cond string) (int, error) {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return 0, nil
	}
	cond = strings.TrimSpace(strings.TrimPrefix(cond, "=="))
	n, err := strconv.Atoi(cond)
	if err != nil {
		return 0, fmt.Errorf("unsupported hit condition %q, expected a number", cond)
	}
	return n, nil
}
