package locspec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eclipse-che/debugd/pkg/config"
	"github.com/eclipse-che/debugd/pkg/proc"
)

// ErrNoCurrentLocation is returned when a relative spec is resolved
// without a stop location.
var ErrNoCurrentLocation = errors.New("no current location, the debuggee is not suspended")

// LocationSpec is an interface that represents a parsed location spec string.
type LocationSpec interface {
	// Find resolves the spec. cur is the location of the current stop and
	// may be nil.
	Find(cur *proc.Location, rules config.SubstitutePathRules) (proc.Location, error)
}

// NormalLocationSpec represents a file:line spec.
type NormalLocationSpec struct {
	File string
	Line int
}

// LineLocationSpec represents a line number in the current file.
type LineLocationSpec struct {
	Line int
}

// OffsetLocationSpec represents a location spec that
// is an offset of the current location (file:line).
type OffsetLocationSpec struct {
	Offset int
}

// Parse will turn locStr into a parsed LocationSpec.
func Parse(locStr string) (LocationSpec, error) {
	rest := strings.TrimSpace(locStr)

	malformed := func(reason string) error {
		//lint:ignore ST1005 backwards compatibility
		return fmt.Errorf("Malformed breakpoint location %q: %s", locStr, reason)
	}

	if len(rest) == 0 {
		return nil, malformed("empty string")
	}

	switch rest[0] {
	case '+', '-':
		offset, err := strconv.Atoi(rest)
		if err != nil {
			return nil, malformed(err.Error())
		}
		return &OffsetLocationSpec{offset}, nil
	}

	// Split on the last colon, Windows paths may contain one.
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		line, err := strconv.Atoi(rest)
		if err != nil {
			return nil, malformed("expected <file>:<line>, <line> or +/-<offset>")
		}
		if line <= 0 {
			return nil, malformed("line must be positive")
		}
		return &LineLocationSpec{line}, nil
	}
	file, lineStr := rest[:i], rest[i+1:]
	if file == "" {
		return nil, malformed("empty file name")
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		return nil, malformed(fmt.Sprintf("line %q is not a number", lineStr))
	}
	if line <= 0 {
		return nil, malformed("line must be positive")
	}
	return &NormalLocationSpec{File: file, Line: line}, nil
}

func (loc *NormalLocationSpec) Find(_ *proc.Location, rules config.SubstitutePathRules) (proc.Location, error) {
	return proc.Location{File: rules.Substitute(loc.File), Line: loc.Line}, nil
}

func (loc *LineLocationSpec) Find(cur *proc.Location, _ config.SubstitutePathRules) (proc.Location, error) {
	if cur == nil {
		return proc.Location{}, ErrNoCurrentLocation
	}
	return proc.Location{File: cur.File, Line: loc.Line}, nil
}

func (loc *OffsetLocationSpec) Find(cur *proc.Location, _ config.SubstitutePathRules) (proc.Location, error) {
	if cur == nil {
		return proc.Location{}, ErrNoCurrentLocation
	}
	line := cur.Line + loc.Offset
	if line <= 0 {
		return proc.Location{}, fmt.Errorf("offset %+d from %s is before the start of the file", loc.Offset, cur)
	}
	return proc.Location{File: cur.File, Line: line}, nil
}

// Resolve parses locStr and resolves it against cur.
func Resolve(locStr string, cur *proc.Location, rules config.SubstitutePathRules) (proc.Location, error) {
	spec, err := Parse(locStr)
	if err != nil {
		return proc.Location{}, err
	}
	return spec.Find(cur, rules)
}
