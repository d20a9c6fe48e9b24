package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/eclipse-che/debugd/pkg/proc"
)

// Script describes the program executed by a simulated debuggee.
//
//	vars:
//	  i: 0
//	lines:
//	  - {file: main.go, line: 3, func: main}
//	  - {line: 4, func: loop, depth: 1, exec: "i = i + 1"}
//	  - {line: 5, func: loop, depth: 1, if: "i < 10", goto: 4}
//	  - {line: 6, func: main}
//
// Lines run in order. A line with goto jumps to the line with that number
// in the same file when its if expression is true or absent.
type Script struct {
	Vars  map[string]interface{} `yaml:"vars"`
	Lines []Line                 `yaml:"lines"`

	jumps map[int]int
}

// Line is a single executable line of a Script.
type Line struct {
	File  string `yaml:"file"`
	Line  int    `yaml:"line"`
	Func  string `yaml:"func"`
	Depth int    `yaml:"depth"`
	Exec  string `yaml:"exec"`
	If    string `yaml:"if"`
	Goto  int    `yaml:"goto"`
}

// Location returns the source position of l.
func (l *Line) Location() proc.Location {
	return proc.Location{File: l.File, Line: l.Line}
}

// LoadScript reads a script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse script: %v", err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) check() error {
	if len(s.Lines) == 0 {
		return fmt.Errorf("script has no lines")
	}
	index := make(map[proc.Location]int, len(s.Lines))
	file := ""
	for i := range s.Lines {
		l := &s.Lines[i]
		if l.File == "" {
			l.File = file
		}
		file = l.File
		if !l.Location().Valid() {
			return fmt.Errorf("line %d: invalid location %s", i, l.Location())
		}
		if l.Depth < 0 {
			return fmt.Errorf("line %d: negative depth", i)
		}
		if _, dup := index[l.Location()]; dup {
			return fmt.Errorf("line %d: duplicate location %s", i, l.Location())
		}
		index[l.Location()] = i
	}
	s.jumps = make(map[int]int)
	for i := range s.Lines {
		l := &s.Lines[i]
		if l.Goto == 0 {
			if l.If != "" {
				return fmt.Errorf("%s: if without goto", l.Location())
			}
			continue
		}
		dst, ok := index[proc.Location{File: l.File, Line: l.Goto}]
		if !ok {
			return fmt.Errorf("%s: goto to unknown line %d", l.Location(), l.Goto)
		}
		s.jumps[i] = dst
	}
	return nil
}

// Has returns true if loc is an executable line of the script.
func (s *Script) Has(loc proc.Location) bool {
	for i := range s.Lines {
		if s.Lines[i].Location() == loc {
			return true
		}
	}
	return false
}
