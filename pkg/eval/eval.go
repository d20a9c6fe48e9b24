// Package eval evaluates expressions and statements over the variables of
// a stopped debuggee using the starlark language.
package eval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
)

func init() {
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowLambda = true
	resolve.AllowGlobalReassign = true
}

const (
	envName = "_vars"

	// maxSteps bounds a single evaluation so that a runaway expression
	// can not hang the debugger.
	maxSteps = 1 << 20
)

// Scope holds the variables visible to expressions.
type Scope struct {
	globals starlark.StringDict
}

// NewScope returns a scope containing vars. Values are converted with
// ToValue.
func NewScope(vars map[string]interface{}) (*Scope, error) {
	s := &Scope{globals: starlark.StringDict{}}
	for name, v := range vars {
		sv, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %v", name, err)
		}
		s.globals[name] = sv
	}
	return s, nil
}

func newThread(ctx context.Context, name string) (*starlark.Thread, func()) {
	thread := &starlark.Thread{Name: name}
	thread.SetMaxExecutionSteps(maxSteps)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return thread, func() { close(done) }
}

// Eval evaluates expr and returns its value as a variable named after the
// expression.
func (s *Scope) Eval(ctx context.Context, expr string) (*Variable, error) {
	v, err := s.value(ctx, expr)
	if err != nil {
		return nil, err
	}
	r := ToVariable(expr, v)
	return &r, nil
}

func (s *Scope) value(ctx context.Context, expr string) (starlark.Value, error) {
	thread, stop := newThread(ctx, "eval")
	defer stop()
	v, err := starlark.Eval(thread, "<expr>", expr, s.globals)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return v, nil
}

// Exec runs the statements in src. Top level assignments update the scope.
func (s *Scope) Exec(ctx context.Context, src string) error {
	names := make([]string, 0, len(s.globals))
	for name := range s.globals {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf strings.Builder
	for _, name := range names {
		fmt.Fprintf(&buf, "%s = %s[%q]\n", name, envName, name)
	}
	buf.WriteString(src)

	env := starlark.NewDict(len(names))
	for _, name := range names {
		env.SetKey(starlark.String(name), s.globals[name])
	}

	thread, stop := newThread(ctx, "exec")
	defer stop()
	globals, err := starlark.ExecFile(thread, "<exec>", buf.String(), starlark.StringDict{envName: env})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	s.globals = globals
	return nil
}

// Set assigns the value of valueExpr to the existing variable name.
func (s *Scope) Set(ctx context.Context, name, valueExpr string) error {
	if _, ok := s.globals[name]; !ok {
		return fmt.Errorf("could not find symbol value for %s", name)
	}
	v, err := s.value(ctx, valueExpr)
	if err != nil {
		return err
	}
	globals := make(starlark.StringDict, len(s.globals))
	for k, old := range s.globals {
		globals[k] = old
	}
	globals[name] = v
	s.globals = globals
	return nil
}

// Truth evaluates expr as a condition.
func (s *Scope) Truth(ctx context.Context, expr string) (bool, error) {
	v, err := s.value(ctx, expr)
	if err != nil {
		return false, err
	}
	b, ok := v.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("condition expression not boolean: %s", v.Type())
	}
	return bool(b), nil
}

// Variables returns every variable in the scope sorted by name.
func (s *Scope) Variables() []Variable {
	r := make([]Variable, 0, len(s.globals))
	for name, v := range s.globals {
		r = append(r, ToVariable(name, v))
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r
}
