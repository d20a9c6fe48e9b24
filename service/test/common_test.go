package service_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/eclipse-che/debugd/pkg/proc/sim"
	"github.com/eclipse-che/debugd/service/api"
)

func assertNoError(err error, t *testing.T, s string) {
	if err != nil {
		_, file, line, _ := runtime.Caller(1)
		fname := filepath.Base(file)
		t.Fatalf("failed assertion at %s:%d: %s - %s\n", fname, line, s, err)
	}
}

func assertError(err error, t *testing.T, s string) {
	if err == nil {
		_, file, line, _ := runtime.Caller(1)
		fname := filepath.Base(file)
		t.Fatalf("failed assertion at %s:%d: %s (no error)\n", fname, line, s)
	}
}

func assertErrorContains(err error, t *testing.T, want, s string) {
	if err == nil || !strings.Contains(err.Error(), want) {
		_, file, line, _ := runtime.Caller(1)
		fname := filepath.Base(file)
		t.Fatalf("failed assertion at %s:%d: %s: expected error containing %q, got %v\n", fname, line, s, want, err)
	}
}

func assertStopped(t *testing.T, state *api.DebuggerState, file string, line int) {
	if state.State != api.StateSuspended || state.CurrentLocation == nil || state.CurrentLocation.File != file || state.CurrentLocation.Line != line {
		_, cfile, cline, _ := runtime.Caller(1)
		t.Fatalf("failed assertion at %s:%d: expected stop at %s:%d, got %s %#v\n", filepath.Base(cfile), cline, file, line, state.State, state.CurrentLocation)
	}
}

func fixturePath(t *testing.T, name string) string {
	fp, err := filepath.Abs(filepath.Join("_fixtures", name+".yml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(fp); err != nil {
		fp, err = filepath.Abs(filepath.Join("..", "..", "_fixtures", name+".yml"))
		if err != nil {
			t.Fatal(err)
		}
	}
	return fp
}

func loadFixture(t *testing.T, name string) *sim.Script {
	script, err := sim.LoadScript(fixturePath(t, name))
	if err != nil {
		t.Fatalf("could not load fixture %s: %v", name, err)
	}
	return script
}

func countBreakpoints(t *testing.T, c interface {
	ListBreakpoints() ([]*api.Breakpoint, error)
}) int {
	bps, err := c.ListBreakpoints()
	assertNoError(err, t, "ListBreakpoints()")
	return len(bps)
}
