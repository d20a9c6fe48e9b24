package logflags

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error {
	return nil
}

func resetFlags() {
	any, debugger, rpc, dap, transport, store = false, false, false, false, false, false
	loggerFactory = nil
	logOut = nil
}

func TestFactoryReceivesLayerFields(t *testing.T) {
	defer resetFlags()
	logOut = &bufferWriter{}

	var gotLevel logrus.Level
	var gotFields Fields
	var gotOut io.Writer
	want := &logrusLogger{}
	SetLoggerFactory(func(level logrus.Level, fields Fields, out io.Writer) Logger {
		gotLevel, gotFields, gotOut = level, fields, out
		return want
	})

	if l := StoreLogger(); l != want {
		t.Fatalf("factory result not returned: %v", l)
	}
	if gotLevel != logrus.ErrorLevel {
		t.Fatalf("level: got %v want %v", gotLevel, logrus.ErrorLevel)
	}
	if gotFields["layer"] != "store" {
		t.Fatalf("fields: %v", gotFields)
	}
	if gotOut != logOut {
		t.Fatalf("out: got %v want %v", gotOut, logOut)
	}
}

func TestFlaggableLevels(t *testing.T) {
	defer resetFlags()
	for _, tc := range []struct {
		flag bool
		want logrus.Level
	}{
		{false, logrus.ErrorLevel},
		{true, logrus.DebugLevel},
	} {
		l, ok := makeFlaggableLogger(tc.flag, Fields{"layer": "x"}).(*logrusLogger)
		if !ok {
			t.Fatalf("unexpected logger type %T", l)
		}
		if l.Logger.Level != tc.want {
			t.Fatalf("flag %v: level %v, want %v", tc.flag, l.Logger.Level, tc.want)
		}
		if l.Logger.Formatter != textFormatterInstance {
			t.Fatalf("formatter not installed")
		}
	}
}

func TestSetup(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "rpc", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected errLogstrWithoutLog, got %v", err)
	}
	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Any() || !Debugger() || RPC() {
		t.Fatalf("default log output should be debugger only")
	}
	resetFlags()
	if err := Setup(true, "rpc,dap,transport,store", ""); err != nil {
		t.Fatal(err)
	}
	if Debugger() || !RPC() || !DAP() || !Transport() || !Store() {
		t.Fatalf("wrong layers enabled: debugger=%v rpc=%v dap=%v transport=%v store=%v", Debugger(), RPC(), DAP(), Transport(), Store())
	}
}

func TestTextFormatter(t *testing.T) {
	e := &logrus.Entry{
		Time:    time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "breakpoint hit",
		Data:    logrus.Fields{"layer": "debugger", "loc": "main.go:12", "cond": "x > 1"},
	}
	out, err := textFormatterInstance.Format(e)
	if err != nil {
		t.Fatal(err)
	}
	want := `2021-03-04T05:06:07Z info cond="x > 1",layer=debugger,loc="main.go:12" breakpoint hit` + "\n"
	if string(out) != want {
		t.Fatalf("got %q\nwant %q", out, want)
	}
}

func TestListeningMessage(t *testing.T) {
	defer resetFlags()
	buf := &bufferWriter{}
	logOut = buf
	WriteDAPListeningMessage(fakeAddr("127.0.0.1:4000"))
	if !strings.Contains(buf.String(), "DAP server listening at: 127.0.0.1:4000") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }
