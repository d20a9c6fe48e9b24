package tls

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/eclipse-che/debugd/pkg/tls/tlstest"
)

// serveOnce accepts one connection on l and writes "ok" to it.
func serveOnce(l net.Listener) <-chan error {
	done := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		_, err = conn.Write([]byte("ok"))
		done <- err
	}()
	return done
}

func roundTrip(addr string, o Options) error {
	conn, err := Dial("tcp", addr, o)
	if err != nil {
		return err
	}
	defer conn.Close()
	buf := make([]byte, 2)
	_, err = io.ReadFull(conn, buf)
	return err
}

func listen(t *testing.T, o Options) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	tl, err := WrapListener(l, o)
	if err != nil {
		l.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() { tl.Close() })
	return tl
}

func TestRunOnTLS(t *testing.T) {
	dir := t.TempDir()
	ca := tlstest.CreateCrtKey(t, dir, "ca", 1, nil)
	server := tlstest.CreateCrtKey(t, dir, "server", 2, ca)

	l := listen(t, Options{Cert: server.Crt, Key: server.Key})
	done := serveOnce(l)
	if err := roundTrip(l.Addr().String(), Options{CA: ca.Crt}); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}

	// A client that does not trust the CA must not connect.
	other := tlstest.CreateCrtKey(t, dir, "other", 3, nil)
	done = serveOnce(l)
	if err := roundTrip(l.Addr().String(), Options{CA: other.Crt}); err == nil {
		t.Fatal("connected without trusting the server certificate")
	}
	<-done
}

func TestRunOnMtls(t *testing.T) {
	dir := t.TempDir()
	ca := tlstest.CreateCrtKey(t, dir, "ca", 1, nil)
	server := tlstest.CreateCrtKey(t, dir, "server", 2, ca)
	client := tlstest.CreateCrtKey(t, dir, "client", 3, ca)
	stranger := tlstest.CreateCrtKey(t, dir, "stranger", 4, nil)

	l := listen(t, Options{CA: ca.Crt, Cert: server.Crt, Key: server.Key})

	done := serveOnce(l)
	if err := roundTrip(l.Addr().String(), Options{CA: ca.Crt, Cert: client.Crt, Key: client.Key}); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}

	for _, o := range []Options{
		{CA: ca.Crt},
		{CA: ca.Crt, Cert: stranger.Crt, Key: stranger.Key},
	} {
		done = serveOnce(l)
		if err := roundTrip(l.Addr().String(), o); err == nil {
			t.Errorf("%#v: connected without a valid client certificate", o)
		}
		if err := <-done; err == nil {
			t.Errorf("%#v: server accepted the client", o)
		}
	}
}

func TestServerConfig(t *testing.T) {
	if _, err := ServerConfig(Options{CA: "ca.crt"}); err == nil {
		t.Fatal("server configured without a certificate")
	}
	if _, err := ServerConfig(Options{Cert: "missing.crt", Key: "missing.key"}); err == nil {
		t.Fatal("server configured with missing files")
	}
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.crt")
	if err := os.WriteFile(bad, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCertPool(bad); err == nil {
		t.Fatal("loaded a pool without certificates")
	}
	if (Options{}).Enabled() {
		t.Fatal("empty options enabled")
	}
}
