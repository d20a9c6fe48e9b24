// Package tls secures the connection between a headless server and its
// clients.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

// Options selects the certificates of one end of a connection.
type Options struct {
	// CA is the certificate authority the peer is verified against. On a
	// server it turns on client certificate verification.
	CA string
	// Cert and Key are the PEM files of this end. A client only needs them
	// if the server verifies clients.
	Cert string
	Key  string
}

// Enabled reports whether any certificate was configured.
func (o Options) Enabled() bool {
	return o.CA != "" || o.Cert != "" || o.Key != ""
}

// LoadCertPool returns a pool holding the certificates of caCrtPath.
func LoadCertPool(caCrtPath string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caCrtPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificate found in %s", caCrtPath)
	}
	return pool, nil
}

func (o Options) certificates() ([]tls.Certificate, error) {
	if o.Cert == "" && o.Key == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(o.Cert, o.Key)
	if err != nil {
		return nil, fmt.Errorf("load x509 key pair from (%s, %s): %v", o.Cert, o.Key, err)
	}
	return []tls.Certificate{cert}, nil
}

// ServerConfig returns the configuration of a server using o.
func ServerConfig(o Options) (*tls.Config, error) {
	if o.Cert == "" || o.Key == "" {
		return nil, errors.New("a server needs a certificate and a key")
	}
	certs, err := o.certificates()
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{Certificates: certs, MinVersion: tls.VersionTLS12}
	if o.CA != "" {
		pool, err := LoadCertPool(o.CA)
		if err != nil {
			return nil, fmt.Errorf("load cert pool from (%s): %v", o.CA, err)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// ClientConfig returns the configuration of a client using o. Without a CA
// the system roots are used.
func ClientConfig(o Options) (*tls.Config, error) {
	certs, err := o.certificates()
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{Certificates: certs, MinVersion: tls.VersionTLS12}
	if o.CA != "" {
		cfg.RootCAs, err = LoadCertPool(o.CA)
		if err != nil {
			return nil, fmt.Errorf("load cert pool from (%s): %v", o.CA, err)
		}
	}
	return cfg, nil
}

// WrapListener returns a listener accepting TLS connections on l.
func WrapListener(l net.Listener, o Options) (net.Listener, error) {
	cfg, err := ServerConfig(o)
	if err != nil {
		return nil, err
	}
	return tls.NewListener(l, cfg), nil
}

// Dial connects to addr and completes the TLS handshake.
func Dial(network, addr string, o Options) (net.Conn, error) {
	cfg, err := ClientConfig(o)
	if err != nil {
		return nil, err
	}
	conn, err := tls.Dial(network, addr, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
