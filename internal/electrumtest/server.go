// Package electrumtest provides loopback Electrum servers for tests.
package electrumtest

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/electrumscan/internal/electrum"
)

// Special handler replies.
const (
	// Hang keeps the connection open without answering.
	Hang = "\x00hang"
	// Drop closes the connection without answering.
	Drop = "\x00drop"
)

// Certificate validity used by generated certificates.
var (
	NotBefore = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	NotAfter  = time.Date(2034, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Handler answers one request with one raw response line (without the
// trailing newline), or with Hang or Drop.
type Handler func(req electrum.Request) string

// Server is a loopback Electrum server.
type Server struct {
	Host string
	Port int
	// Certificate is the leaf certificate for TLS servers.
	Certificate *x509.Certificate

	listener net.Listener
	handler  Handler
	done     chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	calls []electrum.Request
}

// NewServer starts a plaintext server. It is closed when the test ends.
func NewServer(t testing.TB, h Handler) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	return start(t, ln, h, nil)
}

// NewTLSServer starts a TLS server presenting cert.
func NewTLSServer(t testing.TB, cert tls.Certificate, h Handler) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	tlsLn := tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	return start(t, tlsLn, h, cert.Leaf)
}

func start(t testing.TB, ln net.Listener, h Handler, leaf *x509.Certificate) *Server {
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener address %T", ln.Addr())
	}
	s := &Server{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		Certificate: leaf,
		listener:    ln,
		handler:     h,
		done:        make(chan struct{}),
		conns:       make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Close stops the server and closes open connections.
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	_ = s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Calls returns the requests received so far.
func (s *Server) Calls() []electrum.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]electrum.Request(nil), s.calls...)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req electrum.Request
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, req)
		s.mu.Unlock()

		switch reply := s.handler(req); reply {
		case Drop:
			return
		case Hang:
			<-s.done
			return
		default:
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

// Result renders a successful response line.
func Result(id int, result any) string {
	data, err := json.Marshal(map[string]any{"id": id, "jsonrpc": "2.0", "result": result})
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Error renders an error response line.
func Error(id, code int, message string) string {
	data, err := json.Marshal(map[string]any{
		"id":      id,
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": code, "message": message},
	})
	if err != nil {
		panic(err)
	}
	return string(data)
}

// ClosedPort returns a loopback port with nothing listening on it.
func ClosedPort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert // tcp listener
	_ = ln.Close()
	return port
}

// Certificate generates a certificate for subjectCN. When issuerCN differs
// from subjectCN the leaf is signed by a throwaway CA with that name,
// otherwise it is self-signed.
func Certificate(t testing.TB, subjectCN, issuerCN string) tls.Certificate {
	t.Helper()

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: subjectCN},
		NotBefore:    NotBefore,
		NotAfter:     NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	parent := leafTmpl
	signer := leafKey
	if issuerCN != subjectCN {
		caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("failed to generate CA key: %v", err)
		}
		parent = &x509.Certificate{
			SerialNumber:          big.NewInt(1),
			Subject:               pkix.Name{CommonName: issuerCN},
			NotBefore:             NotBefore,
			NotAfter:              NotAfter,
			KeyUsage:              x509.KeyUsageCertSign,
			BasicConstraintsValid: true,
			IsCA:                  true,
		}
		signer = caKey
	}

	der, err := x509.CreateCertificate(rand.Reader, leafTmpl, parent, &leafKey.PublicKey, signer)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  leafKey,
		Leaf:        leaf,
	}
}
