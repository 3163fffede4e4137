package electrum

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/nao1215/electrumscan/internal/model"
)

// DefaultTimeout bounds connect and each read/write when no timeout is configured.
const DefaultTimeout = 4 * time.Second

// DefaultMaxResponseSize caps a single response line.
const DefaultMaxResponseSize = 4 << 20

// Observer receives one event per dial and per exchange.
type Observer interface {
	ObserveDial(transport model.Transport, outcome Outcome)
	ObserveCall(method string, outcome Outcome, latency time.Duration)
}

// Client dials Electrum servers and performs request/response exchanges.
// A Client is safe for concurrent use; each exchange uses its own connection.
type Client struct {
	timeout      time.Duration
	fallbackPort int
	tlsConfig    *tls.Config
	dialer       Dialer
	observer     Observer
	logger       *slog.Logger
	maxResponse  int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithFallbackPort sets the plaintext port tried after a failed TLS connect.
func WithFallbackPort(port int) Option {
	return func(c *Client) {
		c.fallbackPort = port
	}
}

// WithDialer replaces the TCP dialer, e.g. with a SOCKS5 proxy dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithTLSConfig replaces the base TLS configuration.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		if cfg != nil {
			c.tlsConfig = cfg
		}
	}
}

// WithMaxResponseSize caps the length of a response line in bytes.
// Non-positive values keep the default.
func WithMaxResponseSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponse = n
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout:      DefaultTimeout,
		fallbackPort: model.PlaintextPort,
		tlsConfig:    PermissiveTLSConfig(),
		dialer:       &net.Dialer{},
		logger:       slog.Default(),
		maxResponse:  DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-operation timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Dial connects to host:port over TLS and, if that fails, over plaintext to
// host on the fallback port. The returned Conn reports which transport won.
func (c *Client) Dial(ctx context.Context, host string, port int) (*Conn, error) {
	tlsConn, tlsErr := c.DialTLS(ctx, host, port)
	if tlsErr == nil {
		return c.newConn(tlsConn, model.TransportTLS), nil
	}
	c.logger.Debug("tls connect failed, trying plaintext",
		"host", host, "port", port, "fallback_port", c.fallbackPort, "error", tlsErr)

	plain, err := c.dial(ctx, host, c.fallbackPort)
	if err != nil {
		c.observeDial(model.TransportPlain, classify(err))
		return nil, &CallError{
			Phase:   PhaseDial,
			Outcome: classify(err),
			Err:     fmt.Errorf("%w: tls: %v; plaintext: %w", ErrConnectionFailed, tlsErr, err),
		}
	}
	c.observeDial(model.TransportPlain, OutcomeSuccess)
	return c.newConn(plain, model.TransportPlain), nil
}

// DialTLS connects to host:port over TLS only and completes the handshake.
func (c *Client) DialTLS(ctx context.Context, host string, port int) (*tls.Conn, error) {
	raw, err := c.dial(ctx, host, port)
	if err != nil {
		c.observeDial(model.TransportTLS, classify(err))
		return nil, newCallError(PhaseDial, err)
	}

	hsCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn := tls.Client(raw, tlsConfigFor(c.tlsConfig, host))
	if err := conn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		c.observeDial(model.TransportTLS, classify(err))
		return nil, newCallError(PhaseDial, err)
	}
	c.observeDial(model.TransportTLS, OutcomeSuccess)
	return conn, nil
}

// PeerCertificate performs a TLS-only handshake with host:port and returns
// the leaf certificate the server presented.
func (c *Client) PeerCertificate(ctx context.Context, host string, port int) (*x509.Certificate, error) {
	conn, err := c.DialTLS(ctx, host, port)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, &CallError{Phase: PhaseDial, Outcome: OutcomeOther, Err: ErrNoCertificate}
	}
	return certs[0], nil
}

// Call dials host:port, performs a single exchange and closes the connection.
func (c *Client) Call(ctx context.Context, host string, port int, method string, params ...any) (*Response, error) {
	conn, err := c.Dial(ctx, host, port)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.Call(ctx, method, params...)
}

func (c *Client) dial(ctx context.Context, host string, port int) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

func (c *Client) newConn(conn net.Conn, transport model.Transport) *Conn {
	return &Conn{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		transport: transport,
		timeout:   c.timeout,
		observer:  c.observer,
		maxLine:   c.maxResponse,
	}
}

func (c *Client) observeDial(transport model.Transport, outcome Outcome) {
	if c.observer != nil {
		c.observer.ObserveDial(transport, outcome)
	}
}

// Conn is an established connection. A Conn is not safe for concurrent use.
type Conn struct {
	conn      net.Conn
	reader    *bufio.Reader
	transport model.Transport
	timeout   time.Duration
	observer  Observer
	nextID    int
	maxLine   int
}

// Transport reports whether the connection is TLS or plaintext.
func (c *Conn) Transport() model.Transport {
	return c.transport
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Call sends one request and reads one response line. Both the write and the
// read are bounded by the client timeout. On a decode or RPC failure the
// partially filled Response is returned together with the error so callers
// can still record the raw line and latency.
func (c *Conn) Call(ctx context.Context, method string, params ...any) (*Response, error) {
	req := Request{ID: c.nextID, Method: method, Params: params}
	c.nextID++

	line, err := req.Encode()
	if err != nil {
		return nil, &CallError{Phase: PhaseWrite, Outcome: OutcomeOther, Err: err}
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, newCallError(PhaseWrite, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if _, err := c.conn.Write(line); err != nil {
		return nil, c.fail(method, 0, newCallError(PhaseWrite, err))
	}

	raw, readErr := readLine(c.reader, c.maxLine)
	latency := time.Since(start)
	if readErr != nil && (readErr != io.EOF || len(raw) == 0) {
		if readErr == io.EOF {
			readErr = ErrEmptyResponse
		}
		return nil, c.fail(method, latency, newCallError(PhaseRead, readErr))
	}

	resp := &Response{Latency: latency, Transport: c.transport}
	if err := parseResponse(raw, resp); err != nil {
		return resp, c.fail(method, latency, &CallError{Phase: PhaseDecode, Outcome: OutcomeMalformed, Err: err})
	}
	if resp.Error != nil {
		return resp, c.fail(method, latency, &CallError{Phase: PhaseRPC, Outcome: OutcomeRPCError, Err: resp.Error})
	}
	c.observe(method, OutcomeSuccess, latency)
	return resp, nil
}

// readLine reads up to and including the next newline, failing with
// ErrResponseTooLarge once more than limit bytes arrive without one.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if limit > 0 && len(line)+len(chunk) > limit {
			return nil, ErrResponseTooLarge
		}
		line = append(line, chunk...)
		if err != bufio.ErrBufferFull {
			return line, err
		}
	}
}

func (c *Conn) fail(method string, latency time.Duration, err *CallError) error {
	c.observe(method, err.Outcome, latency)
	return err
}

func (c *Conn) observe(method string, outcome Outcome, latency time.Duration) {
	if c.observer != nil {
		c.observer.ObserveCall(method, outcome, latency)
	}
}
