package electrum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/nao1215/electrumscan/internal/model"
)

// ProxyStatus is the result of a SOCKS5 proxy preflight check.
type ProxyStatus int

// Proxy statuses.
const (
	ProxyStatusOK ProxyStatus = iota
	ProxyStatusWrongType
	ProxyStatusAuthFailed
	ProxyStatusCannotConnect
	ProxyStatusTimeout
)

// ErrProxyUnusable is wrapped by ProxyStatus.Err for every non-OK status.
var ErrProxyUnusable = errors.New("proxy unusable")

// String returns a human-readable description of the status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "not a SOCKS5 proxy"
	case ProxyStatusAuthFailed:
		return "authentication failed"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns nil for ProxyStatusOK, otherwise an error wrapping ErrProxyUnusable.
func (s ProxyStatus) Err() error {
	if s == ProxyStatusOK {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrProxyUnusable, s)
}

const (
	socks5Version        = 0x05
	socks5AuthNone       = 0x00
	socks5AuthPassword   = 0x02
	socks5AuthNoAccept   = 0xFF
	socks5CmdConnect     = 0x01
	socks5AddrTypeDomain = 0x03

	// proxyProbeHost is never resolved successfully; only the proxy's reply matters.
	proxyProbeHost = "electrumscan-proxy-check.invalid"
)

// CheckProxy performs a SOCKS5 greeting and a CONNECT request against the
// proxy in rawURL. Any well-formed CONNECT reply, including a failure code,
// counts as OK. Credentials in the URL are used for username/password auth.
func CheckProxy(ctx context.Context, rawURL string, timeout time.Duration) ProxyStatus {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ProxyStatusCannotConnect
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		if ctx.Err() != nil {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return ProxyStatusCannotConnect
		}
	}

	if status := socks5Greet(conn, u.User); status != ProxyStatusOK {
		return status
	}
	return socks5Connect(conn, proxyProbeHost, model.CanonicalTLSPort)
}

func readStatus(err error) ProxyStatus {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}

func socks5Greet(conn net.Conn, user *url.Userinfo) ProxyStatus {
	greeting := []byte{socks5Version, 0x01, socks5AuthNone}
	if user != nil {
		greeting = []byte{socks5Version, 0x02, socks5AuthNone, socks5AuthPassword}
	}
	if _, err := conn.Write(greeting); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readStatus(err)
	}
	if resp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	switch resp[1] {
	case socks5AuthNone:
		return ProxyStatusOK
	case socks5AuthPassword:
		if user == nil {
			return ProxyStatusAuthFailed
		}
		return socks5Password(conn, user)
	case socks5AuthNoAccept:
		return ProxyStatusAuthFailed
	default:
		return ProxyStatusWrongType
	}
}

// socks5Password runs the RFC 1929 username/password sub-negotiation.
func socks5Password(conn net.Conn, user *url.Userinfo) ProxyStatus {
	name := user.Username()
	pass, _ := user.Password()
	if len(name) > 255 || len(pass) > 255 {
		return ProxyStatusAuthFailed
	}

	req := make([]byte, 0, 3+len(name)+len(pass))
	req = append(req, 0x01, byte(len(name)))
	req = append(req, name...)
	req = append(req, byte(len(pass)))
	req = append(req, pass...)
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readStatus(err)
	}
	if resp[1] != 0x00 {
		return ProxyStatusAuthFailed
	}
	return ProxyStatusOK
}

func socks5Connect(conn net.Conn, host string, port int) ProxyStatus {
	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeDomain, byte(len(host))}
	req = append(req, host...)
	req = append(req, byte(port>>8), byte(port&0xFF))
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, reply code, reserved, address type
	resp := make([]byte, 4)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readStatus(err)
	}
	if resp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
