package electrum

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// fakeSOCKS5 serves one connection with handler and returns a socks5:// URL.
func fakeSOCKS5(t *testing.T, userinfo string, handler func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()
	return "socks5://" + userinfo + ln.Addr().String()
}

// socksServer answers a greeting with method and, after optional password
// auth, replies to CONNECT with reply.
func socksServer(method byte, authOK bool, reply byte) func(net.Conn) {
	return func(conn net.Conn) {
		head := make([]byte, 2)
		if _, err := io.ReadFull(conn, head); err != nil {
			return
		}
		methods := make([]byte, head[1])
		if _, err := io.ReadFull(conn, methods); err != nil {
			return
		}
		if _, err := conn.Write([]byte{0x05, method}); err != nil {
			return
		}
		if method == 0xFF {
			return
		}
		if method == 0x02 {
			ver := make([]byte, 2)
			if _, err := io.ReadFull(conn, ver); err != nil {
				return
			}
			name := make([]byte, ver[1]+1)
			if _, err := io.ReadFull(conn, name); err != nil {
				return
			}
			pass := make([]byte, name[len(name)-1])
			if _, err := io.ReadFull(conn, pass); err != nil {
				return
			}
			status := byte(0x00)
			if !authOK {
				status = 0x01
			}
			if _, err := conn.Write([]byte{0x01, status}); err != nil || !authOK {
				return
			}
		}
		req := make([]byte, 5)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		rest := make([]byte, int(req[4])+2)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		_, _ = conn.Write([]byte{0x05, reply, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	}
}

func TestCheckProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		userinfo string
		handler  func(net.Conn)
		want     ProxyStatus
	}{
		{
			name:    "no auth proxy",
			handler: socksServer(0x00, true, 0x00),
			want:    ProxyStatusOK,
		},
		{
			name:    "connect failure reply still counts",
			handler: socksServer(0x00, true, 0x04),
			want:    ProxyStatusOK,
		},
		{
			name:     "password auth accepted",
			userinfo: "user:secret@",
			handler:  socksServer(0x02, true, 0x00),
			want:     ProxyStatusOK,
		},
		{
			name:     "password auth rejected",
			userinfo: "user:wrong@",
			handler:  socksServer(0x02, false, 0x00),
			want:     ProxyStatusAuthFailed,
		},
		{
			name:    "password required without credentials",
			handler: socksServer(0x02, true, 0x00),
			want:    ProxyStatusAuthFailed,
		},
		{
			name:    "no acceptable method",
			handler: socksServer(0xFF, true, 0x00),
			want:    ProxyStatusAuthFailed,
		},
		{
			name: "not socks",
			handler: func(conn net.Conn) {
				_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
			},
			want: ProxyStatusWrongType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			proxyURL := fakeSOCKS5(t, tt.userinfo, tt.handler)
			got := CheckProxy(context.Background(), proxyURL, 2*time.Second)
			if got != tt.want {
				t.Errorf("CheckProxy() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckProxyUnreachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if got := CheckProxy(context.Background(), "socks5://"+addr, time.Second); got != ProxyStatusCannotConnect {
		t.Errorf("CheckProxy() = %s, want cannot connect", got)
	}
}

func TestCheckProxySilent(t *testing.T) {
	t.Parallel()

	proxyURL := fakeSOCKS5(t, "", func(conn net.Conn) {
		_, _ = io.Copy(io.Discard, conn)
	})
	if got := CheckProxy(context.Background(), proxyURL, 200*time.Millisecond); got != ProxyStatusTimeout {
		t.Errorf("CheckProxy() = %s, want timeout", got)
	}
}

func TestProxyStatusErr(t *testing.T) {
	t.Parallel()

	if ProxyStatusOK.Err() != nil {
		t.Error("OK should not be an error")
	}
	if err := ProxyStatusTimeout.Err(); !errors.Is(err, ErrProxyUnusable) {
		t.Errorf("Err() = %v, want ErrProxyUnusable", err)
	}
}
