package model

import (
	"encoding/json"
	"net"
	"strconv"
)

// PeerCandidate is a server advertised in some node's peer list.
// It is produced by the crawler and never modified afterwards.
type PeerCandidate struct {
	// Host is the address the peer advertised (IP, hostname or onion address).
	Host string `json:"host"`

	// SSLPort is the TLS port from an "s" feature tag, if any.
	SSLPort *int `json:"ssl"`

	// TCPPort is the plaintext port from a "t" feature tag, if any.
	TCPPort *int `json:"tcp"`

	// Raw is the peer-list entry exactly as received.
	Raw json.RawMessage `json:"raw"`
}

// HasTLS reports whether the peer advertised a TLS port.
func (p PeerCandidate) HasTLS() bool {
	return p.SSLPort != nil
}

// DialPort returns the port used to contact the peer: the TLS port if
// advertised, else the plaintext port, else PlaintextPort.
func (p PeerCandidate) DialPort() int {
	if p.SSLPort != nil {
		return *p.SSLPort
	}
	if p.TCPPort != nil {
		return *p.TCPPort
	}
	return PlaintextPort
}

// ValidatedPeer is a server that completed the version+banner handshake.
type ValidatedPeer struct {
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Protocol   Transport `json:"protocol"`
	LatencyMs  float64   `json:"latency_ms"`
	VersionRaw string    `json:"version_raw"`
	BannerRaw  string    `json:"banner_raw"`
}

// Address returns host:port.
func (v ValidatedPeer) Address() string {
	return JoinHostPort(v.Host, v.Port)
}

// JoinHostPort formats a host and numeric port as host:port.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
