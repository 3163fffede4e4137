package model

import (
	"fmt"
	"strings"
)

// Well-known Electrum ports.
const (
	// CanonicalTLSPort is the conventional Electrum TLS port.
	CanonicalTLSPort = 50002

	// PlaintextPort is the conventional Electrum plaintext TCP port.
	// Plaintext fallback always targets this port.
	PlaintextPort = 50001
)

// Transport identifies how a connection to a server was established.
type Transport string

const (
	// TransportTLS is a TLS-wrapped TCP connection.
	TransportTLS Transport = "tls"

	// TransportPlain is a plaintext TCP connection.
	TransportPlain Transport = "plain"
)

// String returns the transport name.
func (t Transport) String() string {
	return string(t)
}

// UnmarshalText accepts the canonical names as well as the "ssl"/"tcp"
// aliases used by older artifacts.
func (t *Transport) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "tls", "ssl":
		*t = TransportTLS
	case "plain", "tcp":
		*t = TransportPlain
	case "":
		*t = ""
	default:
		return fmt.Errorf("unknown transport %q", string(text))
	}
	return nil
}

// TransportForPort reports the transport a stage assumes for a port:
// TLS for the canonical TLS port, plaintext otherwise.
func TransportForPort(port int) Transport {
	if port == CanonicalTLSPort {
		return TransportTLS
	}
	return TransportPlain
}
