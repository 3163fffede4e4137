package electrum

import (
	"crypto/tls"
	"net"
)

// PermissiveTLSConfig returns the TLS settings used for every handshake.
// Certificates are collected, not trusted: verification is off, TLS 1.0 is
// accepted and the insecure cipher suites are offered alongside the normal
// ones so that old servers still complete a handshake.
func PermissiveTLSConfig() *tls.Config {
	suites := make([]uint16, 0, len(tls.CipherSuites())+len(tls.InsecureCipherSuites()))
	for _, s := range tls.CipherSuites() {
		suites = append(suites, s.ID)
	}
	for _, s := range tls.InsecureCipherSuites() {
		suites = append(suites, s.ID)
	}
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // servers use self-signed certificates; identity is recorded, not verified
		MinVersion:         tls.VersionTLS10,
		CipherSuites:       suites,
	}
}

// tlsConfigFor clones base and sets the SNI name for host.
func tlsConfigFor(base *tls.Config, host string) *tls.Config {
	cfg := base.Clone()
	if net.ParseIP(host) == nil {
		cfg.ServerName = host
	}
	return cfg
}
