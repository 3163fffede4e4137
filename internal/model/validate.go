package model

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord is returned when a record read from an artifact does not
// satisfy its schema.
var ErrInvalidRecord = errors.New("invalid record")

// FingerprintHexLen is the length of a hex-encoded SHA-256 digest.
const FingerprintHexLen = 64

func validHostPort(host string, port int) error {
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidRecord)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s: port %d out of range", ErrInvalidRecord, host, port)
	}
	return nil
}

// Validate checks the candidate's host and advertised ports.
func (p PeerCandidate) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidRecord)
	}
	for _, port := range []*int{p.SSLPort, p.TCPPort} {
		if port != nil && (*port < 1 || *port > 65535) {
			return fmt.Errorf("%w: %s: port %d out of range", ErrInvalidRecord, p.Host, *port)
		}
	}
	return nil
}

// Validate checks host, port and protocol.
func (v ValidatedPeer) Validate() error {
	if err := validHostPort(v.Host, v.Port); err != nil {
		return err
	}
	if v.Protocol != TransportTLS && v.Protocol != TransportPlain {
		return fmt.Errorf("%w: %s: unknown protocol %q", ErrInvalidRecord, v.Address(), v.Protocol)
	}
	return nil
}

// Validate checks host, port and fingerprint encoding.
func (c CertificateRecord) Validate() error {
	if err := validHostPort(c.Host, c.Port); err != nil {
		return err
	}
	if !IsFingerprintHex(c.FingerprintSHA256) {
		return fmt.Errorf("%w: %s: fingerprint %q is not 64 lower-case hex characters",
			ErrInvalidRecord, c.Address(), c.FingerprintSHA256)
	}
	return nil
}

// Validate checks host and port.
func (f FingerprintRecord) Validate() error {
	return validHostPort(f.Host, f.Port)
}

// IsFingerprintHex reports whether s is a lower-case hex SHA-256 digest.
func IsFingerprintHex(s string) bool {
	if len(s) != FingerprintHexLen {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Validate checks that the member lists agree with the count.
func (c Cluster) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("%w: cluster with empty key", ErrInvalidRecord)
	}
	if c.Count != len(c.Hosts) || len(c.Hosts) != len(c.Ports) {
		return fmt.Errorf("%w: cluster %s: count %d with %d hosts and %d ports",
			ErrInvalidRecord, c.Key, c.Count, len(c.Hosts), len(c.Ports))
	}
	return nil
}

// Validate checks the score range and that the risk level matches it.
func (s ScoreRecord) Validate() error {
	if err := validHostPort(s.Host, s.Port); err != nil {
		return err
	}
	if s.HoneypotScore != ClampScore(s.HoneypotScore) {
		return fmt.Errorf("%w: %s: score %d out of range", ErrInvalidRecord, s.Address(), s.HoneypotScore)
	}
	if s.RiskLevel != RiskLevelFor(s.HoneypotScore) {
		return fmt.Errorf("%w: %s: risk level %s does not match score %d",
			ErrInvalidRecord, s.Address(), s.RiskLevel, s.HoneypotScore)
	}
	return nil
}
