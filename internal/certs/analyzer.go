package certs

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"log/slog"

	"github.com/nao1215/electrumscan/internal/admission"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/model"
)

// Fetcher performs a TLS handshake and returns the leaf certificate.
// *electrum.Client satisfies it.
type Fetcher interface {
	PeerCertificate(ctx context.Context, host string, port int) (*x509.Certificate, error)
}

// Analyzer fetches certificates from validated peers.
type Analyzer struct {
	fetcher       Fetcher
	gate          *admission.Gate
	canonicalPort int
	logger        *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithGate sets the admission gate.
func WithGate(g *admission.Gate) Option {
	return func(a *Analyzer) {
		if g != nil {
			a.gate = g
		}
	}
}

// WithCanonicalPort sets the port treated as TLS regardless of the recorded protocol.
func WithCanonicalPort(port int) Option {
	return func(a *Analyzer) {
		a.canonicalPort = port
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Analyzer. Defaults: 100 concurrent handshakes.
func New(fetcher Fetcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		fetcher:       fetcher,
		gate:          admission.New(100),
		canonicalPort: model.CanonicalTLSPort,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Eligible reports whether peer should be examined.
func (a *Analyzer) Eligible(peer model.ValidatedPeer) bool {
	return peer.Port == a.canonicalPort || peer.Protocol == model.TransportTLS
}

// Analyze fetches certificates from every eligible peer and returns one
// record per successful handshake, in input order.
func (a *Analyzer) Analyze(ctx context.Context, peers []model.ValidatedPeer) ([]model.CertificateRecord, error) {
	targets := make([]model.ValidatedPeer, 0, len(peers))
	for _, p := range peers {
		if a.Eligible(p) {
			targets = append(targets, p)
		}
	}
	a.logger.Info("analyzing certificates", "eligible", len(targets), "skipped", len(peers)-len(targets))

	records, err := admission.Map(ctx, a.gate.Limit(), targets, a.Inspect)

	a.logger.Info("certificate analysis finished", "records", len(records))
	return records, err
}

// Inspect fetches and records the certificate of one peer.
func (a *Analyzer) Inspect(ctx context.Context, peer model.ValidatedPeer) (model.CertificateRecord, bool) {
	if err := a.gate.Acquire(ctx); err != nil {
		return model.CertificateRecord{}, false
	}
	defer a.gate.Release()

	cert, err := a.fetcher.PeerCertificate(ctx, peer.Host, peer.Port)
	if err != nil {
		a.logger.Debug("certificate fetch failed",
			"host", peer.Host, "port", peer.Port, "error", electrum.Sentinel(err))
		return model.CertificateRecord{}, false
	}
	return Record(peer.Host, peer.Port, cert), true
}

// Record reduces a certificate to a CertificateRecord.
func Record(host string, port int, cert *x509.Certificate) model.CertificateRecord {
	return model.CertificateRecord{
		Host:              host,
		Port:              port,
		FingerprintSHA256: Fingerprint(cert.Raw),
		SubjectCN:         CommonName(cert.RawSubject),
		IssuerCN:          CommonName(cert.RawIssuer),
		NotBefore:         model.StringPtr(ParseCertTime(FormatCertTime(cert.NotBefore))),
		NotAfter:          model.StringPtr(ParseCertTime(FormatCertTime(cert.NotAfter))),
	}
}

// Fingerprint returns the lower-case hex SHA-256 of der.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}
