package model

// CertificateRecord describes the leaf certificate presented by a TLS server.
// A host without a record either does not speak TLS or failed the handshake,
// which scoring treats as a signal of its own.
type CertificateRecord struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// FingerprintSHA256 is the lower-case hex SHA-256 of the DER certificate.
	FingerprintSHA256 string `json:"fingerprint_sha256"`

	// SubjectCN and IssuerCN are nil when the name carries no commonName.
	SubjectCN *string `json:"subject_cn"`
	IssuerCN  *string `json:"issuer_cn"`

	// NotBefore and NotAfter are ISO-8601 when the certificate time could be
	// parsed, otherwise the original text.
	NotBefore *string `json:"not_before"`
	NotAfter  *string `json:"not_after"`
}

// Address returns host:port.
func (c CertificateRecord) Address() string {
	return JoinHostPort(c.Host, c.Port)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
