// Package certs collects the leaf certificate of TLS-capable Electrum
// servers and reduces it to an identity record: the SHA-256 fingerprint of
// the DER encoding, the subject and issuer common names, and the validity
// window.
//
// Only peers on the canonical TLS port, or validated over TLS, are examined.
// Handshakes are performed without verification, so self-signed and expired
// certificates are recorded like any other. A host whose certificate cannot
// be fetched produces no record at all.
package certs
