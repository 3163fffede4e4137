// Package model defines the records exchanged between scan stages.
//
// Every stage of an Electrum network scan consumes the records of the
// previous stage and produces its own: PeerCandidate (discovery),
// ValidatedPeer (validation), CertificateRecord (TLS analysis),
// FingerprintRecord (behavioral probes), Cluster and ScoreRecord (analysis).
// The JSON tags on these types are the interchange format written to disk
// between stages, so field names must stay stable.
package model
