// Package artifact reads and writes the JSON files stages exchange.
//
// Every artifact is a JSON array of records, written with two-space
// indentation. Loading validates each record; a missing or unreadable file
// is fatal for the stage that needs it.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Default artifact file names.
const (
	PeersFile              = "peers.json"
	OnlinePeersFile        = "online_peers.json"
	CertificatesFile       = "tls_certs.json"
	FingerprintsFile       = "fingerprints.json"
	FingerprintClusterFile = "tls_clusters_fingerprint.json"
	IssuerClusterFile      = "tls_clusters_issuer.json"
	SubjectClusterFile     = "tls_clusters_subject.json"
	BehaviorClusterFile    = "behavior_clusters.json"
	ScoresFile             = "honeypot_scores.json"
)

var (
	// ErrNotFound is returned when an input artifact does not exist.
	ErrNotFound = errors.New("artifact not found")
	// ErrCorrupt is returned when an artifact cannot be decoded or holds an invalid record.
	ErrCorrupt = errors.New("artifact is corrupt")
)

// Record is a record type that can check its own schema.
type Record interface {
	Validate() error
}

// Path joins dir and name.
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}

// Save writes records to path as an indented JSON array, creating parent
// directories as needed. A nil slice is written as [].
func Save[T any](path string, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads a JSON array of records from path and validates each one.
func Load[T Record](path string) ([]T, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: record %d: %w", ErrCorrupt, path, i, err)
		}
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}
