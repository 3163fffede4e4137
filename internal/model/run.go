package model

import (
	"time"
)

// CertificateClusters groups certificate records along each dimension.
type CertificateClusters struct {
	ByFingerprint []Cluster
	ByIssuer      []Cluster
	BySubject     []Cluster
}

// ScanRun carries the records of one scan as stages fill them in.
// A stage reads the fields produced by earlier stages and writes its own.
type ScanRun struct {
	// StartedAt is when the run began.
	StartedAt time.Time

	// Seed is the bootstrap server as host:port.
	Seed string

	Peers        []PeerCandidate
	Validated    []ValidatedPeer
	Certificates []CertificateRecord
	Fingerprints []FingerprintRecord

	CertClusters     CertificateClusters
	BehaviorClusters []Cluster

	Scores []ScoreRecord

	// PerformedStages lists the stages that ran, in order.
	PerformedStages []string
}

// NewScanRun creates an empty run seeded from seed.
func NewScanRun(seed string) *ScanRun {
	return &ScanRun{
		StartedAt:       time.Now(),
		Seed:            seed,
		PerformedStages: make([]string, 0),
	}
}

// RiskCounts returns the number of scores per risk level.
func (r *ScanRun) RiskCounts() map[RiskLevel]int {
	counts := map[RiskLevel]int{
		RiskLow:    0,
		RiskMedium: 0,
		RiskHigh:   0,
	}
	for _, s := range r.Scores {
		counts[s.RiskLevel]++
	}
	return counts
}
