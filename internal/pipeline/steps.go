package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/electrumscan/internal/analysis"
	"github.com/nao1215/electrumscan/internal/artifact"
	"github.com/nao1215/electrumscan/internal/certs"
	"github.com/nao1215/electrumscan/internal/crawler"
	"github.com/nao1215/electrumscan/internal/fingerprint"
	"github.com/nao1215/electrumscan/internal/model"
	"github.com/nao1215/electrumscan/internal/validator"
)

// Stage names.
const (
	StageDiscover    = "discover"
	StageValidate    = "validate"
	StageCerts       = "certs"
	StageFingerprint = "fingerprint"
	StageCluster     = "cluster"
	StageScore       = "score"
)

// withoutExcluded drops records whose host is in exclude.
func withoutExcluded[T any](records []T, exclude model.HostSet, host func(T) string) []T {
	if len(exclude) == 0 {
		return records
	}
	kept := make([]T, 0, len(records))
	for _, r := range records {
		if !exclude.Contains(host(r)) {
			kept = append(kept, r)
		}
	}
	return kept
}

// DiscoverStep crawls the peer graph from the seed and writes peers.json.
type DiscoverStep struct {
	spider   *crawler.Spider
	seedHost string
	seedPort int
	store    Store
}

// NewDiscoverStep creates a DiscoverStep.
func NewDiscoverStep(spider *crawler.Spider, seedHost string, seedPort int, store Store) *DiscoverStep {
	return &DiscoverStep{spider: spider, seedHost: seedHost, seedPort: seedPort, store: store}
}

// Name returns the step name.
func (s *DiscoverStep) Name() string { return StageDiscover }

// Produced returns the number of discovered peers.
func (s *DiscoverStep) Produced(run *model.ScanRun) int { return len(run.Peers) }

// Do runs the crawl.
func (s *DiscoverStep) Do(ctx context.Context, run *model.ScanRun) error {
	peers, err := s.spider.Crawl(ctx, s.seedHost, s.seedPort)
	run.Peers = nonNil(peers)
	if err != nil {
		return err
	}
	return saveOutput(s.store, artifact.PeersFile, run.Peers)
}

// ValidateStep handshakes with every discovered peer and writes
// online_peers.json.
type ValidateStep struct {
	validator *validator.Validator
	exclude   model.HostSet
	store     Store

	skipOnion bool
	logger    *slog.Logger
}

// NewValidateStep creates a ValidateStep. Hosts in exclude are skipped.
func NewValidateStep(v *validator.Validator, exclude model.HostSet, store Store) *ValidateStep {
	return &ValidateStep{validator: v, exclude: exclude, store: store}
}

// SkipOnionPeers drops hidden-service peers before validation. Used when no
// proxy is configured, since .onion names cannot be resolved directly.
func (s *ValidateStep) SkipOnionPeers(logger *slog.Logger) *ValidateStep {
	s.skipOnion = true
	s.logger = logger
	return s
}

// Name returns the step name.
func (s *ValidateStep) Name() string { return StageValidate }

// Produced returns the number of online peers.
func (s *ValidateStep) Produced(run *model.ScanRun) int { return len(run.Validated) }

// Do validates run.Peers, loading peers.json when discovery did not run.
func (s *ValidateStep) Do(ctx context.Context, run *model.ScanRun) error {
	if err := loadInput(s.store, artifact.PeersFile, &run.Peers); err != nil {
		return err
	}
	peers := withoutExcluded(run.Peers, s.exclude, func(p model.PeerCandidate) string { return p.Host })
	if s.skipOnion {
		reachable := make([]model.PeerCandidate, 0, len(peers))
		for _, p := range peers {
			if !model.IsOnionHost(p.Host) {
				reachable = append(reachable, p)
			}
		}
		if skipped := len(peers) - len(reachable); skipped > 0 && s.logger != nil {
			s.logger.Warn("skipping onion peers, set a SOCKS5 proxy to reach them", "count", skipped)
		}
		peers = reachable
	}

	online, err := s.validator.Validate(ctx, peers)
	run.Validated = nonNil(online)
	if err != nil {
		return err
	}
	return saveOutput(s.store, artifact.OnlinePeersFile, run.Validated)
}

// CertsStep collects certificates from TLS-capable online peers and writes
// tls_certs.json.
type CertsStep struct {
	analyzer *certs.Analyzer
	exclude  model.HostSet
	store    Store
}

// NewCertsStep creates a CertsStep.
func NewCertsStep(a *certs.Analyzer, exclude model.HostSet, store Store) *CertsStep {
	return &CertsStep{analyzer: a, exclude: exclude, store: store}
}

// Name returns the step name.
func (s *CertsStep) Name() string { return StageCerts }

// Produced returns the number of certificate records.
func (s *CertsStep) Produced(run *model.ScanRun) int { return len(run.Certificates) }

// Do inspects run.Validated, loading online_peers.json when needed.
func (s *CertsStep) Do(ctx context.Context, run *model.ScanRun) error {
	if err := loadInput(s.store, artifact.OnlinePeersFile, &run.Validated); err != nil {
		return err
	}
	peers := withoutExcluded(run.Validated, s.exclude, func(p model.ValidatedPeer) string { return p.Host })

	records, err := s.analyzer.Analyze(ctx, peers)
	run.Certificates = nonNil(records)
	if err != nil {
		return err
	}
	return saveOutput(s.store, artifact.CertificatesFile, run.Certificates)
}

// FingerprintStep probes every online peer and writes fingerprints.json.
type FingerprintStep struct {
	engine  *fingerprint.Engine
	exclude model.HostSet
	store   Store
}

// NewFingerprintStep creates a FingerprintStep.
func NewFingerprintStep(e *fingerprint.Engine, exclude model.HostSet, store Store) *FingerprintStep {
	return &FingerprintStep{engine: e, exclude: exclude, store: store}
}

// Name returns the step name.
func (s *FingerprintStep) Name() string { return StageFingerprint }

// Produced returns the number of fingerprint records.
func (s *FingerprintStep) Produced(run *model.ScanRun) int { return len(run.Fingerprints) }

// Do fingerprints run.Validated, loading online_peers.json when needed.
func (s *FingerprintStep) Do(ctx context.Context, run *model.ScanRun) error {
	if err := loadInput(s.store, artifact.OnlinePeersFile, &run.Validated); err != nil {
		return err
	}
	peers := withoutExcluded(run.Validated, s.exclude, func(p model.ValidatedPeer) string { return p.Host })

	records, err := s.engine.Fingerprint(ctx, peers)
	run.Fingerprints = nonNil(records)
	if err != nil {
		return err
	}
	return saveOutput(s.store, artifact.FingerprintsFile, run.Fingerprints)
}

// ClusterStep groups certificates three ways and fingerprints by banner,
// writing one artifact per grouping.
type ClusterStep struct {
	store  Store
	logger *slog.Logger
}

// NewClusterStep creates a ClusterStep.
func NewClusterStep(store Store, logger *slog.Logger) *ClusterStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClusterStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *ClusterStep) Name() string { return StageCluster }

// Produced returns the total number of clusters.
func (s *ClusterStep) Produced(run *model.ScanRun) int {
	c := run.CertClusters
	return len(c.ByFingerprint) + len(c.ByIssuer) + len(c.BySubject) + len(run.BehaviorClusters)
}

// Do clusters tls_certs.json and, when present, fingerprints.json.
// Certificates are required; fingerprints are optional so that the stage
// can run straight after certificate collection.
func (s *ClusterStep) Do(_ context.Context, run *model.ScanRun) error {
	if err := loadInput(s.store, artifact.CertificatesFile, &run.Certificates); err != nil {
		return err
	}
	run.CertClusters = analysis.ClusterCertificates(run.Certificates)

	outputs := []struct {
		name     string
		clusters []model.Cluster
	}{
		{artifact.FingerprintClusterFile, run.CertClusters.ByFingerprint},
		{artifact.IssuerClusterFile, run.CertClusters.ByIssuer},
		{artifact.SubjectClusterFile, run.CertClusters.BySubject},
	}
	for _, out := range outputs {
		if err := saveOutput(s.store, out.name, out.clusters); err != nil {
			return err
		}
	}

	err := loadInput(s.store, artifact.FingerprintsFile, &run.Fingerprints)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		s.logger.Warn("no fingerprints yet, skipping behavior clusters", "error", err)
		return nil
	case err != nil:
		return err
	}
	run.BehaviorClusters = analysis.ClusterBehavior(run.Fingerprints)
	return saveOutput(s.store, artifact.BehaviorClusterFile, run.BehaviorClusters)
}

// ScoreStep computes honeypot scores and writes honeypot_scores.json.
type ScoreStep struct {
	store Store
}

// NewScoreStep creates a ScoreStep.
func NewScoreStep(store Store) *ScoreStep {
	return &ScoreStep{store: store}
}

// Name returns the step name.
func (s *ScoreStep) Name() string { return StageScore }

// Produced returns the number of scored hosts.
func (s *ScoreStep) Produced(run *model.ScanRun) int { return len(run.Scores) }

// Do scores every fingerprinted host. Clusters left on the run by a
// preceding cluster step are reused, otherwise they are recomputed.
func (s *ScoreStep) Do(_ context.Context, run *model.ScanRun) error {
	if err := loadInput(s.store, artifact.FingerprintsFile, &run.Fingerprints); err != nil {
		return err
	}
	if err := loadInput(s.store, artifact.CertificatesFile, &run.Certificates); err != nil {
		return err
	}

	run.Scores = nonNil(analysis.Score(analysis.Inputs{
		Fingerprints:        run.Fingerprints,
		Certificates:        run.Certificates,
		FingerprintClusters: run.CertClusters.ByFingerprint,
		BehaviorClusters:    run.BehaviorClusters,
	}))
	return saveOutput(s.store, artifact.ScoresFile, run.Scores)
}
