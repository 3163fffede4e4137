package analysis

import (
	"fmt"
	"strings"

	"github.com/nao1215/electrumscan/internal/model"
)

// Signal tags. Cluster signals carry the cluster size as a suffix.
const (
	SignalNoCertificate     = "no_tls_certificate_detected"
	SignalUnknownIssuer     = "self_signed_or_unknown_issuer"
	SignalSuspiciousSubject = "suspicious_subject_CN"
	SignalLongValidity      = "very_long_certificate_validity"
	SignalLowLatency        = "suspicious_low_latency"
	SignalHighLatency       = "suspicious_high_latency"
	SignalNoHistory         = "cannot_serve_history"
	SignalMissingP2WPKH     = "missing_p2wpkh_support"
	SignalMissingTaproot    = "missing_taproot_support"
	signalReusedCertPrefix  = "reused_certificate_cluster_of_"
	signalBehaviorPrefix    = "identical_behavior_cluster_"
)

// Scoring weights and thresholds.
const (
	noCertificatePoints     = 20
	clusterMinSize          = 5
	reusedCertCap           = 40
	unknownIssuerPoints     = 10
	suspiciousSubjectPoints = 5
	longValidityPoints      = 15
	lowLatencyMs            = 10.0
	highLatencyMs           = 2000.0
	latencyPoints           = 10
	noHistoryPoints         = 10
	missingScriptPoints     = 3
	behaviorClusterCap      = 30
)

// longValidityYears are expiry years that indicate an unusually long-lived certificate.
var longValidityYears = []string{"2035", "2040", "2050"}

// Inputs is everything scoring reads.
type Inputs struct {
	Fingerprints []model.FingerprintRecord
	Certificates []model.CertificateRecord

	// FingerprintClusters are the certificate clusters by fingerprint.
	// They are computed from Certificates when nil.
	FingerprintClusters []model.Cluster

	// BehaviorClusters are computed from Fingerprints when nil.
	BehaviorClusters []model.Cluster
}

// Score produces one ScoreRecord per fingerprint record, in the same order.
func Score(in Inputs) []model.ScoreRecord {
	fpClusters := in.FingerprintClusters
	if fpClusters == nil {
		fpClusters = ClusterByFingerprint(in.Certificates)
	}
	behavior := in.BehaviorClusters
	if behavior == nil {
		behavior = ClusterBehavior(in.Fingerprints)
	}
	certSizes := Sizes(fpClusters)
	behaviorSizes := Sizes(behavior)

	certByHost := make(map[string]model.CertificateRecord, len(in.Certificates))
	for _, c := range in.Certificates {
		certByHost[c.Host] = c
	}

	scores := make([]model.ScoreRecord, 0, len(in.Fingerprints))
	for _, fp := range in.Fingerprints {
		total := 0
		signals := make([]string, 0)

		if cert, ok := certByHost[fp.Host]; ok {
			size, known := certSizes[cert.FingerprintSHA256]
			if !known {
				size = 1
			}
			points, sig := CertificateSignals(cert, size)
			total += points
			signals = append(signals, sig...)
		} else {
			total += noCertificatePoints
			signals = append(signals, SignalNoCertificate)
		}

		points, sig := BehaviorSignals(fp, behaviorSizes[BehaviorKey(fp)])
		total += points
		signals = append(signals, sig...)

		score := model.ClampScore(total)
		scores = append(scores, model.ScoreRecord{
			Host:          fp.Host,
			Port:          fp.Port,
			HoneypotScore: score,
			RiskLevel:     model.RiskLevelFor(score),
			Signals:       signals,
		})
	}
	return scores
}

// CertificateSignals scores a certificate whose fingerprint is shared by
// clusterSize hosts.
func CertificateSignals(cert model.CertificateRecord, clusterSize int) (int, []string) {
	points := 0
	var signals []string

	if clusterSize >= clusterMinSize {
		points += min(clusterSize*2, reusedCertCap)
		signals = append(signals, fmt.Sprintf("%s%d", signalReusedCertPrefix, clusterSize))
	}

	if issuer := model.Deref(cert.IssuerCN); issuer == "" || issuer == model.UnknownIssuer {
		points += unknownIssuerPoints
		signals = append(signals, SignalUnknownIssuer)
	}

	switch model.Deref(cert.SubjectCN) {
	case "", "localhost", model.UnknownSubject:
		points += suspiciousSubjectPoints
		signals = append(signals, SignalSuspiciousSubject)
	}

	if notAfter := model.Deref(cert.NotAfter); notAfter != "" {
		for _, year := range longValidityYears {
			if strings.Contains(notAfter, year) {
				points += longValidityPoints
				signals = append(signals, SignalLongValidity)
				break
			}
		}
	}
	return points, signals
}

// BehaviorSignals scores a fingerprint record whose banner hash is shared by
// clusterSize hosts.
func BehaviorSignals(fp model.FingerprintRecord, clusterSize int) (int, []string) {
	points := 0
	var signals []string

	if lat := fp.Result(model.ProbePing).LatencyMs; lat != nil {
		if *lat < lowLatencyMs {
			points += latencyPoints
			signals = append(signals, SignalLowLatency)
		}
		if *lat > highLatencyMs {
			points += latencyPoints
			signals = append(signals, SignalHighLatency)
		}
	}

	if !fp.Result(model.ProbeHistory).OK() {
		points += noHistoryPoints
		signals = append(signals, SignalNoHistory)
	}
	if !fp.SupportsP2WPKH {
		points += missingScriptPoints
		signals = append(signals, SignalMissingP2WPKH)
	}
	if !fp.SupportsP2TR {
		points += missingScriptPoints
		signals = append(signals, SignalMissingTaproot)
	}

	if clusterSize >= clusterMinSize {
		points += min(clusterSize*2, behaviorClusterCap)
		signals = append(signals, fmt.Sprintf("%s%d", signalBehaviorPrefix, clusterSize))
	}
	return points, signals
}
