package analysis

import (
	"github.com/nao1215/electrumscan/internal/model"
)

// groupBy partitions items by key, keeping first-seen key order and
// first-seen member order.
func groupBy[T any](items []T, key func(T) string) ([]string, map[string][]T) {
	order := make([]string, 0)
	groups := make(map[string][]T)
	for _, item := range items {
		k := key(item)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item)
	}
	return order, groups
}

func orDefault(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

// IssuerKey returns the issuer cluster key of rec.
func IssuerKey(rec model.CertificateRecord) string {
	return orDefault(rec.IssuerCN, model.UnknownIssuer)
}

// SubjectKey returns the subject cluster key of rec.
func SubjectKey(rec model.CertificateRecord) string {
	return orDefault(rec.SubjectCN, model.UnknownSubject)
}

// BehaviorKey returns the behavior cluster key of rec: the banner response
// hash, or NoResponse when there is none.
func BehaviorKey(rec model.FingerprintRecord) string {
	return orDefault(rec.Result(model.ProbeBanner).ResponseHash, model.NoResponse)
}

func clusterCertificates(certs []model.CertificateRecord, key func(model.CertificateRecord) string) []model.Cluster {
	order, groups := groupBy(certs, key)
	clusters := make([]model.Cluster, 0, len(order))
	for _, k := range order {
		members := groups[k]
		first := members[0]
		c := model.Cluster{
			Key:       k,
			Count:     len(members),
			Hosts:     make([]string, 0, len(members)),
			Ports:     make([]int, 0, len(members)),
			Issuer:    first.IssuerCN,
			Subject:   first.SubjectCN,
			NotBefore: first.NotBefore,
			NotAfter:  first.NotAfter,
		}
		for _, m := range members {
			c.Hosts = append(c.Hosts, m.Host)
			c.Ports = append(c.Ports, m.Port)
		}
		clusters = append(clusters, c)
	}
	return clusters
}

// ClusterByFingerprint groups certificates sharing a SHA-256 fingerprint.
func ClusterByFingerprint(certs []model.CertificateRecord) []model.Cluster {
	return clusterCertificates(certs, func(r model.CertificateRecord) string { return r.FingerprintSHA256 })
}

// ClusterByIssuer groups certificates by issuer common name.
func ClusterByIssuer(certs []model.CertificateRecord) []model.Cluster {
	return clusterCertificates(certs, IssuerKey)
}

// ClusterBySubject groups certificates by subject common name.
func ClusterBySubject(certs []model.CertificateRecord) []model.Cluster {
	return clusterCertificates(certs, SubjectKey)
}

// ClusterCertificates groups certificates along all three dimensions.
func ClusterCertificates(certs []model.CertificateRecord) model.CertificateClusters {
	return model.CertificateClusters{
		ByFingerprint: ClusterByFingerprint(certs),
		ByIssuer:      ClusterByIssuer(certs),
		BySubject:     ClusterBySubject(certs),
	}
}

// ClusterBehavior groups fingerprint records by banner response hash.
// Behavior clusters carry no certificate metadata.
func ClusterBehavior(records []model.FingerprintRecord) []model.Cluster {
	order, groups := groupBy(records, BehaviorKey)
	clusters := make([]model.Cluster, 0, len(order))
	for _, k := range order {
		members := groups[k]
		c := model.Cluster{
			Key:   k,
			Count: len(members),
			Hosts: make([]string, 0, len(members)),
			Ports: make([]int, 0, len(members)),
		}
		for _, m := range members {
			c.Hosts = append(c.Hosts, m.Host)
			c.Ports = append(c.Ports, m.Port)
		}
		clusters = append(clusters, c)
	}
	return clusters
}

// Sizes maps each cluster key to its member count.
func Sizes(clusters []model.Cluster) map[string]int {
	sizes := make(map[string]int, len(clusters))
	for _, c := range clusters {
		sizes[c.Key] = c.Count
	}
	return sizes
}
