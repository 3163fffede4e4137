package report

import (
	"io"
	"slices"

	"github.com/nao1215/electrumscan/internal/model"
)

// Writer renders a scan run.
type Writer interface {
	// Write renders run and returns the number of bytes written.
	Write(run *model.ScanRun) (int, error)
}

// MultiWriter writes to several Writers in turn, stopping at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders run with every writer and returns the total byte count.
func (m *MultiWriter) Write(run *model.ScanRun) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// TopScores returns up to n scores, highest first. Equal scores keep their
// input order.
func TopScores(scores []model.ScoreRecord, n int) []model.ScoreRecord {
	sorted := slices.Clone(scores)
	slices.SortStableFunc(sorted, func(a, b model.ScoreRecord) int {
		return b.HoneypotScore - a.HoneypotScore
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// SharedClusters returns the clusters with more than one member, largest
// first. Equal sizes keep their input order.
func SharedClusters(clusters []model.Cluster) []model.Cluster {
	shared := make([]model.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.Count > 1 {
			shared = append(shared, c)
		}
	}
	slices.SortStableFunc(shared, func(a, b model.Cluster) int {
		return b.Count - a.Count
	})
	return shared
}

// Biggest returns the largest cluster; the first one wins ties.
func Biggest(clusters []model.Cluster) (model.Cluster, bool) {
	if len(clusters) == 0 {
		return model.Cluster{}, false
	}
	best := clusters[0]
	for _, c := range clusters[1:] {
		if c.Count > best.Count {
			best = c
		}
	}
	return best, true
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
