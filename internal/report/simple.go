package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/electrumscan/internal/model"
)

// Console summary limits.
const (
	DefaultTopN         = 20
	signalsPerHost      = 5
	membersPerCluster   = 5
	membersOfBiggestTLS = 20
)

// SimpleWriter prints plain-text summaries for the terminal.
type SimpleWriter struct {
	baseWriter

	// topN is the number of hosts in the top suspected list.
	topN int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithTopN sets how many hosts the score summary lists.
func WithTopN(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		if n > 0 {
			w.topN = n
		}
	}
}

// NewSimpleWriter creates a SimpleWriter.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		topN:       DefaultTopN,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write prints the cluster summaries when the run holds clusters and the
// score summary when it holds scores.
func (w *SimpleWriter) Write(run *model.ScanRun) (int, error) {
	var sb strings.Builder

	if clusters := run.CertClusters; clusters.ByFingerprint != nil {
		w.writeClusters(&sb, "FINGERPRINT", clusters.ByFingerprint)
		w.writeClusters(&sb, "ISSUER", clusters.ByIssuer)
		w.writeClusters(&sb, "SUBJECT", clusters.BySubject)
		w.writeBiggest(&sb, clusters.ByFingerprint)
	}
	if run.BehaviorClusters != nil {
		w.writeClusters(&sb, "BEHAVIOR", run.BehaviorClusters)
	}
	if run.Scores != nil {
		w.writeScores(&sb, run)
	}

	return io.WriteString(w.output, sb.String())
}

func banner(sb *strings.Builder, title string) {
	rule := strings.Repeat("=", 35)
	sb.WriteString("\n" + rule + "\n")
	fmt.Fprintf(sb, "%*s\n", (len(rule)+len(title))/2, title)
	sb.WriteString(rule + "\n\n")
}

func (w *SimpleWriter) writeClusters(sb *strings.Builder, dimension string, clusters []model.Cluster) {
	banner(sb, dimension+" CLUSTERS")

	shared := SharedClusters(clusters)
	if len(shared) == 0 {
		sb.WriteString("No shared clusters.\n")
		return
	}
	for _, c := range shared {
		fmt.Fprintf(sb, "[+] Cluster '%s' -> %d servers\n", c.Key, c.Count)
		members := c.Members()
		for _, m := range members[:min(len(members), membersPerCluster)] {
			fmt.Fprintf(sb, "    - %s\n", m)
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeBiggest(sb *strings.Builder, byFingerprint []model.Cluster) {
	biggest, ok := Biggest(byFingerprint)
	if !ok {
		return
	}
	banner(sb, "BIGGEST TLS CLUSTER")
	fmt.Fprintf(sb, "Fingerprint: %s\n", biggest.Key)
	fmt.Fprintf(sb, "Servers: %d\n\n", biggest.Count)
	members := biggest.Members()
	for _, m := range members[:min(len(members), membersOfBiggestTLS)] {
		fmt.Fprintf(sb, " - %s\n", m)
	}
}

func (w *SimpleWriter) writeScores(sb *strings.Builder, run *model.ScanRun) {
	banner(sb, "TOP SUSPECTED")

	top := TopScores(run.Scores, w.topN)
	if len(top) == 0 {
		sb.WriteString("No servers scored.\n")
		return
	}
	for _, s := range top {
		fmt.Fprintf(sb, "%s -> score %d (%s)\n", s.Address(), s.HoneypotScore, s.RiskLevel)
		for _, sig := range s.Signals[:min(len(s.Signals), signalsPerHost)] {
			fmt.Fprintf(sb, "   - %s\n", sig)
		}
		sb.WriteString("\n")
	}

	counts := run.RiskCounts()
	fmt.Fprintf(sb, "Scored %d servers: %d HIGH, %d MEDIUM, %d LOW\n",
		len(run.Scores), counts[model.RiskHigh], counts[model.RiskMedium], counts[model.RiskLow])
}
