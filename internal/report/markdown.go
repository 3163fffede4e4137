package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/electrumscan/internal/model"
)

// MarkdownWriter renders a scan run as a Markdown document with a risk
// summary, the top suspected servers and the shared clusters.
type MarkdownWriter struct {
	baseWriter
	topN int
}

// NewMarkdownWriter creates a MarkdownWriter listing topN servers.
func NewMarkdownWriter(output io.Writer, topN int) *MarkdownWriter {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &MarkdownWriter{baseWriter: newBaseWriter(output), topN: topN}
}

// Write renders run.
func (w *MarkdownWriter) Write(run *model.ScanRun) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeRiskSummary(md, run)
	w.writeTopServers(md, run)
	w.writeClusters(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.ScanRun) {
	md.H1("Electrum Server Honeypot Report")
	md.PlainText("")

	stages := "-"
	if len(run.PerformedStages) > 0 {
		stages = strings.Join(run.PerformedStages, " → ")
	}
	seed := "-"
	if run.Seed != "" {
		seed = "`" + run.Seed + "`"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", seed},
			{"Scan Date", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Stages", stages},
			{"Servers Scored", strconv.Itoa(len(run.Scores))},
			{"Certificates", strconv.Itoa(len(run.Certificates))},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeRiskSummary(md *markdown.Markdown, run *model.ScanRun) {
	md.H2("Risk Summary")
	md.PlainText("")

	counts := run.RiskCounts()
	md.Table(markdown.TableSet{
		Header: []string{"Risk", "Servers"},
		Rows: [][]string{
			{"🔴 HIGH", strconv.Itoa(counts[model.RiskHigh])},
			{"🟡 MEDIUM", strconv.Itoa(counts[model.RiskMedium])},
			{"🟢 LOW", strconv.Itoa(counts[model.RiskLow])},
			{"**Total**", "**" + strconv.Itoa(len(run.Scores)) + "**"},
		},
	})
	md.PlainText("")

	if len(run.Scores) > 0 {
		w.writePieChart(md, counts)
	}

	switch {
	case counts[model.RiskHigh] > 0:
		md.Cautionf("%d server(s) look like honeypots or surveillance nodes. Avoid connecting wallets to them.",
			counts[model.RiskHigh])
	case counts[model.RiskMedium] > 0:
		md.Warningf("%d server(s) show several suspicious signals.", counts[model.RiskMedium])
	case len(run.Scores) > 0:
		md.Tip("No server scored above LOW.")
	default:
		md.Note("No servers were scored in this run.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.RiskLevel]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Risk Distribution"),
		piechart.WithShowData(true),
	)
	for _, level := range []model.RiskLevel{model.RiskHigh, model.RiskMedium, model.RiskLow} {
		if counts[level] > 0 {
			chart.LabelAndIntValue(string(level), uint64(counts[level]))
		}
	}
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeTopServers(md *markdown.Markdown, run *model.ScanRun) {
	md.H2("Top Suspected Servers")
	md.PlainText("")

	top := TopScores(run.Scores, w.topN)
	if len(top) == 0 {
		md.PlainText("No servers scored.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(top))
	for i, s := range top {
		signals := s.Signals[:min(len(s.Signals), signalsPerHost)]
		rows[i] = []string{
			"`" + s.Host + "`",
			strconv.Itoa(s.Port),
			strconv.Itoa(s.HoneypotScore),
			string(s.RiskLevel),
			orDash(strings.Join(signals, ", ")),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Host", "Port", "Score", "Risk", "Signals"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeClusters(md *markdown.Markdown, run *model.ScanRun) {
	sections := []struct {
		title    string
		clusters []model.Cluster
	}{
		{"Shared Certificates", run.CertClusters.ByFingerprint},
		{"Shared Issuers", run.CertClusters.ByIssuer},
		{"Shared Subjects", run.CertClusters.BySubject},
		{"Identical Behavior", run.BehaviorClusters},
	}

	md.H2("Clusters")
	md.PlainText("")
	written := false
	for _, sec := range sections {
		shared := SharedClusters(sec.clusters)
		if len(shared) == 0 {
			continue
		}
		written = true
		md.H3(sec.title)
		md.PlainText("")
		rows := make([][]string, len(shared))
		for i, c := range shared {
			members := c.Members()
			rows[i] = []string{
				"`" + truncateString(c.Key, 24) + "`",
				strconv.Itoa(c.Count),
				strings.Join(members[:min(len(members), membersPerCluster)], ", "),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Key", "Servers", "Members"},
			Rows:   rows,
		})
		md.PlainText("")
	}
	if !written {
		md.PlainText("No clusters with more than one server.")
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [electrumscan](https://github.com/nao1215/electrumscan)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
