package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/electrumscan/internal/model"
)

// JSONWriter emits the scores of a run with run metadata.
type JSONWriter struct {
	baseWriter
	version string
	indent  bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents the output by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// NewJSONWriter creates a JSONWriter. version is recorded in the output.
func NewJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output), version: version}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document JSONWriter writes.
type JSONReport struct {
	Version    string                  `json:"version"`
	Seed       string                  `json:"seed,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	Stages     []string                `json:"stages"`
	RiskCounts map[model.RiskLevel]int `json:"risk_counts"`
	Scores     []model.ScoreRecord     `json:"scores"`
}

// Write emits run as a JSONReport.
func (w *JSONWriter) Write(run *model.ScanRun) (int, error) {
	scores := run.Scores
	if scores == nil {
		scores = []model.ScoreRecord{}
	}
	doc := JSONReport{
		Version:    w.version,
		Seed:       run.Seed,
		StartedAt:  run.StartedAt,
		Stages:     run.PerformedStages,
		RiskCounts: run.RiskCounts(),
		Scores:     scores,
	}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	return w.output.Write(append(data, '\n'))
}
