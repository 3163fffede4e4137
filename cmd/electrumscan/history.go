package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/electrumscan/internal/database"
	"github.com/nao1215/electrumscan/internal/model"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved scan runs",
		Long: `History lists the runs saved by score and run, newest first.

Examples:
  electrumscan history
  electrumscan history --limit 5`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}
	cmd.Flags().IntP("limit", "l", 20, "Maximum number of runs to list (0 = all)")
	return cmd
}

// openHistory opens an existing history database.
func openHistory(cmd *cobra.Command) (*database.HistoryDB, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	newLogger(cfg, cmd.ErrOrStderr())

	db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No saved runs found.")
		fmt.Fprintln(out, "\nUse 'electrumscan run' or 'electrumscan score' to create one.")
		return nil
	}

	fmt.Fprintf(out, "Saved runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-7s  %s\n", "ID", "Date", "Servers", "Risk")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-7d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Total,
			formatRiskCounts(r),
		)
	}
	fmt.Fprintln(out, "\nUse 'electrumscan compare' to compare the latest two runs.")
	return nil
}

func formatRiskCounts(r database.RunSummary) string {
	if r.Total == 0 {
		return "no servers"
	}
	return fmt.Sprintf("H:%d M:%d L:%d", r.High, r.Medium, r.Low)
}

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the latest two saved runs",
		Long: `Compare shows servers whose honeypot score or risk level changed between
the two most recent saved runs, and servers that appeared or disappeared.

Examples:
  electrumscan compare
  electrumscan compare --json`,
		Args: cobra.NoArgs,
		RunE: runCompareCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Output the comparison as JSON")
	return cmd
}

func runCompareCmd(cmd *cobra.Command, _ []string) error {
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	cmp, err := db.CompareLatest(cmd.Context())
	if errors.Is(err, database.ErrNoRuns) {
		return fmt.Errorf("%w; use 'electrumscan history' to list saved runs", err)
	}
	if err != nil {
		return err
	}

	if jsonOut {
		return writeComparisonJSON(cmd.OutOrStdout(), cmp)
	}
	writeComparisonText(cmd.OutOrStdout(), cmp)
	return nil
}

// Constants for the direction of a change.
const (
	directionWorsened = "worsened"
	directionImproved = "improved"
	directionNew      = "new"
	directionGone     = "gone"
)

func direction(c database.ScoreChange) string {
	switch {
	case c.Before == nil:
		return directionNew
	case c.After == nil:
		return directionGone
	case c.Delta() > 0:
		return directionWorsened
	default:
		return directionImproved
	}
}

func riskOf(s *model.ScoreRecord) string {
	if s == nil {
		return "-"
	}
	return string(s.RiskLevel)
}

func scoreOf(s *model.ScoreRecord) string {
	if s == nil {
		return "-"
	}
	return strconv.Itoa(s.HoneypotScore)
}

func writeComparisonText(w io.Writer, cmp *database.Comparison) {
	layout := "2006-01-02 15:04:05"
	fmt.Fprintf(w, "Comparing run %d (%s) with run %d (%s)\n\n",
		cmp.Previous.ID, cmp.Previous.StartedAt.Local().Format(layout),
		cmp.Latest.ID, cmp.Latest.StartedAt.Local().Format(layout))

	fmt.Fprintf(w, "HIGH %d -> %d, MEDIUM %d -> %d, LOW %d -> %d\n\n",
		cmp.Previous.High, cmp.Latest.High,
		cmp.Previous.Medium, cmp.Latest.Medium,
		cmp.Previous.Low, cmp.Latest.Low)

	if len(cmp.Changes) == 0 {
		fmt.Fprintf(w, "No changes (%d servers unchanged).\n", cmp.Unchanged)
		return
	}

	fmt.Fprintf(w, "  %-40s  %-9s  %-11s  %s\n", "Server", "Change", "Score", "Risk")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 80))
	for _, c := range cmp.Changes {
		fmt.Fprintf(w, "  %-40s  %-9s  %-11s  %s\n",
			c.Address(),
			direction(c),
			scoreOf(c.Before)+" -> "+scoreOf(c.After),
			riskOf(c.Before)+" -> "+riskOf(c.After),
		)
	}
	fmt.Fprintf(w, "\n%d changed, %d unchanged\n", len(cmp.Changes), cmp.Unchanged)
}

// comparisonJSON is the JSON form of a comparison.
type comparisonJSON struct {
	PreviousRun int64          `json:"previous_run"`
	LatestRun   int64          `json:"latest_run"`
	Unchanged   int            `json:"unchanged"`
	Changes     []changeJSON   `json:"changes"`
	RiskCounts  map[string]int `json:"latest_risk_counts"`
}

type changeJSON struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Direction  string   `json:"direction"`
	Delta      int      `json:"delta"`
	ScoreFrom  *int     `json:"score_from"`
	ScoreTo    *int     `json:"score_to"`
	RiskFrom   string   `json:"risk_from,omitempty"`
	RiskTo     string   `json:"risk_to,omitempty"`
	NewSignals []string `json:"new_signals,omitempty"`
}

func writeComparisonJSON(w io.Writer, cmp *database.Comparison) error {
	doc := comparisonJSON{
		PreviousRun: cmp.Previous.ID,
		LatestRun:   cmp.Latest.ID,
		Unchanged:   cmp.Unchanged,
		Changes:     make([]changeJSON, 0, len(cmp.Changes)),
		RiskCounts: map[string]int{
			string(model.RiskHigh):   cmp.Latest.High,
			string(model.RiskMedium): cmp.Latest.Medium,
			string(model.RiskLow):    cmp.Latest.Low,
		},
	}
	for _, c := range cmp.Changes {
		cj := changeJSON{
			Host:       c.Host,
			Port:       c.Port,
			Direction:  direction(c),
			Delta:      c.Delta(),
			NewSignals: newSignals(c),
		}
		if c.Before != nil {
			cj.ScoreFrom = &c.Before.HoneypotScore
			cj.RiskFrom = string(c.Before.RiskLevel)
		}
		if c.After != nil {
			cj.ScoreTo = &c.After.HoneypotScore
			cj.RiskTo = string(c.After.RiskLevel)
		}
		doc.Changes = append(doc.Changes, cj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// newSignals returns the signals present after but not before.
func newSignals(c database.ScoreChange) []string {
	if c.After == nil {
		return nil
	}
	seen := make(map[string]struct{})
	if c.Before != nil {
		for _, s := range c.Before.Signals {
			seen[s] = struct{}{}
		}
	}
	var added []string
	for _, s := range c.After.Signals {
		if _, ok := seen[s]; !ok {
			added = append(added, s)
		}
	}
	return added
}
