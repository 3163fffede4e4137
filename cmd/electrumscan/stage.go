package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/nao1215/electrumscan/internal/artifact"
	"github.com/nao1215/electrumscan/internal/config"
	"github.com/nao1215/electrumscan/internal/database"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/log"
	"github.com/nao1215/electrumscan/internal/metrics"
	"github.com/nao1215/electrumscan/internal/model"
	"github.com/nao1215/electrumscan/internal/pipeline"
	"github.com/nao1215/electrumscan/internal/report"
	"github.com/spf13/cobra"
)

// stageInfo describes a single-stage command.
type stageInfo struct {
	name   string
	short  string
	long   string
	output string
}

var stageInfos = []stageInfo{
	{
		name:   pipeline.StageDiscover,
		short:  "Crawl the peer network from the seed server",
		long:   "Discover asks the seed for its peer list and follows TLS-capable peers breadth-first up to --depth levels.",
		output: artifact.PeersFile,
	},
	{
		name:   pipeline.StageValidate,
		short:  "Check which discovered peers answer server.version",
		long:   "Validate connects to every discovered peer, TLS first with plaintext fallback on port 50001, and keeps those that answer.",
		output: artifact.OnlinePeersFile,
	},
	{
		name:   pipeline.StageCerts,
		short:  "Collect TLS certificates of validated peers",
		long:   "Certs performs a TLS handshake with every TLS-capable validated peer and records its leaf certificate.",
		output: artifact.CertificatesFile,
	},
	{
		name:   pipeline.StageFingerprint,
		short:  "Run the behavioral probe battery against validated peers",
		long:   "Fingerprint issues six probes per server, each on its own connection, and records latency, errors and response hashes.",
		output: artifact.FingerprintsFile,
	},
	{
		name:   pipeline.StageCluster,
		short:  "Group certificates and behavior into clusters",
		long:   "Cluster groups certificates by fingerprint, issuer and subject, and fingerprints by banner response.",
		output: artifact.FingerprintClusterFile,
	},
	{
		name:   pipeline.StageScore,
		short:  "Score every fingerprinted server for honeypot signals",
		long:   "Score combines certificate and behavior signals into a 0-100 honeypot score per server.",
		output: artifact.ScoresFile,
	},
}

// stageCommands returns one command per pipeline stage.
func stageCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(stageInfos))
	for _, info := range stageInfos {
		cmd := &cobra.Command{
			Use:   info.name,
			Short: info.short,
			Long:  info.long + "\n\nOutput: <output-dir>/" + info.output,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runStages(cmd, []string{info.name})
			},
		}
		if info.name == pipeline.StageScore {
			addReportFlags(cmd)
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flow of stages",
		Long: `Run executes several stages in order, passing records in memory and
writing every artifact on the way.

Flows:
  network   discover, validate, certs
  analysis  fingerprint, cluster, score (reads online_peers.json and tls_certs.json)
  all       every stage

Examples:
  # Full scan
  electrumscan run

  # Re-analyze the last network scan through Tor
  electrumscan run --flow analysis --proxy socks5://127.0.0.1:9050`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := cmd.Flags().GetString("flow")
			if err != nil {
				return err
			}
			flow, err := pipeline.ParseFlow(name)
			if err != nil {
				return err
			}
			return runStages(cmd, flow.Stages())
		},
	}
	cmd.Flags().String("flow", string(pipeline.FlowAll), "Flow to run: network, analysis or all")
	addReportFlags(cmd)
	return cmd
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("save", true, "Save scores to the scan history database")
	cmd.Flags().StringP("markdown", "m", "", "Write a Markdown report to this file")
	cmd.Flags().BoolP("json", "j", false, "Print the scores as JSON instead of the summary")
}

// runStages executes stages with the configuration built from cmd and
// prints the summaries.
func runStages(cmd *cobra.Command, stages []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Proxy != "" && usesNetwork(stages) {
		if err := electrum.CheckProxy(ctx, cfg.Proxy, cfg.Timeout).Err(); err != nil {
			return fmt.Errorf("proxy %s: %w", log.SanitizeString(cfg.Proxy), err)
		}
	}

	reg := metrics.New()
	tk, err := pipeline.NewToolkit(cfg,
		pipeline.WithToolkitLogger(logger),
		pipeline.WithToolkitMetrics(reg),
	)
	if err != nil {
		return err
	}
	p, err := tk.Pipeline(stages, pipeline.WithMetrics(reg))
	if err != nil {
		return err
	}

	logger.Info("starting scan",
		"seed", cfg.Seed,
		"stages", stages,
		"outputDir", cfg.OutputDir,
		"proxy", cfg.Proxy,
	)

	out := cmd.OutOrStdout()
	run := model.NewScanRun(cfg.Seed)
	start := time.Now()
	execErr := p.Execute(ctx, run)

	if cfg.MetricsFile != "" {
		if err := writeMetrics(reg, cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
	if execErr != nil {
		return fmt.Errorf("scan failed: %w", execErr)
	}

	jsonOut := false
	if cmd.Flags().Lookup("json") != nil {
		if jsonOut, err = cmd.Flags().GetBool("json"); err != nil {
			return err
		}
	}
	if !jsonOut {
		printStageSummary(out, cfg, run)
		fmt.Fprintf(out, "Finished in %s\n\n", time.Since(start).Round(time.Millisecond))
	}

	return writeReports(ctx, cmd, cfg, run, jsonOut, logger)
}

// usesNetwork reports whether any stage contacts servers.
func usesNetwork(stages []string) bool {
	return slices.ContainsFunc(stages, func(s string) bool {
		return s != pipeline.StageCluster && s != pipeline.StageScore
	})
}

// printStageSummary prints one line per performed stage.
func printStageSummary(w io.Writer, cfg *config.Config, run *model.ScanRun) {
	for _, stage := range run.PerformedStages {
		var line string
		switch stage {
		case pipeline.StageDiscover:
			line = fmt.Sprintf("Discovered %d peers", len(run.Peers))
		case pipeline.StageValidate:
			line = fmt.Sprintf("Validated %d of %d peers", len(run.Validated), len(run.Peers))
		case pipeline.StageCerts:
			line = fmt.Sprintf("Collected %d certificates", len(run.Certificates))
		case pipeline.StageFingerprint:
			line = fmt.Sprintf("Fingerprinted %d servers", len(run.Fingerprints))
		case pipeline.StageCluster:
			line = fmt.Sprintf("Built %d certificate clusters", len(run.CertClusters.ByFingerprint))
		case pipeline.StageScore:
			line = fmt.Sprintf("Scored %d servers", len(run.Scores))
		default:
			continue
		}
		fmt.Fprintf(w, "[+] %s -> %s\n", line, filepath.Join(cfg.OutputDir, outputFile(stage)))
	}
}

func outputFile(stage string) string {
	for _, info := range stageInfos {
		if info.name == stage {
			return info.output
		}
	}
	return ""
}

// writeReports prints the console or JSON summary and, after scoring,
// writes the Markdown report and saves the run to the history database.
func writeReports(ctx context.Context, cmd *cobra.Command, cfg *config.Config, run *model.ScanRun, jsonOut bool, logger *slog.Logger) error {
	out := cmd.OutOrStdout()

	if jsonOut {
		if _, err := report.NewJSONWriter(out, getVersion(), report.WithPrettyPrint()).Write(run); err != nil {
			return fmt.Errorf("failed to write JSON report: %w", err)
		}
	} else if _, err := report.NewSimpleWriter(out, report.WithTopN(cfg.TopN)).Write(run); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if !slices.Contains(run.PerformedStages, pipeline.StageScore) {
		return nil
	}

	if cfg.MarkdownFile != "" {
		if err := writeMarkdown(cfg, run); err != nil {
			return err
		}
		if !jsonOut {
			fmt.Fprintf(out, "\nMarkdown report written to %s\n", cfg.MarkdownFile)
		}
	}

	if cfg.SaveToDB {
		id, err := saveRun(ctx, cfg.DBDir, run)
		if err != nil {
			// Artifacts are already written.
			logger.Error("failed to save scan history", "dir", cfg.DBDir, "error", err)
			return nil
		}
		logger.Info("scan saved to history", "run", id, "dir", cfg.DBDir)
	}
	return nil
}

func writeMarkdown(cfg *config.Config, run *model.ScanRun) error {
	if dir := filepath.Dir(cfg.MarkdownFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.MarkdownFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if _, err := report.NewMarkdownWriter(f, cfg.TopN).Write(run); err != nil {
		return fmt.Errorf("failed to write Markdown report: %w", err)
	}
	return nil
}

func saveRun(ctx context.Context, dbDir string, run *model.ScanRun) (int64, error) {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return db.SaveRun(ctx, run)
}

func writeMetrics(reg *metrics.Registry, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}
	return reg.WriteTextfile(path)
}
