package main

import (
	"fmt"
	"os"

	"github.com/nao1215/electrumscan/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for electrumscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "electrumscan",
		Short: "Map the Electrum server network and score honeypot suspects",
		Long: `electrumscan crawls the Electrum peer network from a seed server, checks which
peers answer, collects their TLS certificates, fingerprints their behavior
and scores each server for honeypot signals.

Every stage writes a JSON artifact to the output directory and reads the
artifacts of earlier stages, so stages can be run one at a time or as a flow.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.BoolP("verbose", "v", false, "Enable verbose logging")
	f.Bool("json-logs", false, "Write logs as JSON")
	f.StringP("config", "c", "",
		"Configuration file path (default: .electrumscan in current or home directory)")

	f.StringP("seed", "s", config.DefaultSeed, "Bootstrap server as host:port")
	f.DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each connect, write and read")
	f.Duration("tls-timeout", config.DefaultTLSTimeout, "Timeout for TLS certificate collection")
	f.IntP("concurrency", "n", config.DefaultConcurrency, "Maximum concurrent connections")
	f.Int("tls-concurrency", config.DefaultTLSConcurrency, "Maximum concurrent TLS handshakes")
	f.IntP("depth", "d", config.DefaultMaxDepth, "Maximum crawl depth")
	f.String("client-name", config.DefaultClientName, "Client name sent with server.version")
	f.String("protocol-version", config.DefaultProtocolVersion, "Protocol version sent with server.version")
	f.String("history-query", config.HistoryQueryAddress, "History probe method: address or scripthash")
	f.String("proxy", "", "Route connections through a SOCKS5 proxy (e.g. socks5://127.0.0.1:9050)")
	f.Float64("rate", 0, "Maximum new connections per second (0 = unlimited)")
	f.StringSlice("exclude", nil, "Hosts that are never contacted")
	f.StringP("output-dir", "o", config.DefaultOutputDir, "Directory for stage artifacts")
	f.Int("top", config.DefaultTopN, "Number of servers listed in the score summary")
	f.String("metrics-file", "", "Write Prometheus metrics to this file when finished")
	f.String("db-dir", config.XDGDataDir(), "Directory of the scan history database")

	for _, stage := range stageCommands() {
		cmd.AddCommand(stage)
	}
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
