package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/electrumscan/internal/config"
	"github.com/nao1215/electrumscan/internal/log"
	"github.com/spf13/cobra"
)

// buildConfig layers defaults, the settings file and explicitly set flags,
// in that order, and validates the result.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	found := config.FindConfigFile(path)
	switch {
	case found != "":
		file, err := config.LoadConfigFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		file.Apply(cfg)
		cfg.ConfigFilePath = found
	case path != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
	}

	if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}
	if cfg.JSONLogs, err = flags.GetBool("json-logs"); err != nil {
		return nil, err
	}
	if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// applyFlags copies only the flags the user set, so file values survive
// flag defaults.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var errs []error
	set := func(name string, apply func() error) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			errs = append(errs, apply())
		}
	}

	set("seed", func() (err error) { cfg.Seed, err = flags.GetString("seed"); return })
	set("timeout", func() (err error) { cfg.Timeout, err = flags.GetDuration("timeout"); return })
	set("tls-timeout", func() (err error) { cfg.TLSTimeout, err = flags.GetDuration("tls-timeout"); return })
	set("concurrency", func() (err error) { cfg.Concurrency, err = flags.GetInt("concurrency"); return })
	set("tls-concurrency", func() (err error) { cfg.TLSConcurrency, err = flags.GetInt("tls-concurrency"); return })
	set("depth", func() (err error) { cfg.MaxDepth, err = flags.GetInt("depth"); return })
	set("client-name", func() (err error) { cfg.ClientName, err = flags.GetString("client-name"); return })
	set("protocol-version", func() (err error) { cfg.ProtocolVersion, err = flags.GetString("protocol-version"); return })
	set("history-query", func() (err error) { cfg.HistoryQuery, err = flags.GetString("history-query"); return })
	set("proxy", func() (err error) { cfg.Proxy, err = flags.GetString("proxy"); return })
	set("rate", func() (err error) { cfg.Rate, err = flags.GetFloat64("rate"); return })
	set("output-dir", func() (err error) { cfg.OutputDir, err = flags.GetString("output-dir"); return })
	set("top", func() (err error) { cfg.TopN, err = flags.GetInt("top"); return })
	set("db-dir", func() (err error) { cfg.DBDir, err = flags.GetString("db-dir"); return })
	set("exclude", func() error {
		hosts, err := flags.GetStringSlice("exclude")
		cfg.Exclude = append(cfg.Exclude, hosts...)
		return err
	})
	set("markdown", func() (err error) { cfg.MarkdownFile, err = flags.GetString("markdown"); return })
	set("save", func() (err error) { cfg.SaveToDB, err = flags.GetBool("save"); return })

	return errors.Join(errs...)
}

// newLogger builds the sanitizing logger for cfg and installs it as the default.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var logger *slog.Logger
	if cfg.JSONLogs {
		logger = log.NewJSONLogger(w, cfg.Verbose)
	} else {
		logger = log.NewLogger(w, cfg.Verbose)
	}
	slog.SetDefault(logger)
	return logger
}
