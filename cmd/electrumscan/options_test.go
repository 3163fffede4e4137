package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/electrumscan/internal/config"
	"github.com/spf13/cobra"
)

// parsedCommand returns the named subcommand with args parsed.
func parsedCommand(t *testing.T, name string, args ...string) *cobra.Command {
	t.Helper()

	root := NewRootCmd()
	cmd, _, err := root.Find([]string{name})
	if err != nil {
		t.Fatalf("find %s: %v", name, err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("file values apply and flags override them", func(t *testing.T) {
		t.Parallel()

		path := writeConfigFile(t, `
seed: file.example:50002
timeout: 9s
concurrency: 10
exclude:
  - bad.example
`)
		cmd := parsedCommand(t, "discover",
			"--config", path,
			"--timeout", "2s",
			"--exclude", "worse.example",
		)
		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("buildConfig: %v", err)
		}
		if cfg.Seed != "file.example:50002" {
			t.Errorf("Seed = %q, want file value", cfg.Seed)
		}
		if cfg.Timeout != 2*time.Second {
			t.Errorf("Timeout = %v, want flag value 2s", cfg.Timeout)
		}
		if cfg.Concurrency != 10 {
			t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
		}
		if len(cfg.Exclude) != 2 {
			t.Errorf("Exclude = %v, want file and flag hosts", cfg.Exclude)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("ConfigFilePath = %q", cfg.ConfigFilePath)
		}
	})

	t.Run("defaults when nothing is set", func(t *testing.T) {
		t.Parallel()

		cmd := parsedCommand(t, "score", "--config", writeConfigFile(t, ""))
		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("buildConfig: %v", err)
		}
		if cfg.Seed != config.DefaultSeed || cfg.MaxDepth != config.DefaultMaxDepth {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
		if !cfg.SaveToDB {
			t.Error("SaveToDB should default to true")
		}
	})

	t.Run("score report flags", func(t *testing.T) {
		t.Parallel()

		cmd := parsedCommand(t, "score",
			"--config", writeConfigFile(t, ""),
			"--save=false",
			"--markdown", "out.md",
		)
		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("buildConfig: %v", err)
		}
		if cfg.SaveToDB {
			t.Error("--save=false was ignored")
		}
		if cfg.MarkdownFile != "out.md" {
			t.Errorf("MarkdownFile = %q", cfg.MarkdownFile)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := parsedCommand(t, "discover", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("invalid flag value", func(t *testing.T) {
		t.Parallel()

		cmd := parsedCommand(t, "discover",
			"--config", writeConfigFile(t, ""),
			"--history-query", "bogus",
		)
		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrInvalidHistoryQuery) {
			t.Errorf("error = %v, want ErrInvalidHistoryQuery", err)
		}
	})

	t.Run("unknown key in file", func(t *testing.T) {
		t.Parallel()

		cmd := parsedCommand(t, "discover", "--config", writeConfigFile(t, "sites: {}\n"))
		if _, err := buildConfig(cmd); err == nil {
			t.Error("expected error for unknown key")
		}
	})
}
