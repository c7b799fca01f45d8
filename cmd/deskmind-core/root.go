// Package main is the deskmind-core CLI: a thin cobra-based exercise of the
// pkg/core façade (ingest, search, topic/document CRUD, a single chat turn,
// token stats), grounded on the prior art's cmd/root/root.go entry point —
// kept to persistent debug/log-file flags and logging setup, since the
// docker-cli-plugin registration, OpenTelemetry init, and Docker Desktop
// gateway flows it also carries have no equivalent in a standalone core
// library.
package main

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskmind/core/pkg/logging"
	"github.com/deskmind/core/pkg/paths"
)

type rootFlags struct {
	debugMode   bool
	logFilePath string
	dbPath      string
	configPath  string
	logFile     io.Closer
}

func (f *rootFlags) setupLogging() error {
	if !f.debugMode {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
		return nil
	}

	path := cmp.Or(strings.TrimSpace(f.logFilePath), filepath.Join(paths.GetDataDir(), "deskmind-core.debug.log"))

	logFile, err := logging.NewRotatingFile(path)
	if err != nil {
		return err
	}
	f.logFile = logFile

	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "deskmind-core",
		Short: "deskmind-core - RAG and multi-agent orchestration core",
		Long:  "deskmind-core is a command-line harness for the ingestion, retrieval, orchestration, and token-accounting core of a desktop conversational AI app.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.setupLogging(); err != nil {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo})))
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				return flags.logFile.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: <data dir>/deskmind-core.debug.log; only used with --debug)")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", filepath.Join(paths.GetDataDir(), "deskmind.db"), "Path to the SQLite database backing the vector store, catalog, and token ledger")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML configuration file (defaults merge over the built-in configuration)")

	cmd.AddCommand(newIngestCmd(flags))
	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newTopicCmd(flags))
	cmd.AddCommand(newDocCmd(flags))
	cmd.AddCommand(newAskCmd(flags))
	cmd.AddCommand(newTokensCmd(flags))
	cmd.AddCommand(newCompactCmd(flags))

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("deskmind-core: " + err.Error())
		os.Exit(1)
	}
}
