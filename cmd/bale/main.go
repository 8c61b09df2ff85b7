package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/bale/internal/config"
	"github.com/bamsammich/bale/internal/state"
	"github.com/bamsammich/bale/internal/tmpfile"
	"github.com/bamsammich/bale/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose    bool
	quiet      bool
	noProgress bool
	logFile    string
	statePath  string

	cfg     config.Config
	logSink io.Closer
}

func run() int {
	g := &globalFlags{}
	rootCmd := newRootCmd(g)

	err := rootCmd.Execute()
	if g.logSink != nil {
		g.logSink.Close()
	}
	// Remove partial archives left by an interrupted run.
	tmpfile.Cleanup()

	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(g *globalFlags) *cobra.Command {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "bale",
		Short:         "Pack a directory into a compressed, checksummed, optionally encrypted archive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "bale %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.BoolVar(&g.noProgress, "no-progress", false, "disable progress display")
	pf.StringVar(&g.logFile, "log", "", "write structured JSON log to FILE")
	pf.StringVar(&g.statePath, "state", "", "archive state file (default: $XDG_DATA_HOME/bale/archives.json)")

	rootCmd.AddCommand(
		newBackupCmd(g),
		newListCmd(g),
		newShowCmd(g),
		newVerifyCmd(g),
		newDecryptCmd(g),
		newConfigCmd(g),
		newDocsCmd(),
	)
	return rootCmd
}

// setup loads the config file and configures logging. It runs before
// every subcommand.
func (g *globalFlags) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		var unknown *config.UnknownKeysError
		if !errors.As(err, &unknown) {
			return fmt.Errorf("load config: %w", err)
		}
		// Known keys were still decoded.
		defer slog.Warn("ignoring unknown config keys", "path", unknown.Path, "keys", unknown.Keys)
	}
	g.cfg = cfg

	if !cmd.Flags().Changed("state") && cfg.Defaults.StateFile != nil {
		g.statePath = expandHome(*cfg.Defaults.StateFile)
	}
	if g.statePath == "" {
		g.statePath = state.DefaultPath()
	}

	return g.setupLogging()
}

func (g *globalFlags) setupLogging() error {
	logLevel := slog.LevelWarn
	if g.verbose {
		logLevel = slog.LevelDebug
	} else if !g.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if g.logFile != "" {
		lf, err := os.Create(g.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		g.logSink = lf
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return nil
}

// logEvents forwards events to out, writing each one to the structured log
// first. It closes out when in closes.
func logEvents(in <-chan ui.Event, out chan<- ui.Event) {
	for ev := range in {
		attrs := []slog.Attr{
			slog.String("type", ev.Type.String()),
			slog.String("path", ev.Path),
			slog.Int64("size", ev.Size),
		}
		if ev.Detail != "" {
			attrs = append(attrs, slog.String("detail", ev.Detail))
		}
		if ev.Error != nil {
			attrs = append(attrs, slog.String("error", ev.Error.Error()))
		}
		slog.LogAttrs(context.Background(), slog.LevelDebug, "bale.event", attrs...)
		out <- ev
	}
	close(out)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
