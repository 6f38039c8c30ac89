package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArionMiles/homeplotter/internal/pipeline"
	"github.com/ArionMiles/homeplotter/internal/plugins"
	"github.com/ArionMiles/homeplotter/pkg/config"
	"github.com/ArionMiles/homeplotter/pkg/logging"
	csvreaderplugin "github.com/ArionMiles/homeplotter/pkg/plugins/readers/csv"
	csvplugin "github.com/ArionMiles/homeplotter/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/homeplotter/pkg/plugins/writers/json"
)

type command func(ctx context.Context, args []string, out io.Writer) error

var commands = map[string]command{
	"import":  runImport,
	"tags":    runTags,
	"match":   runMatch,
	"series":  runSeries,
	"summary": runSummary,
	"save":    runSave,
	"status":  runStatus,
}

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("command failed", "command", name, "error", err)
		stop()
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "homeplotter - tag, resample and summarise bank transactions")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  homeplotter <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  import    Read the configured accounts into the SQLite database")
	fmt.Fprintln(w, "  tags      Show or edit the tag hierarchy")
	fmt.Fprintln(w, "  match     Show the tags a transaction text resolves to")
	fmt.Fprintln(w, "  series    Filter the ledger and export its time series")
	fmt.Fprintln(w, "  summary   Export the monthly tag summary")
	fmt.Fprintln(w, "  save      Save the tagged ledger to a file")
	fmt.Fprintln(w, "  status    Check configuration, tag file, accounts and database")
	fmt.Fprintln(w, "  help      Show this help message")
	fmt.Fprintln(w, "\nEvery command accepts -config PATH (default: "+config.DefaultFile+").")
	fmt.Fprintln(w, "Run 'homeplotter <command> -h' for more information on a command.")
}

// app is the state shared by every command once the configuration is loaded.
type app struct {
	cfg    *config.Config
	runner *pipeline.Runner
	logger *slog.Logger
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", config.DefaultFile, "Path to the JSON or YAML configuration file")
	return fs, configPath
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	if os.Getenv("LOG_LEVEL") == "" {
		logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	}
	logger := logging.Setup(logCfg)

	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}
	logger.Debug("plugins registered",
		"readers", len(registry.ListReaders()),
		"writers", len(registry.ListWriters()),
	)

	return &app{
		cfg:    cfg,
		runner: pipeline.New(registry, logger),
		logger: logger,
	}, nil
}

func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()
	if err := registry.RegisterReader(&csvreaderplugin.Plugin{}); err != nil {
		return nil, fmt.Errorf("registering csv reader: %w", err)
	}
	if err := registry.RegisterWriter(&csvplugin.Plugin{}); err != nil {
		return nil, fmt.Errorf("registering csv writer: %w", err)
	}
	if err := registry.RegisterWriter(&jsonplugin.Plugin{}); err != nil {
		return nil, fmt.Errorf("registering json writer: %w", err)
	}
	return registry, nil
}
