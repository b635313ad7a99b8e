package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/lexisync/internal/client/cli"
	"github.com/iudanet/lexisync/internal/client/config"
	"github.com/iudanet/lexisync/internal/client/iocli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to TOML config file")
	serverURL := flag.String("server", "", "Server URL (overrides config)")
	dbPath := flag.String("db", "", "Path to local database (overrides config)")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	io := iocli.NewStdio()

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(io)
		os.Exit(1)
	}
	command := args[0]
	if command == "version" {
		printVersion()
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, logCloser, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Ctrl+C отменяет текущую команду, демон завершается штатно
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := run(ctx, cfg, logger, io, *configPath, command, args[1:])

	stop()
	if err := logCloser.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, io iocli.IO, configPath, command string, args []string) int {
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if err := cli.New(app, io, configPath).Run(ctx, command, args); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("LexiSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
