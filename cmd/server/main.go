package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/lexisync/internal/server"
	"github.com/iudanet/lexisync/internal/server/config"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to TOML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "Path to server database (overrides config)")
	issueToken := flag.String("issue-token", "", "Print a client token for the given user and exit")
	deviceID := flag.String("device", "", "Device id embedded into the issued token")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Address = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := run(ctx, cfg, logger, *issueToken, *deviceID)

	stop()
	if err := logCloser.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, tokenUser, deviceID string) int {
	srv, err := server.New(ctx, cfg, logger, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("failed to close server", "error", err)
		}
	}()

	if tokenUser != "" {
		token, expiresAt, err := srv.IssueToken(tokenUser, deviceID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
		return 0
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("LexiSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
