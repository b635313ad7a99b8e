package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/template"

	"github.com/iudanet/lexisync/internal/client/iocli"
)

// ErrUsage indicates wrong command arguments
var ErrUsage = errors.New("invalid usage")

type Cli struct {
	app        *App
	io         iocli.IO
	configPath string
	// signals переопределяет источник SIGUSR1 в тестах
	signals chan os.Signal
}

func New(app *App, io iocli.IO, configPath string) *Cli {
	return &Cli{
		app:        app,
		io:         io,
		configPath: configPath,
	}
}

// Run dispatches a command
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "sync":
		return c.runSync(ctx, false)
	case "quick-sync":
		return c.runSync(ctx, true)
	case "status":
		return c.runStatus(ctx)
	case "daemon":
		return c.runDaemon(ctx)
	case "diagnostics":
		return c.runDiagnostics(ctx)
	case "export-logs":
		return c.runExportLogs(ctx, args)
	case "put":
		return c.runPut(ctx, args)
	case "get":
		return c.runGet(ctx, args)
	case "list":
		return c.runList(ctx, args)
	case "delete":
		return c.runDelete(ctx, args)
	case "alerts":
		return c.runAlerts(ctx)
	case "resolve-alert":
		return c.runResolveAlert(ctx, args)
	case "recover":
		return c.runRecover(ctx, args)
	case "reviews":
		return c.runReviews(ctx)
	case "resolve-review":
		return c.runResolveReview(ctx, args)
	case "dead-letters":
		return c.runDeadLetters(ctx)
	case "requeue":
		return c.runRequeue(ctx, args)
	case "reset":
		return c.runReset(ctx)
	default:
		c.PrintUsage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, command)
	}
}

// PrintUsage prints the command reference
func (c *Cli) PrintUsage() {
	PrintUsage(c.io)
}

// PrintUsage prints the command reference to io
func PrintUsage(io iocli.IO) {
	io.Printf("%s", usageTemplate)
}

func (c *Cli) render(name, text string, data any) error {
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	if err := tmpl.Execute(c.io, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}

func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("%w: lexisync %s", ErrUsage, usage)
	}
	return nil
}
