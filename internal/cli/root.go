package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storyflow/internal/config"
	"storyflow/internal/logging"
	"storyflow/internal/output"
)

// ExecuteResult is the outcome of a CLI run.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var storiesPath, dbPath string

	root := &cobra.Command{
		Use:   "storyflow",
		Short: "Lifecycle status for stories moving through the delivery pipeline",
		Long: `storyflow computes the displayed status of every pipeline stage of a story
from its snapshot and event log, and dispatches operator recovery actions.

Stages: triage → plan → deliberation → implement → test → review → deploy → release`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if storiesPath != "" {
				app.Config.Snapshots.Path = storiesPath
			}
			if dbPath != "" {
				app.Config.Store.Path = dbPath
			}
			app.Printer.SetOptions(output.Options{
				ShowActions:  app.Config.Output.ShowActions,
				ShowSubsteps: app.Config.Output.ShowSubsteps,
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&storiesPath, "stories", "", "stories file (overrides snapshots.path)")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "event database (overrides store.path)")

	root.AddCommand(
		newStatusCommand(app),
		newWatchCommand(app),
		newServeCommand(app),
		newActCommand(app),
		newEventsCommand(app),
		newTemplatesCommand(app),
	)
	return root
}

// RunWithConfig runs the CLI with args. A nil cfg loads configuration from
// the usual locations.
func RunWithConfig(cfg *config.Config, args []string, stdout, stderr io.Writer) ExecuteResult {
	if cfg == nil {
		loaded, err := config.NewLoader().Load()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExecuteResult{ExitCode: 1, Err: err}
		}
		cfg = loaded
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	defer func() { _ = logger.Sync() }()

	app := NewApp(cfg)
	app.Printer = output.NewPrinterWithWriter(stdout)
	app.Logger = logger
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, app, args, stdout, stderr)
}

func run(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) ExecuteResult {
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{}
}

// Execute runs the CLI against the process arguments and exits.
func Execute() {
	result := RunWithConfig(nil, os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(result.ExitCode)
}

// fail prints err and converts it to an exit code 1.
func fail(app *App, err error) error {
	app.Printer.Error(err)
	return NewExitError(1)
}
