package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/wire"
)

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [run-id]",
	Short: "Execute a single run in-process",
	Long: `Execute a single run in-process, the same code path a batch worker follows.

The run must already exist in a non-terminal state. The command connects to
the database, resolves the run's adapter and drives it to completion,
recording the outcome on the run.

Examples:
  integrator-cli crawl run_0b5a8f`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	runID := args[0]

	appInstance, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() { _ = appInstance.Stop() }()

	titleColor.Printf("Executing run %s\n", runID)
	start := time.Now()

	execErr := appInstance.Engine.Execute(ctx, runID)

	r, err := appInstance.Runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to reload run: %w", err)
	}

	dimColor.Printf("   elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	switch {
	case execErr != nil:
		errorColor.Printf("   status: %s\n", r.Status)
		return fmt.Errorf("run execution failed: %w", execErr)
	case r.Status == core.RunSucceeded:
		successColor.Printf("   status: %s\n", r.Status)
	default:
		warnColor.Printf("   status: %s\n", r.Status)
	}
	return nil
}
