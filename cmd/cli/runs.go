package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/wire"
)

var cancelText string

var cancelCmd = &cobra.Command{
	Use:   "cancel [run-id]",
	Short: "Cancel a pending or started run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var resetCmd = &cobra.Command{
	Use:   "reset [run-id]",
	Short: "Reset a run back to created so it can be picked up again",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	cancelCmd.Flags().StringVar(&cancelText, "text", "", "Reason shown on the run")
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(resetCmd)
}

func runCancel(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	appInstance, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() { _ = appInstance.Stop() }()

	r, err := appInstance.Runs.GetRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", args[0], err)
	}
	if err := appInstance.Manager.Cancel(ctx, r, core.CancelStaff, cancelText, "cli"); err != nil {
		return fmt.Errorf("failed to cancel run %s: %w", r.ID, err)
	}
	successColor.Printf("Run %s canceled\n", r.ID)
	return nil
}

func runReset(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	appInstance, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() { _ = appInstance.Stop() }()

	r, err := appInstance.Runs.GetRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", args[0], err)
	}
	if err := appInstance.Manager.Reset(ctx, r); err != nil {
		return fmt.Errorf("failed to reset run %s: %w", r.ID, err)
	}
	successColor.Printf("Run %s reset to %s\n", r.ID, r.Status)
	return nil
}
