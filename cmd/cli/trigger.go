package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/wire"
)

var (
	triggerCapability       string
	triggerVia              string
	triggerDryRun           bool
	triggerStartDate        string
	triggerEndDate          string
	triggerSuppressInvoices bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [job-id]",
	Short: "Create and dispatch a run for a job",
	Long: `Create and dispatch a run for a job, subject to the same creation
policies the control loop applies. A run the policy rejects (duplicate
pending work, nothing new to do) is reported, not forced.

Examples:
  integrator-cli trigger job_4c21d9 --capability invoice.download
  integrator-cli trigger job_4c21d9 --capability internal.web_login --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	triggerCmd.Flags().StringVarP(&triggerCapability, "capability", "c", "", "Capability to run (required)")
	triggerCmd.Flags().StringVar(&triggerVia, "via", string(core.ViaAdmin), "Request origin, admin or customer")
	triggerCmd.Flags().BoolVar(&triggerDryRun, "dry-run", false, "Verify credentials only")
	triggerCmd.Flags().StringVar(&triggerStartDate, "start-date", "", "Override the window start (YYYY-MM-DD)")
	triggerCmd.Flags().StringVar(&triggerEndDate, "end-date", "", "Override the window end (YYYY-MM-DD)")
	triggerCmd.Flags().BoolVar(&triggerSuppressInvoices, "suppress-invoices", false, "Download without creating downstream invoices")
	_ = triggerCmd.MarkFlagRequired("capability")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	jobID := args[0]

	capability := core.Capability(triggerCapability)
	if !capability.Valid() {
		return fmt.Errorf("unknown capability %q", triggerCapability)
	}
	via := core.CreatedVia(triggerVia)
	if via != core.ViaAdmin && via != core.ViaCustomer {
		return fmt.Errorf("via must be admin or customer, got %q", triggerVia)
	}

	appInstance, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() { _ = appInstance.Stop() }()

	job, err := appInstance.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	r, err := appInstance.Factory.CreateRun(ctx, job, capability, via, factory.Options{
		StartDate:        triggerStartDate,
		EndDate:          triggerEndDate,
		SuppressInvoices: triggerSuppressInvoices,
		DryRun:           triggerDryRun,
	})
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	if r == nil {
		warnColor.Printf("No run created: creation policy declined %s for %s\n", capability, jobID)
		return nil
	}

	if err := appInstance.Submitter.ExecuteAsync(ctx, r, job); err != nil {
		return fmt.Errorf("failed to dispatch run %s: %w", r.ID, err)
	}

	successColor.Printf("Run %s created and dispatched\n", r.ID)
	dimColor.Printf("   capability: %s\n", r.Capability)
	if r.IsManual {
		warnColor.Println("   manual connector: the run awaits an operator")
	}
	return nil
}
