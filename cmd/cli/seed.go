package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/integrator/internal/config"
	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/wire"
)

var seedCatalogPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reconcile the YAML connector catalog into the database",
	Long: `Reconcile the YAML connector catalog into the database.

Connectors are matched by adapter code: existing rows are updated in place
so their jobs stay attached, new ones are inserted. Connector-default file
actions from the catalog are upserted alongside.

Examples:
  integrator-cli seed
  integrator-cli seed --catalog deploy/catalog.yaml`,
	RunE: runSeed,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	seedCmd.Flags().StringVar(&seedCatalogPath, "catalog", "", "Catalog path (defaults to CATALOG_PATH)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	appInstance, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() { _ = appInstance.Stop() }()

	path := seedCatalogPath
	if path == "" {
		path = appInstance.Cfg.CatalogPath
	}

	cat, err := config.LoadCatalog(path)
	if err != nil {
		return err
	}

	titleColor.Printf("Seeding %d connectors from %s\n", len(cat.Connectors), path)

	now := time.Now().UTC()
	var actions int
	for _, entry := range cat.Connectors {
		conn, err := catalogConnector(entry, now)
		if err != nil {
			return err
		}
		if err := appInstance.Jobs.UpsertConnector(ctx, conn); err != nil {
			return fmt.Errorf("connector %q: %w", entry.Name, err)
		}

		// The upsert keeps an existing row id, reload to get the real one.
		row, err := appInstance.Jobs.GetConnectorByAdapterCode(ctx, entry.AdapterCode)
		if err != nil {
			return fmt.Errorf("connector %q: %w", entry.Name, err)
		}

		for _, fa := range entry.FileActions {
			action, err := catalogFileAction(entry, fa, row.ID, now)
			if err != nil {
				return err
			}
			if err := appInstance.Jobs.UpsertFileAction(ctx, action); err != nil {
				return fmt.Errorf("connector %q: file action %s: %w", entry.Name, fa.DocumentType, err)
			}
			actions++
		}

		if entry.Enabled {
			successColor.Printf("   %s (%s)\n", entry.Name, entry.AdapterCode)
		} else {
			dimColor.Printf("   %s (%s, disabled)\n", entry.Name, entry.AdapterCode)
		}
	}

	successColor.Printf("Done: %d connectors, %d file actions\n", len(cat.Connectors), actions)
	return nil
}

func catalogConnector(entry config.CatalogConnector, now time.Time) (*core.Connector, error) {
	caps := make(core.CapabilityList, 0, len(entry.Capabilities))
	for _, s := range entry.Capabilities {
		c := core.Capability(s)
		if !c.Valid() {
			return nil, fmt.Errorf("connector %q: unknown capability %q", entry.Name, s)
		}
		caps = append(caps, c)
	}

	return &core.Connector{
		ID:               core.NewID(core.PrefixConnector),
		Name:             entry.Name,
		AdapterCode:      entry.AdapterCode,
		Type:             core.ConnectorType(entry.Type),
		Capabilities:     caps,
		Enabled:          entry.Enabled,
		CustomProps:      core.PropMap(entry.CustomProps),
		FrequencyDays:    entry.FrequencyDays,
		LoginURLEditable: entry.LoginURLEditable,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func catalogFileAction(entry config.CatalogConnector, fa config.CatalogFileAction, connectorID string, now time.Time) (*core.FileDiscoveryAction, error) {
	action := core.FileAction(fa.Action)
	switch action {
	case core.ActionNone, core.ActionPiqUpload, core.ActionPiqEDIUpload, core.ActionPaymentsEDIUpld:
	default:
		return nil, fmt.Errorf("connector %q: unknown file action %q", entry.Name, fa.Action)
	}

	return &core.FileDiscoveryAction{
		ID:           core.NewID(core.PrefixAction),
		ConnectorID:  connectorID,
		DocumentType: core.DocumentType(fa.DocumentType),
		Action:       action,
		CreatedAt:    now,
	}, nil
}
