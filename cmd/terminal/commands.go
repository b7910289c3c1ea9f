package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sevigo/integrator/internal/app"
	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/wire"
)

const refreshInterval = 10 * time.Second

func initializeAppCmd() tea.Cmd {
	return func() tea.Msg {
		appInstance, err := wire.InitializeApp(context.Background())
		if err != nil {
			return appInitializedMsg{err: err}
		}
		return appInitializedMsg{app: appInstance}
	}
}

func loadRunsCmd(a *app.App) tea.Cmd {
	return func() tea.Msg {
		runs, err := a.Runs.ListNonTerminal(context.Background())
		return runsLoadedMsg{runs: runs, err: err}
	}
}

func refreshTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func cancelRunCmd(a *app.App, runID, text string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		r, err := a.Runs.GetRun(ctx, runID)
		if err != nil {
			return runActionMsg{err: err}
		}
		if err := a.Manager.Cancel(ctx, r, core.CancelStaff, text, "terminal"); err != nil {
			return runActionMsg{err: err}
		}
		return runActionMsg{text: fmt.Sprintf("run %s canceled", runID)}
	}
}

func resetRunCmd(a *app.App, runID string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		r, err := a.Runs.GetRun(ctx, runID)
		if err != nil {
			return runActionMsg{err: err}
		}
		if err := a.Manager.Reset(ctx, r); err != nil {
			return runActionMsg{err: err}
		}
		return runActionMsg{text: fmt.Sprintf("run %s reset", runID)}
	}
}

func triggerRunCmd(a *app.App, jobID string, capability core.Capability) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		job, err := a.Jobs.GetJob(ctx, jobID)
		if err != nil {
			return runActionMsg{err: err}
		}
		r, err := a.Factory.CreateRun(ctx, job, capability, core.ViaAdmin, factory.Options{})
		if err != nil {
			return runActionMsg{err: err}
		}
		if r == nil {
			return runActionMsg{text: fmt.Sprintf("creation policy declined %s for %s", capability, jobID)}
		}
		if err := a.Submitter.ExecuteAsync(ctx, r, job); err != nil {
			return runActionMsg{err: err}
		}
		return runActionMsg{text: fmt.Sprintf("run %s created and dispatched", r.ID)}
	}
}
