package main

import (
	"github.com/sevigo/integrator/internal/app"
	"github.com/sevigo/integrator/internal/core"
)

// Indicates that the core application services have been initialized.
type appInitializedMsg struct {
	app *app.App
	err error
}

// Carries a fresh snapshot of the in-flight runs.
type runsLoadedMsg struct {
	runs []*core.Run
	err  error
}

// Reports the outcome of a cancel, reset or trigger issued from the UI.
type runActionMsg struct {
	text string
	err  error
}

// Fires the periodic refresh of the run list.
type refreshMsg struct{}

// A generic error message for reporting failures from commands.
type errorMsg struct{ err error }

func (e errorMsg) Error() string {
	return e.err.Error()
}
