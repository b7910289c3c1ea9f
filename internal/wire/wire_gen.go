// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"

	"github.com/sevigo/integrator/internal/app"
	"github.com/sevigo/integrator/internal/config"
)

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	slogLogger := provideLogger(cfg)
	application, err := app.NewApp(ctx, cfg, slogLogger)
	if err != nil {
		return nil, err
	}
	return application, nil
}
