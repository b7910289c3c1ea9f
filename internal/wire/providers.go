package wire

import (
	"log/slog"
	"os"

	"github.com/google/wire"

	"github.com/sevigo/integrator/internal/app"
	"github.com/sevigo/integrator/internal/config"
	"github.com/sevigo/integrator/internal/logger"
)

var AppSet = wire.NewSet(
	app.NewApp,
	config.LoadConfig,
	provideLogger,
)

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.FromLevel(cfg.LogLevel, cfg.LogFormat, os.Stdout)
}
