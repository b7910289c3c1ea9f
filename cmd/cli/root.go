package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	databaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "integrator-cli",
	Short: "integrator-cli is the command-line interface for the integrator service.",
	Long:  `A CLI for operating the integrator: seeding the connector catalog, triggering and cancelling runs, and executing a single run the way a batch worker does.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&databaseURL, "database-url", "d", "", "Postgres DSN")

	if err := viper.BindPFlag("DATABASE_URL", rootCmd.PersistentFlags().Lookup("database-url")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
