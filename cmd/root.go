package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/platoonsim/app"
	"github.com/kilianp07/platoonsim/config"
	"github.com/kilianp07/platoonsim/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "platoonsim",
	Short: "Truck platoon scenario generation, SUMO batch runs and analysis",
	Long: `platoonsim generates SUMO scenarios for a truck platoon sweep, runs them
over TraCI with platoon management and platoon-aware signal control, and
turns the per-run CSV outputs into summaries and charts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration. A missing file is only an error when
// --config was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.LoadOptional(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withService loads the configuration, applies the flag overrides in
// mutate, and runs fn with a service that is closed afterwards. ctx is
// canceled on SIGINT or SIGTERM.
func withService(cmd *cobra.Command, mutate func(*config.Config) error, fn func(ctx context.Context, svc *app.Service) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if mutate != nil {
		if err := mutate(cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return fn(ctx, svc)
}
