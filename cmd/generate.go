package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/platoonsim/app"
	"github.com/kilianp07/platoonsim/config"
)

var generateFlags struct {
	output string
	net    string
	plan   string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write routes, sumocfg and simpla files for the scenario sweep",
	RunE:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateFlags.output, "output", "o", "", "directory receiving the scenario files")
	f.StringVar(&generateFlags.net, "net", "", "SUMO network file")
	f.StringVar(&generateFlags.plan, "plan", "", "YAML sweep plan replacing the configured grid")
	rootCmd.AddCommand(generateCmd)
}

func applyGenerateFlags(cfg *config.Config) error {
	if generateFlags.output != "" {
		cfg.Scenario.OutputDir = generateFlags.output
		cfg.Simulation.Run.ConfigDir = generateFlags.output
	}
	if generateFlags.net != "" {
		cfg.Scenario.NetFile = generateFlags.net
	}
	if generateFlags.plan != "" {
		cfg.Scenario.PlanFile = generateFlags.plan
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	return withService(cmd, applyGenerateFlags, func(ctx context.Context, svc *app.Service) error {
		res, err := svc.Generate(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "generated %d scenarios in %s (simpla: %s)\n",
			len(res.Files), svc.Config().Scenario.OutputDir, res.Simpla)
		return err
	})
}
