package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/platoonsim/app"
	"github.com/kilianp07/platoonsim/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Generate, run and analyze the whole scenario sweep",
	RunE:  runSweep,
}

func init() {
	addRunFlags(sweepCmd)
	addAnalyzeFlags(sweepCmd)
	f := sweepCmd.Flags()
	f.StringVar(&generateFlags.net, "net", "", "SUMO network file")
	f.StringVar(&generateFlags.plan, "plan", "", "YAML sweep plan replacing the configured grid")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	mutate := func(cfg *config.Config) error {
		if err := applyGenerateFlags(cfg); err != nil {
			return err
		}
		if err := applyRunFlags(cfg); err != nil {
			return err
		}
		if err := applyAnalyzeFlags(cfg); err != nil {
			return err
		}
		// runs read what generate wrote
		cfg.Simulation.Run.ConfigDir = cfg.Scenario.OutputDir
		return nil
	}
	return withService(cmd, mutate, func(ctx context.Context, svc *app.Service) error {
		out := cmd.OutOrStdout()
		gen, genErr := svc.Generate(ctx)
		if len(gen.Files) == 0 {
			return fmt.Errorf("generate: %w", errors.Join(genErr, errors.New("no scenario generated")))
		}
		fmt.Fprintf(out, "generated %d scenarios\n", len(gen.Files))

		results, runErr := runScenarios(ctx, svc, len(gen.Files))
		printResults(out, results)
		if len(results) == 0 {
			return errors.Join(genErr, runErr)
		}

		summaries, anErr := svc.Analyze(ctx)
		printSummaries(out, summaries)
		return errors.Join(genErr, runErr, anErr)
	})
}
