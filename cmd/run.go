package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/platoonsim/app"
	"github.com/kilianp07/platoonsim/config"
	"github.com/kilianp07/platoonsim/core/runner"
	"github.com/kilianp07/platoonsim/infra/logger"
	"github.com/kilianp07/platoonsim/internal/tui"
)

var runFlags struct {
	gui       bool
	tui       bool
	maxSteps  int
	parallel  int
	configDir string
	outputDir string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every generated scenario through SUMO and write the per-run metrics",
	RunE:  runRun,
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&runFlags.gui, "gui", false, "use sumo-gui instead of sumo")
	f.BoolVar(&runFlags.tui, "tui", false, "show live progress in the terminal")
	f.IntVar(&runFlags.maxSteps, "max-steps", 0, "simulation steps per run")
	f.IntVar(&runFlags.parallel, "parallel", 0, "number of simulators running at once")
	f.StringVar(&runFlags.outputDir, "output-dir", "", "directory receiving one sub-directory per run")
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&runFlags.configDir, "config-dir", "", "directory holding the sumocfg files")
	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(cfg *config.Config) error {
	if runFlags.gui {
		cfg.Simulation.SUMO.GUI = true
	}
	if runFlags.maxSteps > 0 {
		cfg.Simulation.Run.MaxSteps = runFlags.maxSteps
	}
	if runFlags.parallel > 0 {
		cfg.Simulation.Run.MaxParallel = runFlags.parallel
	}
	if runFlags.configDir != "" {
		cfg.Simulation.Run.ConfigDir = runFlags.configDir
	}
	if runFlags.outputDir != "" {
		cfg.Simulation.Run.OutputDir = runFlags.outputDir
		cfg.Analysis.InputDir = runFlags.outputDir
	}
	if runFlags.tui && cfg.Logging.File == "" {
		// keep the board readable
		cfg.Logging.Level = "error"
	}
	return nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	return withService(cmd, applyRunFlags, func(ctx context.Context, svc *app.Service) error {
		results, err := runScenarios(ctx, svc, 0)
		printResults(cmd.OutOrStdout(), results)
		return err
	})
}

// runScenarios runs the config directory, behind the progress board when
// --tui is set. total sizes the board; zero counts the sumocfg files.
func runScenarios(ctx context.Context, svc *app.Service, total int) ([]runner.Result, error) {
	if !runFlags.tui {
		return svc.Run(ctx)
	}
	if total == 0 {
		jobs, err := runner.Discover(svc.Config().Simulation.Run.ConfigDir, logger.NopLogger{})
		if err != nil {
			return nil, err
		}
		total = len(jobs)
	}
	var results []runner.Result
	err := tui.Run(ctx, svc.Bus(), total, func(ctx context.Context) error {
		var err error
		results, err = svc.Run(ctx)
		return err
	})
	return results, err
}

func printResults(w io.Writer, results []runner.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%-32s %6d steps %10s  %s\n", r.Scenario.Name(), r.Steps, r.Duration.Round(time.Millisecond), r.Dir)
	}
}
