package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/platoonsim/app"
	"github.com/kilianp07/platoonsim/config"
	"github.com/kilianp07/platoonsim/core/model"
)

var analyzeFlags struct {
	input    string
	noCharts bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize run outputs and write the sweep table and charts",
	RunE:  runAnalyze,
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeFlags.input, "input", "i", "", "directory holding the run directories")
	rootCmd.AddCommand(analyzeCmd)
}

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&analyzeFlags.noCharts, "no-charts", false, "skip the HTML charts")
}

func applyAnalyzeFlags(cfg *config.Config) error {
	if analyzeFlags.input != "" {
		cfg.Analysis.InputDir = analyzeFlags.input
	}
	if analyzeFlags.noCharts {
		cfg.Analysis.SkipCharts = true
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	return withService(cmd, applyAnalyzeFlags, func(ctx context.Context, svc *app.Service) error {
		summaries, err := svc.Analyze(ctx)
		printSummaries(cmd.OutOrStdout(), summaries)
		return err
	})
}

var summaryColumns = []string{
	model.KeyAverageDensity,
	model.KeyAverageFlow,
	model.KeyAverageSpeed,
	model.KeyAveragePlatoonHeadway,
	model.KeyFuelEfficiencyGain,
}

func printSummaries(w io.Writer, summaries []model.Summary) {
	if len(summaries) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "scenario\tsteps")
	for _, c := range summaryColumns {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprintln(tw)
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d", s.Scenario.Name(), s.Steps)
		for _, c := range summaryColumns {
			v, ok := s.Values[c]
			if !ok || math.IsNaN(v) {
				fmt.Fprint(tw, "\t-")
				continue
			}
			fmt.Fprintf(tw, "\t%.4f", v)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}
