package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/platoonsim/app"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/runner"
	"github.com/kilianp07/platoonsim/infra/store"
)

var historyFlags struct {
	status string
	runID  string
	since  time.Duration
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List run records from the journal",
	RunE:  runHistory,
}

var summariesFlags struct {
	traffic     string
	platoonSize int
	numPlatoons int
}

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "List stored run summaries",
	RunE:  runSummaries,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.status, "status", "", "started, finished or failed")
	f.StringVar(&historyFlags.runID, "run", "", "run id")
	f.DurationVar(&historyFlags.since, "since", 0, "only records newer than this duration")
	rootCmd.AddCommand(historyCmd)

	sf := summariesCmd.Flags()
	sf.StringVar(&summariesFlags.traffic, "traffic", "", "traffic type")
	sf.IntVar(&summariesFlags.platoonSize, "platoon-size", 0, "platoon size")
	sf.IntVar(&summariesFlags.numPlatoons, "num-platoons", 0, "number of platoons")
	rootCmd.AddCommand(summariesCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	q := runner.Query{Status: historyFlags.status, RunID: historyFlags.runID}
	if historyFlags.since > 0 {
		q.Start = time.Now().Add(-historyFlags.since)
	}
	return withService(cmd, nil, func(ctx context.Context, svc *app.Service) error {
		recs, err := svc.History(ctx, q)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "time\trun_id\tscenario\tstatus\tsteps\tduration\terror")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				r.Timestamp.Format(time.RFC3339), r.RunID, r.Scenario.Name(), r.Status,
				r.Steps, r.Duration.Round(time.Millisecond), r.Error)
		}
		return tw.Flush()
	})
}

func runSummaries(cmd *cobra.Command, _ []string) error {
	f := store.Filter{PlatoonSize: summariesFlags.platoonSize, NumPlatoons: summariesFlags.numPlatoons}
	if summariesFlags.traffic != "" {
		t, err := model.ParseTrafficType(summariesFlags.traffic)
		if err != nil {
			return err
		}
		f.Traffic = t
	}
	return withService(cmd, nil, func(ctx context.Context, svc *app.Service) error {
		sums, err := svc.Summaries(ctx, f)
		if err != nil {
			return err
		}
		printSummaries(cmd.OutOrStdout(), sums)
		return nil
	})
}
