package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/platoonsim/app"
	"github.com/kilianp07/platoonsim/config"
)

var mappingFlags struct {
	output string
	gui    bool
}

var mappingCmd = &cobra.Command{
	Use:   "mapping <sumocfg>",
	Short: "Record the incoming lane and edge of every traffic light link",
	Args:  cobra.ExactArgs(1),
	RunE:  runMapping,
}

func init() {
	f := mappingCmd.Flags()
	f.StringVarP(&mappingFlags.output, "output", "o", "", "mapping file (default signals.mapping_file)")
	f.BoolVar(&mappingFlags.gui, "gui", false, "use sumo-gui instead of sumo")
	rootCmd.AddCommand(mappingCmd)
}

func runMapping(cmd *cobra.Command, args []string) error {
	mutate := func(cfg *config.Config) error {
		if mappingFlags.output != "" {
			cfg.Signals.MappingFile = mappingFlags.output
		}
		if mappingFlags.gui {
			cfg.Simulation.SUMO.GUI = true
		}
		return nil
	}
	return withService(cmd, mutate, func(ctx context.Context, svc *app.Service) error {
		m, err := svc.BuildMapping(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mapped %d traffic lights to %s\n", len(m), svc.Config().Signals.MappingFile)
		return nil
	})
}
