package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/compound-floodrisk/sfincs-batch/internal/config"
	"github.com/compound-floodrisk/sfincs-batch/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded status of every scenario run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.RequireScenarioTable(); err != nil {
			return err
		}
		statuses, err := pipeline.Statuses(cmd.Context(), pipeline.CSVSource{Path: cfg.ScenarioTable},
			pipeline.Options{ModelDir: cfg.ModelDir, Suffixes: cfg.Suffixes})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTATE\tEXIT\tDURATION\tERROR")
		for _, st := range statuses {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				st.Scenario.Dir(), st.State, st.ExitCode, st.Duration().Round(time.Second), st.Error)
		}
		return tw.Flush()
	},
}
