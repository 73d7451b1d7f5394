package cmd

import (
	"context"

	"github.com/relloyd/odsync/actions"
	"github.com/spf13/cobra"
)

var (
	scheduleCron    string
	scheduleOptions = actions.DagOptions{}
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the DAG periodically on a cron schedule",
	Long: `Run the DAG periodically on a cron schedule until interrupted.
Only one run happens at a time: a tick that fires while the previous run is still going is skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateMode(scheduleOptions.Mode); err != nil {
			return err
		}
		ctx := context.Background()
		app, log, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(log, app)
		return actions.RunSchedule(ctx, log, app, scheduleCron, scheduleOptions)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().SortFlags = false
	switches.addFlag(scheduleCmd, &scheduleCron, "cron", "", true, "")
	addDagFlags(scheduleCmd, &scheduleOptions)
}
