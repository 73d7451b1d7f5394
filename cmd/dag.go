package cmd

import (
	"context"
	"fmt"

	"github.com/relloyd/odsync/actions"
	"github.com/relloyd/odsync/constants"
	"github.com/spf13/cobra"
)

var dagOptions = actions.DagOptions{}

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "Load every configured table in dependency order",
	Long: `Load every configured table in dependency order:

- Tables are grouped into levels; a level starts once every table of the previous level is done
- Within a level, critical tables start before high and normal ones
- A failed table is retried with exponential backoff before it is marked failed
- Tables that depend on a failed or skipped table are skipped
- A critical failure stops the run unless --continue-on-error is set
- A text and CSV report is written to the report directory

The exit status is 1 when any table failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDag()
	},
}

func init() {
	rootCmd.AddCommand(dagCmd)
	dagCmd.Flags().SortFlags = false
	addDagFlags(dagCmd, &dagOptions)
}

func addDagFlags(c *cobra.Command, o *actions.DagOptions) {
	switches.addFlag(c, &o.Mode, "mode", constants.ModeIncremental, false, "")
	switches.addFlag(c, &o.ContinueOnError, "continue-on-error", "false", false, "")
	switches.addFlag(c, &o.Concurrency, "concurrency", "0", false, " (0 uses the concurrency setting)")
}

func runDag() error {
	if err := validateMode(dagOptions.Mode); err != nil {
		return err
	}
	ctx := context.Background()
	app, log, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(log, app)
	rep, err := app.RunDag(ctx, dagOptions)
	if err != nil {
		return err
	}
	if rep.HasFailures() {
		_, failed, _ := rep.Counts()
		return fmt.Errorf("%d table(s) failed", failed)
	}
	return nil
}
