package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/relloyd/odsync/constants"
	"github.com/spf13/cobra"
)

var (
	loadTable     string
	loadMode      string
	loadFromCache string
)

var loadCmd = &cobra.Command{
	Use:   "load <table> [incremental|full]",
	Short: "Load one table from the source into the ODS",
	Long: `Load one table from the source into the ODS:

- Extract rows modified since the last success, or every row in full mode
- Add the hashdiff, ts_source and load_ts columns and run the data-quality checks
- Stage the batch and merge it into the destination, updating only rows whose hashdiff changed
- Failures are written to the run ledger and sent to the alert sink
- Use --from-cache raw|transformed to repeat a load from the batch cached by the previous run
  without reading the source. The last success time is not moved by such a run

The exit status is 1 when the load fails.`,
	Args: getTableArgsFunc(&loadTable, &loadMode),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLoad()
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().SortFlags = false
	switches.addFlag(loadCmd, &loadMode, "mode", constants.ModeIncremental, false, " (overridden by the optional argument)")
	switches.addFlag(loadCmd, &loadFromCache, "from-cache", "", false, "")
}

func runLoad() error {
	if loadTable == "" {
		return errors.New("please supply a table to load")
	}
	if err := validateMode(loadMode); err != nil {
		return err
	}
	if err := validateCacheStage(loadFromCache); err != nil {
		return err
	}
	ctx := context.Background()
	app, log, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(log, app)
	res, err := app.LoadTableFromCache(ctx, loadTable, loadMode, loadFromCache)
	if err != nil {
		return err
	}
	fmt.Printf("%v loaded (%v): %d extracted, %d inserted, %d updated in %.1fs\n",
		res.Table, res.Mode, res.RowsExtracted, res.Inserted, res.Updated, res.Duration.Seconds())
	return nil
}
