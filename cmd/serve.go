package cmd

import (
	"context"
	"net"

	"github.com/relloyd/odsync/actions"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service exposing health, the source circuit breaker, metrics and run triggers",
	Long: `Start a web service exposing:

  GET  /health                 liveness
  GET  /breaker                source circuit breaker status
  POST /breaker                reset the source circuit breaker
  GET  /metrics                Prometheus metrics of the latest run
  GET  /status                 table states of the latest DAG run
  POST /tables/{table}/load    load one table in the background (?mode=incremental|full)
  POST /dag                    run the DAG in the background (?mode=...&continue-on-error=true)
  POST /stop                   stop the server

Set --cron to also run the DAG on a schedule while serving.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateMode(serveConfig.Dag.Mode); err != nil {
			return err
		}
		ctx := context.Background()
		app, log, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(log, app)
		if !cmd.Flags().Changed("port") && app.Settings.WebPort > 0 {
			serveConfig.Port = app.Settings.WebPort
		}
		serveConfig.Service = app
		return actions.RunWebServer(ctx, log, &serveConfig)
	},
}

var serveConfig = actions.WebServerConfig{
	Addr: net.IP{0, 0, 0, 0},
	Port: 8080,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveConfig.CronExpr, "cron", "", false, " (optional)")
	addDagFlags(serveCmd, &serveConfig.Dag)
}
