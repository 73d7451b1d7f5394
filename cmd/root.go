package cmd

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2024-01-01T00:00+0000"
	stackDumpOnPanic bool
	logLevel         string
)

var rootCmd = &cobra.Command{
	Use:   "odsync",
	Short: "odsync loads a legacy ODBC source into a SQL Server ODS, one table or a whole dependency graph at a time",
	Long: `
           _
  ___   __| |___ _   _ _ __   ___
 / _ \ / _' / __| | | | '_ \ / __|
| (_) | (_| \__ \ |_| | | | | (__
 \___/ \__,_|___/\__, |_| |_|\___|
                 |___/

odsync extracts tables from a fragile legacy source over ODBC and merges them into a SQL Server
operational data store. Each table load extracts the rows changed since the last success, hashes
them to detect real changes, stages them and merges them into the destination.
Run a single table with "load", or every configured table in dependency order with "dag".
Start an HTTP server with "serve" to expose the circuit breaker, metrics and run status.`,
}

func init() {
	// General setup.
	cobra.EnableCommandSorting = false
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump with errors")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", switches["log-level"].desc+" (default: settings log-level)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if twelveFactorMode { // if we are running based on environment variables...
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(func() error { return execute12FactorMode(twelveFactorActions) })
		} else {
			if err := execute12FactorMode(twelveFactorActions); err != nil {
				// execute12FactorMode prints the error.
				os.Exit(1)
			}
		}
	} else { // else we're using CLI args and flags via Cobra...
		if err := rootCmd.Execute(); err != nil {
			// Execute() prints the error.
			os.Exit(1)
		}
	}
}
