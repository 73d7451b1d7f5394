package cmd

import (
	"fmt"
	"os"
	"strings"

	c "github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by odsync's commands.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		if strings.ToLower(mode) == "lambda" {
			lambdaMode = true
		}
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode = c.EnvVar12FactorMode
	envVarCommand          = c.EnvVarPrefix + "_" + "COMMAND"
	envVarTable            = c.EnvVarPrefix + "_" + "TABLE"
	envVarLogLevel         = c.EnvVarPrefix + "_" + "LOG_LEVEL"
	envVarSourceDsn        = c.EnvVarPrefix + "_" + "SOURCE_DSN"
	envVarTargetDsn        = c.EnvVarPrefix + "_" + "TARGET_DSN"
	envVarTeamsWebhook     = c.EnvVarPrefix + "_" + "TEAMS_WEBHOOK_URL"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
	twelveFactorVars = map[string]string{
		envVarCommand:      "",
		envVarTable:        "",
		envVarLogLevel:     "",
		envVarSourceDsn:    "",
		envVarTargetDsn:    "",
		envVarTeamsWebhook: "",
	}
	twelveFactorVarsSensitive = map[string]string{ // used to flag some of the above variables as being sensitive.
		envVarSourceDsn:    "",
		envVarTargetDsn:    "",
		envVarTeamsWebhook: "",
	}
)

type twelveFactorAction struct {
	setupFunc  func(table string)
	runnerFunc func() error
}

var twelveFactorActions = map[string]twelveFactorAction{
	"load": {
		setupFunc:  func(table string) { loadTable = table },
		runnerFunc: runLoad,
	},
	"dag": {
		setupFunc:  func(string) {},
		runnerFunc: runDag,
	},
	"plan": {
		setupFunc:  func(string) {},
		runnerFunc: runPlan,
	},
	"cache-cleanup": {
		setupFunc:  func(string) {},
		runnerFunc: runCacheCleanup,
	},
}

func execute12FactorMode(acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "info")
	log := logger.NewLogger(c.AppName, logLevel, stackDumpOnPanic)
	log.Info("odsync is running in 12 Factor mode...")
	for k := range twelveFactorVars { // for each env variable that we need...
		// Save it and log it.
		twelveFactorVars[k] = os.Getenv(k)
		_, sensitive := twelveFactorVarsSensitive[k]
		if !sensitive { // if the env variable does not contain sensitive values...
			log.Debug(k, "=", twelveFactorVars[k])
		} else { // else output obfuscated value...
			log.Debug(k, "=", "<obfuscated>")
		}
	}
	// Use the command to fetch the appropriate action.
	action := strings.ToLower(twelveFactorVars[envVarCommand])
	a, ok := acts[action]
	if !ok {
		err = fmt.Errorf("invalid command %q supplied by %v", twelveFactorVars[envVarCommand], envVarCommand)
		log.Error(err.Error())
		return
	}
	a.setupFunc(twelveFactorVars[envVarTable])
	// Run the action.
	err = a.runnerFunc()
	if err != nil {
		log.Error("Error: ", err)
	}
	return err
}
