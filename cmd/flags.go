package cmd

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"mode": cliFlag{name: "mode", shortHand: "m",
		desc: "Load mode: \"incremental\" loads rows modified since the last success (minus the table \n" +
			"lookback), \"full\" truncates the destination and reloads everything"},
	"table": cliFlag{name: "table", shortHand: "t",
		desc: "Source table name as configured in the table config store"},
	"continue-on-error": cliFlag{name: "continue-on-error", shortHand: "C",
		desc: "Keep launching tables after a critical table fails. Tables that depend on a failed \n" +
			"table are still skipped"},
	"concurrency": cliFlag{name: "concurrency", shortHand: "n",
		desc: "Number of tables of the same level to load at once"},
	"output": cliFlag{name: "output", shortHand: "o",
		desc: "Specify \"yaml\" or \"json\" to print the plan"},
	"cron": cliFlag{name: "cron", shortHand: "c",
		desc: "Standard 5-field cron expression, e.g. \"0 2 * * *\" to run the DAG at 02:00 every day"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
	"days": cliFlag{name: "days", shortHand: "d",
		desc: "Remove cached files older than this number of days"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug | trace\""},
	"key": cliFlag{name: "key", shortHand: "k",
		desc: "The settings key"},
	"value": cliFlag{name: "value", shortHand: "v",
		desc: "The value to save"},
	"force": cliFlag{name: "force", shortHand: "f",
		desc: "Overwrite existing values"},
	"from-cache": cliFlag{name: "from-cache",
		desc: "Reload from the batch cached by the previous run instead of the source: \"raw\" repeats \n" +
			"the transform, \"transformed\" starts at the staging load"},
}

// addFlag add a flag to cobra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of environment variable for the supplied
// name, or if not set then the supplied default value is used.
// When NOT running in twelveFactorMode, the default value is fetched from the settings file if it exists else the
// supplied defaultValue is applied.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue, getSettingsValue) // get the cliFlag details, with defaults taken from settings or the supplied defaultValue
	desc := sw.desc + desc2
	// Apply the flag.
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
			// Signal that the flag was set so defaults satisfy required flags.
			if sw.val != "" {
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *bool:
		b := false
		switch strings.ToLower(sw.val) {
		case "true", "1", "yes":
			b = true
		}
		if twelveFactorMode {
			*p = b
		} else {
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, b, desc)
		}
	case *int:
		if sw.val == "" {
			sw.val = "0"
		}
		defaultInt, err := strconv.Atoi(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && !twelveFactorMode {
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode,
// else read the settings file to find it.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string, fnGetConfig func(key string, out interface{}) error) cliFlag {
	s, ok := switches[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	if twelveFactorMode { // if we should read env vars...
		s.val = helper.ReadValueFromEnvWithDefault(flagNameToEnvVar(name), defaultValue)
	} else { // else check the settings file or apply default...
		err := fnGetConfig(s.name, &s.val)
		if err != nil || s.val == "" { // if there was no key found...
			if err != nil && !errors.As(err, &config.KeyNotFoundError{}) {
				fmt.Printf("warning: unable to read default for flag %q: %v\n", s.name, err)
			}
			s.val = defaultValue
		}
	}
	return s
}

// getSettingsValue reads key from the settings file. Only settings keys are looked up.
func getSettingsValue(key string, out interface{}) error {
	if !config.IsSettingsKey(key) {
		return config.KeyNotFoundError{}
	}
	f, err := config.DefaultSettingsFile()
	if err != nil {
		return err
	}
	return f.Get(key, out)
}

// flagNameToEnvVar will form a sanitised environment variable name using constants.EnvVarPrefix.
func flagNameToEnvVar(name string) string {
	return constants.EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// getTableArgsFunc returns a func that cobra uses to validate <table> [mode].
// It saves arg[0] as the table and the optional arg[1] as the mode.
func getTableArgsFunc(table *string, mode *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 || len(args) > 2 {
			return errors.New("requires a <table> and an optional mode (incremental|full)")
		}
		*table = strings.TrimSpace(args[0])
		if *table == "" {
			return errors.New("table name must not be empty")
		}
		if len(args) == 2 {
			*mode = strings.ToLower(strings.TrimSpace(args[1]))
		}
		return validateMode(*mode)
	}
}

func validateMode(mode string) error {
	switch mode {
	case constants.ModeIncremental, constants.ModeFull:
		return nil
	}
	return fmt.Errorf("unsupported mode %q, use %q or %q", mode, constants.ModeIncremental, constants.ModeFull)
}

func validateCacheStage(stage string) error {
	switch stage {
	case "", constants.CacheStageRaw, constants.CacheStageTransformed:
		return nil
	}
	return fmt.Errorf("unsupported cache stage %q, use %q or %q", stage, constants.CacheStageRaw, constants.CacheStageTransformed)
}
