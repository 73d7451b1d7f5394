package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/relloyd/odsync/actions"
	"github.com/relloyd/odsync/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure settings saved in the odsync home directory",
	Long: fmt.Sprintf(`Configure settings saved in ~/.odsync/config.yaml.
Environment variables named ODSYNC_<KEY IN UPPER CASE> override saved values, e.g. ODSYNC_SOURCE_DSN.

Supported keys:
  %v
`, strings.Join(config.SettingsKeys(), "\n  ")),
}

var settingSetCfg = actions.SettingSetConfig{}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save a setting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := getSettingsFile()
		if err != nil {
			return err
		}
		settingSetCfg.ConfigFile = f
		return actions.RunSettingSet(&settingSetCfg)
	},
}

var settingRemoveCfg = actions.SettingRemoveConfig{}

var configRemoveCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm", "del", "delete"},
	Short:   "Remove a saved setting",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := getSettingsFile()
		if err != nil {
			return err
		}
		settingRemoveCfg.ConfigFile = f
		return actions.RunSettingRemove(&settingRemoveCfg)
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all saved settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := getSettingsFile()
		if err != nil {
			return err
		}
		return actions.RunSettingList(f, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configRemoveCmd)
	configSetCmd.Flags().SortFlags = false
	switches.addFlag(configSetCmd, &settingSetCfg.Key, "key", "", true, "")
	switches.addFlag(configSetCmd, &settingSetCfg.Value, "value", "", true, "")
	switches.addFlag(configSetCmd, &settingSetCfg.Force, "force", "false", false, "")
	switches.addFlag(configRemoveCmd, &settingRemoveCfg.Key, "key", "", true, "")
	configSetCmd.SilenceUsage = true
	configRemoveCmd.SilenceUsage = true
}

func getSettingsFile() (*config.File, error) {
	if twelveFactorMode {
		return nil, fmt.Errorf("settings cannot be saved when %v is set (use ODSYNC_* environment variables instead)", envVarTwelveFactorMode)
	}
	f, err := config.DefaultSettingsFile()
	if err != nil {
		return nil, errors.New("unable to find the odsync home directory")
	}
	return f, nil
}
