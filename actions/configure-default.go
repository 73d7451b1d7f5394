package actions

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/helper"
)

type SettingSetConfig struct {
	ConfigFile SettingsGetterSetter `errorTxt:"config-file" mandatory:"yes"`
	Key        string               `errorTxt:"key" mandatory:"yes"`
	Value      string               `errorTxt:"value" mandatory:"yes"`
	Force      bool
	Out        io.Writer
}

type SettingRemoveConfig struct {
	ConfigFile SettingsGetterSetter `errorTxt:"config-file" mandatory:"yes"`
	Key        string               `errorTxt:"key" mandatory:"yes"`
	Out        io.Writer
}

// RunSettingSet saves key+value to the settings file.
// Unknown keys are rejected. If cfg.Force is not set then it returns an error when the key exists.
func RunSettingSet(cfg *SettingSetConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if !config.IsSettingsKey(cfg.Key) {
		return fmt.Errorf("unknown settings key %q, supported keys are: %v", cfg.Key, strings.Join(config.SettingsKeys(), ", "))
	}
	var val interface{}
	if err := cfg.ConfigFile.Get(cfg.Key, &val); err == nil && !cfg.Force { // if key exists and we're not allowed to overwrite...
		return fmt.Errorf("key %q exists, use force to update the value or remove it first", cfg.Key)
	} else if err != nil && !errors.As(err, &config.KeyNotFoundError{}) { // else if there was an unexpected error...
		return err
	}
	if err := cfg.ConfigFile.Set(cfg.Key, cfg.Value); err != nil {
		return errors.Wrap(err, "error writing settings file")
	}
	fmt.Fprintf(out(cfg.Out), "Key %q saved\n", cfg.Key)
	return nil
}

// RunSettingRemove removes a key from the settings file.
func RunSettingRemove(cfg *SettingRemoveConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	if err := cfg.ConfigFile.Delete(cfg.Key); err != nil {
		return fmt.Errorf("unable to delete key %q from settings: %v", cfg.Key, err)
	}
	fmt.Fprintf(out(cfg.Out), "Key %q removed\n", cfg.Key)
	return nil
}

// RunSettingList prints the keys saved in the settings file.
// Secrets such as DSNs and webhook URLs are masked.
func RunSettingList(f SettingsGetterSetter, w io.Writer) error {
	keys, err := f.GetAllKeys()
	if err != nil {
		return err
	}
	sort.Strings(keys)
	w = out(w)
	if len(keys) == 0 {
		fmt.Fprintln(w, "No settings saved")
		return nil
	}
	for _, k := range keys {
		var v interface{}
		if err = f.Get(k, &v); err != nil {
			return err
		}
		fmt.Fprintf(w, "%v: %v\n", k, maskSetting(k, fmt.Sprintf("%v", v)))
	}
	return nil
}

func maskSetting(key, val string) string {
	if (strings.HasSuffix(key, "-dsn") || strings.HasSuffix(key, "-url")) && val != "" {
		return "********"
	}
	return val
}
