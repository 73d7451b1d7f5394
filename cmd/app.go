package cmd

import (
	"context"
	"fmt"

	"github.com/relloyd/odsync/actions"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/logger"
)

// loadSettings merges the settings file and the environment.
// The settings file is ignored in twelve-factor mode.
func loadSettings() (config.Settings, error) {
	var f *config.File
	if !twelveFactorMode {
		var err error
		if f, err = config.DefaultSettingsFile(); err != nil {
			return config.Settings{}, err
		}
	}
	return config.LoadSettings(f)
}

// newLogger prefers the --log-level flag over the log-level setting.
func newLogger(s config.Settings) logger.Logger {
	level := logLevel
	if level == "" {
		level = s.LogLevel
	}
	if level == "" {
		level = "info"
	}
	return logger.NewLogger(constants.AppName, level, stackDumpOnPanic)
}

// newApp loads settings and wires the App. The caller must Close it.
func newApp(ctx context.Context) (*actions.App, logger.Logger, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(s)
	app, err := actions.NewApp(ctx, log, s)
	if err != nil {
		return nil, log, err
	}
	return app, log, nil
}

func closeApp(log logger.Logger, app *actions.App) {
	if err := app.Close(); err != nil {
		log.Warn(fmt.Sprintf("error closing the warehouse connection: %v", err))
	}
}
