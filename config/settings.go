package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
)

const (
	StoreKindSQL  = "sql"
	StoreKindFile = "file"
)

// Settings holds everything odsync needs to run, decoded from ~/.odsync/config.yaml
// and overridden by ODSYNC_* environment variables.
type Settings struct {
	SourceDsn      string `mapstructure:"source-dsn" mandatory:"yes" errorTxt:"source-dsn (ODSYNC_SOURCE_DSN)"`
	TargetDsn      string `mapstructure:"target-dsn" mandatory:"yes" errorTxt:"target-dsn (ODSYNC_TARGET_DSN)"`
	ConfigStore    string `mapstructure:"config-store"`
	TablesFile     string `mapstructure:"tables-file"`
	SourceTimeZone string `mapstructure:"source-time-zone"`
	LogLevel       string `mapstructure:"log-level"`
	CacheDir       string `mapstructure:"cache-dir"`
	ReportDir      string `mapstructure:"report-dir"`
	// Resilience.
	ExtractRetryAttempts        int     `mapstructure:"extract-retry-attempts"`
	ExtractRetryDelaySeconds    int     `mapstructure:"extract-retry-delay-seconds"`
	ExtractRetryFactor          float64 `mapstructure:"extract-retry-factor"`
	ExtractRetryMaxDelaySeconds int     `mapstructure:"extract-retry-max-delay-seconds"`
	ExtractTimeoutSeconds       int     `mapstructure:"extract-timeout-seconds"`
	BreakerFailureThreshold     int     `mapstructure:"breaker-failure-threshold"`
	BreakerCooldownSeconds      int     `mapstructure:"breaker-cooldown-seconds"`
	// Scheduler.
	NodeRetries    int  `mapstructure:"node-retries"`
	Concurrency    int  `mapstructure:"concurrency"`
	StopOnCritical bool `mapstructure:"stop-on-critical"`
	// Observability.
	MetricsToSQL       bool   `mapstructure:"metrics-to-sql"`
	MetricsTextfile    string `mapstructure:"metrics-textfile"`
	MetricsPushGateway string `mapstructure:"metrics-push-gateway"`
	TeamsWebhookURL    string `mapstructure:"teams-webhook-url"`
	ReportS3Bucket     string `mapstructure:"report-s3-bucket"`
	ReportS3Prefix     string `mapstructure:"report-s3-prefix"`
	ReportS3Region     string `mapstructure:"report-s3-region"`
	CacheRetentionDays int    `mapstructure:"cache-retention-days"`
	WebPort            int    `mapstructure:"web-port"`
}

// DefaultSettings returns the values used when neither the file nor the environment set a key.
func DefaultSettings() Settings {
	return Settings{
		ConfigStore:                 StoreKindSQL,
		SourceTimeZone:              "Local",
		LogLevel:                    "info",
		CacheDir:                    "cache",
		ReportDir:                   "reports",
		ExtractRetryAttempts:        3,
		ExtractRetryDelaySeconds:    5,
		ExtractRetryFactor:          2,
		ExtractRetryMaxDelaySeconds: 300,
		ExtractTimeoutSeconds:       600,
		BreakerFailureThreshold:     3,
		BreakerCooldownSeconds:      120,
		NodeRetries:                 2,
		Concurrency:                 1,
		StopOnCritical:              true,
		MetricsToSQL:                true,
		ReportS3Region:              "eu-west-1",
		CacheRetentionDays:          7,
		WebPort:                     8080,
	}
}

// LoadSettings merges defaults, the settings file f (may be nil) and the environment.
// Environment variables win. A .env file in the working directory is loaded first when present;
// it never overrides variables that are already set.
func LoadSettings(f *File) (Settings, error) {
	s := DefaultSettings()
	if _, err := os.Stat(".env"); err == nil {
		if err = godotenv.Load(); err != nil {
			return s, errors.Wrap(err, "error loading .env")
		}
	}
	values := make(map[string]interface{})
	if f != nil {
		all, err := f.All()
		if err != nil {
			return s, err
		}
		for k, v := range all {
			values[k] = v
		}
	}
	for _, key := range SettingsKeys() {
		if v, ok := os.LookupEnv(helper.EnvVarName(key)); ok {
			values[key] = v
		}
	}
	if err := decodeSettings(values, &s); err != nil {
		return s, err
	}
	return s, nil
}

func decodeSettings(values map[string]interface{}, s *Settings) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           s,
	})
	if err != nil {
		return err
	}
	if err = dec.Decode(values); err != nil {
		return errors.Wrap(err, "error decoding settings")
	}
	if len(md.Unused) > 0 {
		return errors.Errorf("unknown settings keys: %v", strings.Join(md.Unused, ", "))
	}
	return nil
}

// SettingsKeys lists every supported settings key in declaration order.
func SettingsKeys() []string {
	t := reflect.TypeOf(Settings{})
	retval := make([]string, 0, t.NumField())
	for idx := 0; idx < t.NumField(); idx++ {
		if k := t.Field(idx).Tag.Get("mapstructure"); k != "" {
			retval = append(retval, k)
		}
	}
	return retval
}

// IsSettingsKey reports whether key is one of SettingsKeys.
func IsSettingsKey(key string) bool {
	for _, k := range SettingsKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// ValidateConnections checks both DSNs are present.
func (s Settings) ValidateConnections() error {
	return helper.ValidateStructIsPopulated(s)
}

// ValidateTarget checks the warehouse DSN is present.
func (s Settings) ValidateTarget() error {
	return helper.ValidateStructIsPopulated(struct {
		TargetDsn string `mandatory:"yes" errorTxt:"target-dsn (ODSYNC_TARGET_DSN)"`
	}{s.TargetDsn})
}

// SourceLocation resolves SourceTimeZone; naive source timestamps are read in this zone.
func (s Settings) SourceLocation() (*time.Location, error) {
	if s.SourceTimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.SourceTimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %v", "source-time-zone")
	}
	return loc, nil
}

// Seconds converts a settings value in seconds into a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// DefaultSettingsFile returns the settings File in the odsync home dir.
func DefaultSettingsFile() (*File, error) {
	dir, err := ConfigHomeDir()
	if err != nil {
		return nil, err
	}
	return NewConfigFileWithDir(dir, constants.ConfigFileName), nil
}
