package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/relloyd/odsync/actions"
	"github.com/relloyd/odsync/file"
	"github.com/spf13/cobra"
)

var cacheDays int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean the intermediate parquet cache",
	Long: `Inspect and clean the intermediate parquet cache.
Each load saves the extracted batch (<table>_raw.parquet) and the transformed batch
(<table>_transformed.parquet) in the cache directory.`,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "List cached files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}
		return actions.CacheInfo(c, os.Stdout)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [table]",
	Short: "Remove the cached files of one table, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}
		table := ""
		if len(args) == 1 {
			table = args[0]
		}
		return actions.CacheClear(c, table, os.Stdout)
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove cached files older than --days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCacheCleanup()
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	switches.addFlag(cacheCleanupCmd, &cacheDays, "days", "-1", false, " (default: settings cache-retention-days)")
}

func newCache() (*file.ParquetCache, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if s.CacheDir == "" {
		return nil, errors.New("cache-dir is not set")
	}
	if cacheDays < 0 {
		cacheDays = s.CacheRetentionDays
	}
	return file.NewParquetCache(newLogger(s), s.CacheDir), nil
}

func runCacheCleanup() error {
	c, err := newCache()
	if err != nil {
		return err
	}
	return actions.CacheCleanup(c, cacheDays, time.Now(), os.Stdout)
}
