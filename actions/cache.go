package actions

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/file"
)

// CacheInfo prints the cached files of c.
func CacheInfo(c *file.ParquetCache, w io.Writer) error {
	entries, err := c.Info()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err = fmt.Fprintf(w, "Cache %v is empty\n", c.Dir())
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED")
	var total int64
	for _, e := range entries {
		fmt.Fprintf(tw, "%v\t%v\t%v\n", e.Name, e.Size, e.Modified.Format(constants.TimeFormatDateTime))
		total += e.Size
	}
	fmt.Fprintf(tw, "%d file(s)\t%v\t\n", len(entries), total)
	return tw.Flush()
}

// CacheClear removes the cached files of table, or all of them when table is empty.
func CacheClear(c *file.ParquetCache, table string, w io.Writer) error {
	n, err := c.Clear(table)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Removed %d cache file(s)\n", n)
	return err
}

// CacheCleanup removes cached files older than days.
func CacheCleanup(c *file.ParquetCache, days int, now time.Time, w io.Writer) error {
	if days < 0 {
		return fmt.Errorf("days must not be negative, got %d", days)
	}
	n, err := c.Cleanup(time.Duration(days)*24*time.Hour, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Removed %d cache file(s) older than %d day(s)\n", n, days)
	return err
}
