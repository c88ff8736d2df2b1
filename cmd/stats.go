package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethpandaops/errorfilter/pkg/filter/cache"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const oldestLayout = "2006-01-02 15:04:05"

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dedup cache statistics",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := initCommon()

		c, err := cache.NewWithRegisterer(log, &cfg.Cache, nil)
		if err != nil {
			log.WithError(err).Fatal("failed to create cache")
		}

		now := time.Now()

		if err := c.Load(now); err != nil {
			log.WithError(err).Warn("failed to read snapshot")
		}

		printStats(cmd.OutOrStdout(), c.Stats(now), now)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func printStats(w io.Writer, stats cache.Stats, now time.Time) {
	color.New(color.FgGreen, color.Bold).Fprintln(w, "Success: Error Filter Statistics:")

	fmt.Fprintf(w, "Cached Messages: %d\n", stats.Entries)
	fmt.Fprintf(w, "Cache File Size: %d bytes (%s)\n", stats.SnapshotBytes, humanize.Bytes(uint64(stats.SnapshotBytes)))

	if stats.Oldest == nil {
		fmt.Fprintln(w, "Oldest Cache Entry: None")

		return
	}

	fmt.Fprintf(w, "Oldest Cache Entry: %s (%s)\n",
		stats.Oldest.Format(oldestLayout),
		humanize.RelTime(*stats.Oldest, now, "ago", "from now"),
	)
}
