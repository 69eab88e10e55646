package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"media-optimizer/internal/cache"
	"media-optimizer/internal/ledger"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/memory"
)

func newCacheCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the artifact cache",
		Long: `Inspect or clear the artifact cache shared by every build.

The pipeline never invalidates entries; after changing source images in
place under the same path, clear the cache.

Examples:
  media-optimizer cache path
  media-optimizer cache stats --builds 10
  media-optimizer cache clear`,
	}

	cmd.AddCommand(
		newCachePathCommand(opts),
		newCacheStatsCommand(opts),
		newCacheClearCommand(opts),
	)
	return cmd
}

// resolveCacheDir applies --cache-dir over the environment default.
func resolveCacheDir(opts *globalOptions) (string, error) {
	if opts.cacheDir != "" {
		return filepath.Abs(opts.cacheDir)
	}
	return cache.DefaultDir()
}

// openLedgerIfExists opens the ledger without creating one.
func openLedgerIfExists(ctx context.Context, dir string) (*ledger.Ledger, error) {
	path := filepath.Join(dir, ledger.FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return ledger.Open(ctx, path)
}

func closeLedger(l *ledger.Ledger) {
	if l == nil {
		return
	}
	if err := l.Close(); err != nil {
		logging.Warn("failed to close ledger: %v", err)
	}
}

func newCachePathCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

func newCacheStatsCommand(opts *globalOptions) *cobra.Command {
	var builds int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and hit ratio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir(opts)
			if err != nil {
				return err
			}
			disk, err := cache.NewDiskBackend(dir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			ctx := cmd.Context()

			usage := disk.GetStats()
			rows := [][]string{
				{"Directory", dir},
				{"Entries", strconv.Itoa(usage.Entries)},
				{"Size", memory.FormatBytes(usage.Bytes)},
			}

			led, err := openLedgerIfExists(ctx, dir)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer closeLedger(led)

			var recent []ledger.Build
			if led != nil {
				stats, err := led.Stats(ctx)
				if err != nil {
					return err
				}
				last := "never"
				if stats.LastBuild != nil {
					last = stats.LastBuild.Format(time.RFC3339)
				}
				rows = append(rows,
					[]string{"Hits", strconv.FormatInt(stats.Hits, 10)},
					[]string{"Misses", strconv.FormatInt(stats.Misses, 10)},
					[]string{"Hit ratio", fmt.Sprintf("%.1f%%", stats.HitRatio()*100)},
					[]string{"Builds", strconv.Itoa(stats.Builds)},
					[]string{"Last build", last},
				)
				if builds > 0 {
					if recent, err = led.RecentBuilds(ctx, builds); err != nil {
						return err
					}
				}
			} else {
				rows = append(rows, []string{"Ledger", "not found"})
			}

			if err := renderTable(w, []string{"Cache", ""}, rows); err != nil {
				return err
			}
			if len(recent) == 0 {
				return nil
			}

			fmt.Fprintln(w)
			buildRows := make([][]string, 0, len(recent))
			for _, b := range recent {
				buildRows = append(buildRows, []string{
					b.StartedAt.Format("2006-01-02 15:04:05"),
					b.Status,
					strconv.Itoa(b.Pages),
					strconv.Itoa(b.References),
					strconv.Itoa(b.Hits),
					strconv.Itoa(b.Misses),
					b.Duration.String(),
				})
			}
			return renderTable(w, []string{"Started", "Status", "Pages", "Refs", "Hits", "Transcodes", "Duration"}, buildRows)
		},
	}

	cmd.Flags().IntVar(&builds, "builds", 5, "number of recent builds to list (0 to hide)")
	return cmd
}

func newCacheClearCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir(opts)
			if err != nil {
				return err
			}
			disk, err := cache.NewDiskBackend(dir)
			if err != nil {
				return err
			}

			removed, err := disk.Clear()
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}

			led, err := openLedgerIfExists(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer closeLedger(led)
			if led != nil {
				if err := led.Clear(cmd.Context()); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries from %s\n", removed, dir)
			return nil
		},
	}
}
