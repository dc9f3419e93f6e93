package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sleeve/internal/artifact"
	"sleeve/internal/cachestore"
	"sleeve/internal/config"
	"sleeve/internal/lifecycle"
	"sleeve/internal/textutil"
)

const stampLayout = "2006-01-02 15:04"

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the artifact cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheShowCommand(ctx))
	cacheCmd.AddCommand(newCacheOptimizeCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage and obsolete entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store *cachestore.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Cache:     %s\n", stats.Dir)
				fmt.Fprintf(out, "Entries:   %d (%s)\n", stats.Entries, textutil.HumanBytes(stats.TotalBytes))
				fmt.Fprintf(out, "Stale:     %d (%s)\n", stats.StaleEntries, textutil.HumanBytes(stats.StaleBytes))
				fmt.Fprintf(out, "Retention: %s\n", titleCase(string(cfg.Cache.Retention)))
				if stats.TotalFSBytes > 0 {
					ratio := float64(stats.FreeBytes) / float64(stats.TotalFSBytes) * 100
					fmt.Fprintf(out, "Disk:      %s free (%.1f%%)\n", textutil.HumanBytes(int64(stats.FreeBytes)), ratio)
				}
				if len(stats.Kinds) > 0 {
					rows := make([][]string, 0, len(stats.Kinds))
					for _, k := range stats.Kinds {
						rows = append(rows, []string{titleCase(string(k.Kind)), strconv.Itoa(k.Entries), textutil.HumanBytes(k.Bytes)})
					}
					fmt.Fprintln(out, renderTable([]string{"Kind", "Entries", "Size"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
				}
				summary, err := lifecycle.Analyze(cmd.Context(), store)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, summary.Message)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var staleOnly bool
	var kindFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind artifact.Kind
			if kindFilter != "" {
				parsed, err := artifact.ParseKind(kindFilter)
				if err != nil {
					return err
				}
				kind = parsed
			}
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store *cachestore.Store) error {
				var entries []cachestore.Entry
				var err error
				if staleOnly {
					entries, err = store.ListStale(cmd.Context())
				} else {
					entries, err = store.List(cmd.Context())
				}
				if err != nil {
					return err
				}
				if kind != "" {
					filtered := entries[:0]
					for _, e := range entries {
						if e.Kind == kind {
							filtered = append(filtered, e)
						}
					}
					entries = filtered
				}
				printEntries(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&staleOnly, "stale", false, "Only list entries the last build did not use")
	cmd.Flags().StringVar(&kindFilter, "kind", "", "Only list entries of this kind")
	return cmd
}

func printEntries(out io.Writer, entries []cachestore.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No cached artifacts")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		stale := ""
		if e.StaleSince != nil {
			stale = e.StaleSince.Local().Format(stampLayout)
		}
		rows = append(rows, []string{
			e.Key.Short(),
			titleCase(string(e.Kind)),
			e.Label,
			textutil.HumanBytes(e.ByteSize),
			e.LastUsedAt.Local().Format(stampLayout),
			stale,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Key", "Kind", "Label", "Size", "Last used", "Stale since"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func newCacheShowCommand(ctx *commandContext) *cobra.Command {
	var showProbe bool
	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show one cached artifact by key or unique key prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store *cachestore.Store) error {
				entry, err := store.Resolve(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					if errors.Is(err, cachestore.ErrNotFound) {
						return fmt.Errorf("no cached artifact matches %q", args[0])
					}
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Key:         %s\n", entry.Key)
				fmt.Fprintf(out, "Kind:        %s (schema %d)\n", titleCase(string(entry.Kind)), entry.SchemaVersion)
				fmt.Fprintf(out, "Label:       %s\n", entry.Label)
				fmt.Fprintf(out, "Payload:     %s\n", entry.PayloadPath)
				fmt.Fprintf(out, "Size:        %s\n", textutil.HumanBytes(entry.ByteSize))
				fmt.Fprintf(out, "Created:     %s\n", entry.CreatedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "Last used:   %s\n", entry.LastUsedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "Generation:  %s\n", entry.GenerationID)
				if entry.StaleSince != nil {
					fmt.Fprintf(out, "Stale since: %s\n", entry.StaleSince.Local().Format(time.RFC3339))
				}
				fmt.Fprintf(out, "Probe:       %s\n", yesNo(entry.HasProbe))
				if showProbe && entry.HasProbe {
					probe, err := store.Probe(cmd.Context(), entry.Key)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(probe))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showProbe, "probe", false, "Print the stored ffprobe inspection")
	return cmd
}

func newCacheOptimizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Remove every cached artifact the last build did not use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store *cachestore.Store) error {
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				summary, err := lifecycle.Optimize(cmd.Context(), store, logger)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary.Message)
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to clear the cache without --yes")
			}
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store *cachestore.Store) error {
				count, reclaimed, err := store.RemoveAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached artifacts (%s)\n", count, textutil.HumanBytes(reclaimed))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm removal")
	return cmd
}
