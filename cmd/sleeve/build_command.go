package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sleeve/internal/buildplan"
	"sleeve/internal/cachestore"
	"sleeve/internal/config"
	"sleeve/internal/contentkey"
	"sleeve/internal/coordinator"
	"sleeve/internal/lifecycle"
	"sleeve/internal/preflight"
	"sleeve/internal/producer"
	"sleeve/internal/textutil"
)

type buildFlags struct {
	output          string
	workers         int
	continueOnError bool
	retention       string
	skipPreflight   bool
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build <plan.toml>",
		Short: "Resolve every artifact in a build plan against the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, ctx, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Copy resolved artifacts into this site directory")
	cmd.Flags().IntVarP(&flags.workers, "workers", "j", 0, "Parallel producers (overrides cache.workers)")
	cmd.Flags().BoolVar(&flags.continueOnError, "continue-on-error", false, "Keep building after a failed artifact")
	cmd.Flags().StringVar(&flags.retention, "retention", "", "Retention policy for this build (delayed, immediate, wipe, manual)")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Do not check directories and tools before building")
	return cmd
}

func runBuild(cmd *cobra.Command, ctx *commandContext, planPath string, flags buildFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	policy := cfg.Cache.Retention
	if flags.retention != "" {
		if policy, err = config.ParseRetentionPolicy(flags.retention); err != nil {
			return err
		}
	}
	workers := cfg.WorkerCount()
	if flags.workers > 0 {
		workers = flags.workers
	}
	continueOnError := cfg.Cache.ContinueOnError || flags.continueOnError

	if !flags.skipPreflight {
		if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
			colorize := shouldColorize(out)
			for _, r := range failed {
				fmt.Fprintln(out, statusLine(r.Name, statusError, r.Detail, colorize))
			}
			return fmt.Errorf("preflight failed: %d check(s) did not pass", len(failed))
		}
	}

	plan, err := buildplan.Load(planPath)
	if err != nil {
		return err
	}

	return ctx.withStore(cmd.Context(), func(cfg *config.Config, store *cachestore.Store) error {
		var memo contentkey.Memo
		if cfg.Cache.TrustFileStat {
			memo = store
		}
		items, err := plan.Expand(cmd.Context(), buildplan.Options{
			Fingerprinter:    contentkey.NewFingerprinter(memo, logger),
			StreamingQuality: cfg.Site.StreamingQuality,
			JPEGQuality:      cfg.Images.JPEGQuality,
		})
		if err != nil {
			return fmt.Errorf("expand plan: %w", err)
		}

		gen := cachestore.NewGeneration(time.Now())
		if _, err := lifecycle.Begin(cmd.Context(), store, gen); err != nil {
			return err
		}

		registry := producer.NewRegistry(producer.Options{
			FFmpeg:         cfg.FFmpegBinary(),
			FFprobe:        cfg.FFprobeBinary(),
			ValidateOutput: cfg.Tools.ValidateOutput,
			Logger:         logger,
		})
		coord := coordinator.New(store, registry, coordinator.Options{
			Workers:         workers,
			ContinueOnError: continueOnError,
			WorkDir:         cfg.WorkDirectory(),
			CatalogRoot:     plan.CatalogRoot,
			Logger:          logger,
		})
		report, runErr := coord.RunGeneration(cmd.Context(), gen, buildplan.Requests(items))

		printBuildReport(out, report)

		if flags.output != "" {
			salt := cfg.Site.URLSalt
			if cfg.Site.RotateDownloadURLs {
				salt = uuid.NewString()
			}
			published, err := publishSite(flags.output, items, report, salt)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Published %d artifacts to %s\n", published, flags.output)
		}

		// An interrupted or aborted build leaves unreached entries marked
		// stale; skipping retention keeps them until a complete build.
		if runErr != nil {
			return runErr
		}

		summary, err := lifecycle.Apply(cmd.Context(), store, gen, policy, cfg.Grace(), logger)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, summary.Message)

		if report.Failed > 0 {
			return fmt.Errorf("%d artifact(s) failed", report.Failed)
		}
		return nil
	})
}

func printBuildReport(out io.Writer, report coordinator.Report) {
	fmt.Fprintf(out, "Build %s: %d reused, %d produced, %d failed (%s written) in %s\n",
		shortID(report.BuildID),
		report.Reused,
		report.Produced,
		report.Failed,
		textutil.HumanBytes(report.BytesWritten),
		report.Duration.Round(time.Millisecond),
	)
	failures := report.Failures()
	if len(failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(failures))
	skipped := 0
	for _, res := range failures {
		if res.Skipped() {
			skipped++
			continue
		}
		rows = append(rows, []string{
			titleCase(string(res.Request.Kind)),
			res.Request.Name(),
			res.Request.SourcePath(),
			firstLine(res.Err),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Kind", "Artifact", "Source", "Error"}, rows, nil))
	}
	if skipped > 0 {
		fmt.Fprintf(out, "%d artifact(s) were not started because the build stopped early\n", skipped)
	}
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
