package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sleeve/internal/deps"
	"sleeve/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var skipEncoders bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check the codec tools and encoders builds rely on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			tools := preflight.CheckSystemDeps(cmd.Context(), cfg)
			var missing []string
			ffmpegReady := false
			fmt.Fprintln(out, "Tools")
			for _, status := range tools {
				fmt.Fprintln(out, dependencyLine(status, colorize))
				if !status.Available && !status.Optional {
					missing = append(missing, status.Name)
				}
				if status.Name == "FFmpeg" && status.Available {
					ffmpegReady = true
				}
			}

			if !skipEncoders && ffmpegReady {
				fmt.Fprintln(out, "Encoders")
				for _, status := range deps.CheckEncoders(cmd.Context(), cfg.FFmpegBinary(), deps.AllFormats()...) {
					fmt.Fprintln(out, dependencyLine(status, colorize))
					if !status.Available {
						missing = append(missing, status.Name)
					}
				}
			}

			if len(missing) > 0 {
				return fmt.Errorf("%w: %s", errMissingDeps, strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipEncoders, "skip-encoders", false, "Only check that the tools resolve")
	return cmd
}

func dependencyLine(status deps.Status, colorize bool) string {
	if status.Available {
		message := "ready"
		if status.Path != "" {
			message = "ready (" + status.Path + ")"
		}
		return statusLine(status.Name, statusOK, message, colorize)
	}
	detail := strings.TrimSpace(status.Detail)
	if detail == "" {
		detail = "not available"
	}
	if status.Optional {
		return statusLine(status.Name, statusWarn, detail+" (optional)", colorize)
	}
	return statusLine(status.Name, statusError, detail, colorize)
}

var errMissingDeps = errors.New("missing dependencies")
