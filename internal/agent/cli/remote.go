package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"innexbot/internal/client"
)

func newClient(opts *RootOptions) *client.Client {
	return client.New(opts.CollectorURL,
		client.WithAPIKey(opts.APIKey),
		client.WithExtensionID(opts.ExtensionID),
	)
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the collector is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			resp, err := newClient(rootOpts).Health(cmd.Context())
			if err != nil {
				return out.Fail(ExitFailure, "collector unreachable", err)
			}
			return out.Success(resp, func(w io.Writer) {
				uptime := time.Duration(resp.Uptime * float64(time.Second)).Round(time.Second)
				fmt.Fprintf(w, "Collector %s: %s (version %s, up %s)\n", rootOpts.CollectorURL, resp.Status, resp.Version, uptime)
			})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate audit statistics from the collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			stats, err := newClient(rootOpts).Stats(cmd.Context())
			if err != nil {
				return out.Fail(ExitFailure, "failed to fetch stats", err)
			}
			return out.Success(stats, func(w io.Writer) {
				fmt.Fprintf(w, "Audits: %d, average score %d\n", stats.TotalAudits, stats.AverageScore)
				bands := make([]string, 0, len(stats.ScoreDistribution))
				for band := range stats.ScoreDistribution {
					bands = append(bands, band)
				}
				sort.Strings(bands)
				for _, band := range bands {
					b := stats.ScoreDistribution[band]
					fmt.Fprintf(w, "  %-10s %d (%d%%)\n", band, b.Count, b.Percentage)
				}
				for _, e := range stats.MostFailedEvents {
					fmt.Fprintf(w, "  missing %s: %d\n", e.EventType, e.FailureCount)
				}
			})
		},
	}
}

// NewRecentCommand creates the recent command.
func NewRecentCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent audits stored by the collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			list, err := newClient(rootOpts).Recent(cmd.Context(), limit)
			if err != nil {
				return out.Fail(ExitFailure, "failed to list audits", err)
			}
			return out.Success(list, func(w io.Writer) {
				for _, r := range list.Audits {
					fmt.Fprintf(w, "%s  %s  score %3d  %s\n",
						r.ReceivedAt.Format(time.RFC3339), r.AuditID, r.Score, r.HealthStatus)
				}
				fmt.Fprintf(w, "%d audits\n", list.Count)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum audits to list (server default when 0)")
	return cmd
}
