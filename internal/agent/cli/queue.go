package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"innexbot/internal/delivery"
)

// FlushOptions holds flags for the flush command.
type FlushOptions struct {
	*RootOptions
	Watch    bool
	Interval time.Duration
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Redeliver audits parked in the retry queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep flushing on an interval until interrupted")
	cmd.Flags().DurationVar(&opts.Interval, "interval", delivery.DefaultFlushInterval, "flush interval with --watch")
	return cmd
}

func runFlush(cmd *cobra.Command, opts *FlushOptions) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	a, err := openAgent(ctx, opts.RootOptions, cmd.ErrOrStderr(), delivery.WithFlushInterval(opts.Interval))
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open agent state", err)
	}
	defer a.Close()

	report, err := a.pipeline.FlushQueue(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "failed to flush retry queue", err)
	}
	if opts.Watch {
		out.VerboseLog("watching retry queue every %s", opts.Interval)
		if err := a.pipeline.Run(ctx); err != nil {
			return out.Fail(ExitFailure, "retry loop stopped", err)
		}
	}
	return out.Success(report, func(w io.Writer) {
		fmt.Fprintf(w, "Attempted %d, delivered %d, rejected %d, dropped %d, %d remaining\n",
			report.Attempted, report.Delivered, report.Rejected, report.Dropped, report.Remaining)
	})
}

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	*RootOptions
	Clear bool
}

// QueueView lists queued deliveries without their payloads.
type QueueView struct {
	Entries []QueueEntry `json:"entries"`
}

type QueueEntry struct {
	ID         string    `json:"id"`
	AuditID    string    `json:"auditId"`
	Score      int       `json:"score"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List or clear audits waiting for redelivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "discard every queued audit")
	return cmd
}

func runQueue(cmd *cobra.Command, opts *QueueOptions) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	a, err := openAgent(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open agent state", err)
	}
	defer a.Close()

	queue := a.pipeline.Queue()
	if opts.Clear {
		if err := queue.Clear(ctx); err != nil {
			return out.Fail(ExitFailure, "failed to clear retry queue", err)
		}
		out.VerboseLog("retry queue cleared")
	}
	entries, err := queue.Entries(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "failed to read retry queue", err)
	}

	view := QueueView{Entries: make([]QueueEntry, 0, len(entries))}
	for _, e := range entries {
		view.Entries = append(view.Entries, QueueEntry{
			ID:         e.ID,
			AuditID:    e.Payload.AuditID,
			Score:      e.Payload.Score,
			EnqueuedAt: e.EnqueuedAt,
			Attempts:   e.Attempts,
		})
	}
	return out.Success(view, func(w io.Writer) {
		if len(view.Entries) == 0 {
			fmt.Fprintln(w, "Retry queue is empty")
			return
		}
		for _, e := range view.Entries {
			fmt.Fprintf(w, "%s  audit %s  score %d  attempts %d  queued %s\n",
				e.ID, e.AuditID, e.Score, e.Attempts, e.EnqueuedAt.Format(time.RFC3339))
		}
	})
}
