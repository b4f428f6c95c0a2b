package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"innexbot/internal/storage"
)

// ConsentStatus reports the agent's data sharing state.
type ConsentStatus struct {
	DataSharing   string     `json:"dataSharing"`
	InstallDate   *time.Time `json:"installDate,omitempty"`
	LastAuditSent *time.Time `json:"lastAuditSent,omitempty"`
}

// NewConsentCommand creates the consent command.
func NewConsentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "consent [enable|disable]",
		Short:     "Show or set whether completed audits are shared with the collector",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"enable", "disable"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			a, err := openAgent(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return out.Fail(ExitCommandError, "failed to open agent state", err)
			}
			defer a.Close()

			if len(args) == 1 {
				if err := a.local.SetDataSharing(ctx, args[0] == "enable"); err != nil {
					return out.Fail(ExitFailure, "failed to save data sharing preference", err)
				}
			}

			status, err := readConsent(cmd, a.local)
			if err != nil {
				return out.Fail(ExitFailure, "failed to read agent state", err)
			}
			return out.Success(status, func(w io.Writer) {
				fmt.Fprintf(w, "Data sharing: %s\n", status.DataSharing)
				if status.InstallDate != nil {
					fmt.Fprintf(w, "Installed: %s\n", status.InstallDate.Format(time.RFC3339))
				}
				if status.LastAuditSent != nil {
					fmt.Fprintf(w, "Last audit sent: %s\n", status.LastAuditSent.Format(time.RFC3339))
				}
			})
		},
	}
}

func readConsent(cmd *cobra.Command, local *storage.Local) (ConsentStatus, error) {
	ctx := cmd.Context()
	sharing, err := local.DataSharing(ctx)
	if err != nil {
		return ConsentStatus{}, err
	}
	status := ConsentStatus{DataSharing: sharing.String()}
	installed, err := local.InstallDate(ctx)
	if err != nil {
		return ConsentStatus{}, err
	}
	if !installed.IsZero() {
		status.InstallDate = &installed
	}
	sent, err := local.LastAuditSent(ctx)
	if err != nil {
		return ConsentStatus{}, err
	}
	if !sent.IsZero() {
		status.LastAuditSent = &sent
	}
	return status, nil
}
