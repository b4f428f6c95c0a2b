package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"innexbot/internal/audit"
	"innexbot/internal/session"
)

// ChecklistView is the checklist an audit would run.
type ChecklistView struct {
	Source      string          `json:"source"`
	TotalWeight float64         `json:"totalWeight"`
	Items       audit.Checklist `json:"items"`
}

// NewChecklistCommand creates the checklist command.
func NewChecklistCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "checklist",
		Short: "Show the checklist the next audit will use",
		Long: `Show the checklist the next audit will use. A --file is validated and
takes precedence; otherwise the collector's checklist is fetched when an API
key is set, falling back to the cached copy and then the installed default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			if err := validateChecklistFile(file); err != nil {
				return out.Fail(ExitCommandError, "invalid checklist file", err)
			}

			a, err := openAgent(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return out.Fail(ExitCommandError, "failed to open agent state", err)
			}
			defer a.Close()

			list, source := session.ResolveChecklist(ctx, a.logger, a.checklistSources(file)...)
			view := ChecklistView{Source: source, TotalWeight: list.TotalWeight(), Items: list}
			return out.Success(view, func(w io.Writer) {
				fmt.Fprintf(w, "Checklist from %s (total weight %g)\n", view.Source, view.TotalWeight)
				for i, item := range view.Items {
					fmt.Fprintf(w, "%2d. %-16s %5g  %-10s %s\n", i+1, item.EventType, item.Weight, item.Category, item.Instruction)
				}
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "validate and preview a YAML checklist")
	return cmd
}

// validateChecklistFile rejects an explicit checklist override up front so a
// broken file is reported instead of silently falling back. An empty path is
// valid.
func validateChecklistFile(path string) error {
	if path == "" {
		return nil
	}
	list, err := session.LoadChecklistFile(path)
	if err != nil {
		return err
	}
	return list.Validate()
}
