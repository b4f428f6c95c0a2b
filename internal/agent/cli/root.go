// Package cli implements the innexbot agent command line: it replays a
// captured data layer through an audit session and manages the agent's
// local state and delivery queue.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"innexbot/internal/platform/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	Format       string // "json" | "text"
	CollectorURL string
	APIKey       string
	ExtensionID  string
	StatePath    string
	RedisURL     string
	OTLPEndpoint string
	LogLevel     string

	redis config.RedisConfig
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// MemoryState keeps agent state in process memory for the run only.
const MemoryState = ":memory:"

// NewRootCommand creates the root command. Flag defaults come from the
// environment.
func NewRootCommand() *cobra.Command {
	env := config.AgentFromEnv()
	opts := &RootOptions{redis: env.Redis}

	cmd := &cobra.Command{
		Use:   "innexbot",
		Short: "InnexBot - e-commerce analytics audit agent",
		Long: `Audit the analytics events a shop emits against a weighted checklist,
score the result and deliver it to an InnexBot collector.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				msg := fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", msg)
				return NewExitError(ExitCommandError, msg)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.CollectorURL, "collector", env.CollectorURL, "collector base URL")
	flags.StringVar(&opts.APIKey, "api-key", env.APIKey, "collector API key")
	flags.StringVar(&opts.ExtensionID, "extension-id", env.ExtensionID, "extension identifier sent with submissions")
	flags.StringVar(&opts.StatePath, "state", env.StatePath, "SQLite state file, or "+MemoryState)
	flags.StringVar(&opts.RedisURL, "redis", env.Redis.URL, "Redis URL for shared agent state (overrides --state)")
	flags.StringVar(&opts.OTLPEndpoint, "otlp-endpoint", env.OTLPEndpoint, "OTLP/HTTP endpoint for trace export")
	flags.StringVar(&opts.LogLevel, "log-level", env.LogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewFlushCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewConsentCommand(opts))
	cmd.AddCommand(NewChecklistCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewRecentCommand(opts))

	return cmd
}
