package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"innexbot/internal/eventstream"
	"innexbot/internal/page"
	"innexbot/internal/scoring"
	"innexbot/internal/session"
	"innexbot/internal/storage"
	dErrors "innexbot/pkg/domain-errors"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	URL       string
	Skip      []string
	Checklist string
	Export    string
	Restart   bool
	Share     string
	NoFlush   bool
}

// Capture is a recorded page: its location, the data layer entries it
// emitted and the tracking signals detected beside them. A bare JSON array
// of events is accepted as a capture without URL or signals.
type Capture struct {
	URL     string              `json:"url"`
	Events  []eventstream.Event `json:"events"`
	Signals CaptureSignals      `json:"signals"`
}

type CaptureSignals struct {
	HasGTM        bool   `json:"hasGTM"`
	HasGA4        bool   `json:"hasGA4"`
	IsShopify     bool   `json:"isShopify"`
	ShopifyMethod string `json:"shopifyMethod"`
	ShopifyShop   string `json:"shopifyShop"`
}

// AuditSummary is what the audit command reports.
type AuditSummary struct {
	AuditID         string               `json:"auditId"`
	Domain          string               `json:"domain"`
	ChecklistSource string               `json:"checklistSource"`
	Status          session.Status       `json:"status"`
	Score           int                  `json:"score"`
	HealthStatus    string               `json:"healthStatus"`
	Results         []session.StepResult `json:"results"`
	Summary         scoring.Counts       `json:"summary"`
	TrackingWarning bool                 `json:"trackingWarning,omitempty"`
	Receipt         *auditReceipt        `json:"receipt,omitempty"`
	SendError       string               `json:"sendError,omitempty"`
	ExportPath      string               `json:"exportPath,omitempty"`
}

type auditReceipt struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit <capture.json>",
		Short: "Replay a captured data layer through an audit",
		Long: `Replay a captured data layer through the checklist, one step at a time.
Each step is checked against the recorded events unless it is skipped.
A completed audit is delivered to the collector once data sharing is enabled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "page URL (overrides the capture's url)")
	cmd.Flags().StringArrayVar(&opts.Skip, "skip", nil, "event type to skip (repeatable)")
	cmd.Flags().StringVar(&opts.Checklist, "checklist", "", "YAML checklist overriding remote and stored configuration")
	cmd.Flags().StringVar(&opts.Export, "export", "", "write the report to this file or directory (.json or .yaml)")
	cmd.Flags().BoolVar(&opts.Restart, "restart", false, "discard any resumable session for the domain")
	cmd.Flags().StringVar(&opts.Share, "share", "", "record the data sharing decision (yes|no)")
	cmd.Flags().BoolVar(&opts.NoFlush, "no-flush", false, "do not drain the retry queue before auditing")

	return cmd
}

func runAudit(cmd *cobra.Command, opts *AuditOptions, capturePath string) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	share, err := parseShare(opts.Share)
	if err != nil {
		return out.Fail(ExitCommandError, "invalid --share", err)
	}
	capture, err := LoadCapture(capturePath)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to read capture", err)
	}
	if opts.URL != "" {
		capture.URL = opts.URL
	}
	if eventstream.BaseDomain(capture.URL) == "" {
		return out.Fail(ExitCommandError, "page URL is required (set --url or the capture's url)", nil)
	}
	if err := validateChecklistFile(opts.Checklist); err != nil {
		return out.Fail(ExitCommandError, "invalid checklist file", err)
	}

	a, err := openAgent(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open agent state", err)
	}
	defer a.Close()

	if !opts.NoFlush {
		report, err := a.pipeline.FlushQueue(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "retry queue flush failed", "error", err)
		} else if report.Attempted > 0 {
			out.VerboseLog("retry queue: %d delivered, %d remaining", report.Delivered, report.Remaining)
		}
	}

	host := eventstream.NewPage(capture.URL)
	host.SetSignals(eventstream.Signals(capture.Signals))
	host.Attach(eventstream.NewLayer(capture.Events...))
	recorder := eventstream.New(host, eventstream.WithLogger(a.logger))
	if err := recorder.Initialize(ctx); err != nil {
		return out.Fail(ExitCommandError, "failed to observe data layer", err)
	}
	defer recorder.Close()

	checklist, source := session.ResolveChecklist(ctx, a.logger, a.checklistSources(opts.Checklist)...)
	out.VerboseLog("checklist: %d items from %s", len(checklist), source)

	machine := session.New(a.store, page.NewEndpoint(recorder, page.WithLogger(a.logger)),
		session.WithLogger(a.logger),
		session.WithChecklist(checklist),
		session.WithDeliverer(a.pipeline),
		session.WithConsent(a.local),
	)
	st, err := machine.Resume(ctx, capture.URL)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to start audit", err)
	}
	if opts.Restart && len(st.Results) > 0 {
		if st, err = machine.Restart(ctx); err != nil {
			return out.Fail(ExitFailure, "failed to restart audit", err)
		}
	}
	if st.TrackingWarning {
		out.VerboseLog("warning: no data layer or tracking library detected on %s", st.Domain)
	}

	for !st.Complete {
		item, _ := st.Current()
		if slices.Contains(opts.Skip, item.EventType) {
			_, err = machine.SkipStep(ctx)
		} else {
			_, err = machine.CheckStep(ctx)
		}
		if err != nil {
			return out.Fail(ExitFailure, fmt.Sprintf("step %q failed", item.EventType), err)
		}
		st = machine.State()
	}
	if share != nil {
		st = machine.SetDataSharing(ctx, *share)
	}

	report := machine.Export()
	summary := summarize(st, source)
	summary.Summary = report.Summary
	if opts.Export != "" {
		path, err := writeExport(report, opts.Export)
		if err != nil {
			return out.Fail(ExitFailure, "failed to write export", err)
		}
		summary.ExportPath = path
	}
	return out.Success(summary, func(w io.Writer) { renderAudit(w, summary) })
}

// LoadCapture reads a capture file.
func LoadCapture(path string) (Capture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Capture{}, err
	}
	var c Capture
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(raw, &c.Events)
	} else {
		err = json.Unmarshal(raw, &c)
	}
	if err != nil {
		return Capture{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed capture")
	}
	return c, nil
}

// checklistSources orders checklist sources by precedence: an explicit file,
// the collector when an API key is configured, its cached answer, then the
// installed configuration.
func (a *agent) checklistSources(file string) []session.ChecklistSource {
	var sources []session.ChecklistSource
	if file != "" {
		sources = append(sources, session.FileChecklist(file))
	}
	if a.remote {
		sources = append(sources, session.RemoteChecklist(a.client, a.store))
	}
	return append(sources,
		session.StoredChecklist(a.store, storage.KeyRemoteConfig),
		session.StoredChecklist(a.store, storage.KeyAuditConfig),
	)
}

func parseShare(v string) (*bool, error) {
	var enabled bool
	switch strings.ToLower(v) {
	case "":
		return nil, nil
	case "yes", "y", "true":
		enabled = true
	case "no", "n", "false":
		enabled = false
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("want yes or no, got %q", v))
	}
	return &enabled, nil
}

// writeExport writes to target, or into it under the default file name when
// target is a directory. The extension picks the encoding.
func writeExport(e session.Export, target string) (string, error) {
	format := session.FormatJSON
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, e.FileName(format))
	} else if ext := strings.ToLower(filepath.Ext(target)); ext == ".yaml" || ext == ".yml" {
		format = session.FormatYAML
	}
	f, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if err := e.Encode(f, format); err != nil {
		_ = f.Close()
		return "", err
	}
	return target, f.Close()
}

func summarize(st session.State, source string) AuditSummary {
	s := AuditSummary{
		AuditID:         st.AuditID,
		Domain:          st.Domain,
		ChecklistSource: source,
		Status:          st.Status(),
		Score:           st.Score(),
		HealthStatus:    string(st.Health()),
		Results:         st.Results,
		TrackingWarning: st.TrackingWarning,
		SendError:       st.SendError,
	}
	if st.Receipt != nil {
		s.Receipt = &auditReceipt{Success: st.Receipt.Success, Queued: st.Receipt.Queued, Message: st.Receipt.Message}
	}
	if st.Complete && st.Receipt == nil && st.AwaitingConsent {
		s.Status = session.StatusAwaitingConsent
	}
	return s
}

func renderAudit(w io.Writer, s AuditSummary) {
	fmt.Fprintf(w, "Audit %s on %s\n", s.AuditID, s.Domain)
	for _, r := range s.Results {
		mark := "MISSING"
		switch {
		case r.Skipped:
			mark = "SKIPPED"
		case r.Found:
			mark = "FOUND"
		}
		line := fmt.Sprintf("  %-8s %-16s weight %g", mark, r.EventType, r.Weight)
		if r.Message != "" && !r.Found {
			line += "  (" + r.Message + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Score: %d (%s)\n", s.Score, s.HealthStatus)
	fmt.Fprintf(w, "Found %d of %d, %d skipped\n", s.Summary.Successful, s.Summary.Total, s.Summary.Skipped)
	switch {
	case s.Status == session.StatusAwaitingConsent:
		fmt.Fprintln(w, "Delivery: waiting for a data sharing decision (rerun with --share yes|no)")
	case s.Receipt != nil && s.Receipt.Queued:
		fmt.Fprintln(w, "Delivery: queued for retry")
	case s.Receipt != nil && s.Receipt.Success:
		msg := "sent"
		if s.Receipt.Message != "" {
			msg = s.Receipt.Message
		}
		fmt.Fprintf(w, "Delivery: %s\n", msg)
	case s.SendError != "":
		fmt.Fprintf(w, "Delivery failed: %s\n", s.SendError)
	}
	if s.TrackingWarning {
		fmt.Fprintln(w, "Warning: no data layer or tracking library detected")
	}
	if s.ExportPath != "" {
		fmt.Fprintf(w, "Report written to %s\n", s.ExportPath)
	}
}
