package session

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"innexbot/internal/audit"
	"innexbot/internal/scoring"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Export is the operator-facing report of a session, including payload data
// and messages that are never transmitted.
type Export struct {
	Timestamp        time.Time      `json:"timestamp" yaml:"timestamp"`
	ExtensionVersion string         `json:"extensionVersion" yaml:"extensionVersion"`
	AuditID          string         `json:"auditId" yaml:"auditId"`
	Domain           string         `json:"domain" yaml:"domain"`
	Score            int            `json:"score" yaml:"score"`
	HealthStatus     string         `json:"healthStatus" yaml:"healthStatus"`
	Results          []StepResult   `json:"results" yaml:"results"`
	Summary          scoring.Counts `json:"summary" yaml:"summary"`
}

// Export builds a report of the current session.
func (m *Machine) Export() Export {
	st := m.State()
	return Export{
		Timestamp:        m.now().UTC(),
		ExtensionVersion: audit.ExtensionVersion,
		AuditID:          st.AuditID,
		Domain:           st.Domain,
		Score:            st.Score(),
		HealthStatus:     string(st.Health()),
		Results:          st.Results,
		Summary:          scoring.Count(st.outcomes()),
	}
}

// FileName is the suggested name for the export at its timestamp.
func (e Export) FileName(format Format) string {
	ext := "json"
	if format == FormatYAML {
		ext = "yaml"
	}
	return fmt.Sprintf("innexbot-audit-%d.%s", e.Timestamp.UnixMilli(), ext)
}

// Encode writes e to w. JSON is indented.
func (e Export) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(e); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
