package service

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"innexbot/internal/audit"
	"innexbot/internal/collector/models"
	"innexbot/internal/scoring"
	dErrors "innexbot/pkg/domain-errors"
	"innexbot/pkg/platform/sanitize"
)

// MessageSensitiveData describes a forbidden-field rejection.
const MessageSensitiveData = "This endpoint does not accept personal or sensitive data"

var requiredFields = []string{"timestamp", "extensionVersion", "score", "healthStatus", "eventsChecked"}

var durationPattern = regexp.MustCompile(`(?:(\d+)m\s*)?(\d+)s`)

// ForbiddenFieldError names the first blocked key found in a submission.
type ForbiddenFieldError struct {
	Field string
}

func (e *ForbiddenFieldError) Error() string {
	return "forbidden field detected: " + e.Field
}

func (e *ForbiddenFieldError) FieldName() string { return e.Field }

// parseSubmission validates a decoded JSON body and converts it into a record.
// Sensitive keys are checked first so nothing else is read from a body
// carrying personal data.
func parseSubmission(body map[string]any, policy sanitize.Policy) (models.AuditRecord, error) {
	if field, found := policy.Detect(body); found {
		return models.AuditRecord{}, dErrors.Wrap(&ForbiddenFieldError{Field: field}, dErrors.CodeValidation, MessageSensitiveData)
	}

	var missing []string
	for _, f := range requiredFields {
		if v, ok := body[f]; !ok || v == nil || v == "" {
			missing = append(missing, f)
		}
	}
	if _, ok := body["eventsChecked"].([]any); !ok && !contains(missing, "eventsChecked") {
		missing = append(missing, "eventsChecked")
	}
	if len(missing) > 0 {
		return models.AuditRecord{}, dErrors.New(dErrors.CodeValidation, "missing required fields: "+strings.Join(missing, ", "))
	}

	var rec models.AuditRecord

	score, ok := body["score"].(float64)
	if !ok || score < 0 || score > 100 || score != math.Trunc(score) {
		return rec, dErrors.New(dErrors.CodeValidation, "score must be an integer between 0 and 100")
	}
	rec.Score = int(score)

	ts, _ := body["timestamp"].(string)
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return rec, dErrors.New(dErrors.CodeValidation, "timestamp must be a valid ISO-8601 date string")
	}
	rec.Timestamp = parsed.UTC()

	if rec.ExtensionVersion, ok = body["extensionVersion"].(string); !ok {
		return rec, dErrors.New(dErrors.CodeValidation, "extensionVersion must be a string")
	}
	if rec.HealthStatus, ok = body["healthStatus"].(string); !ok {
		return rec, dErrors.New(dErrors.CodeValidation, "healthStatus must be a string")
	}

	checks, err := parseChecks(body["eventsChecked"].([]any))
	if err != nil {
		return rec, err
	}
	rec.EventsChecked = checks

	outcomes := make([]scoring.Outcome, len(checks))
	for i, c := range checks {
		outcomes[i] = scoring.Outcome{Weight: c.Weight, Found: c.Found, Skipped: c.Skipped}
	}
	derived := scoring.Count(outcomes)
	counts := []struct {
		key      string
		dst      *int
		fallback int
	}{
		{"totalTests", &rec.TotalTests, derived.Total},
		{"successfulTests", &rec.SuccessfulTests, derived.Successful},
		{"failedTests", &rec.FailedTests, derived.Failed},
		{"skippedTests", &rec.SkippedTests, derived.Skipped},
	}
	for _, c := range counts {
		n, err := optionalCount(body, c.key)
		if err != nil {
			return rec, err
		}
		if n < 0 {
			n = c.fallback
		}
		*c.dst = n
	}

	if id, ok := body["auditId"].(string); ok {
		rec.AuditID = strings.TrimSpace(id)
	}
	if d, ok := body["duration"].(string); ok {
		rec.DurationSeconds = ParseDuration(d)
	}
	rec.IsShopify, _ = body["isShopify"].(bool)
	if info, ok := body["shopifyInfo"].(map[string]any); ok {
		method, _ := info["method"].(string)
		shop, _ := info["shop"].(string)
		rec.ShopifyInfo = &audit.ShopifyInfo{Method: method, Shop: shop}
	}
	return rec, nil
}

func parseChecks(raw []any) ([]audit.EventCheck, error) {
	invalid := dErrors.New(dErrors.CodeValidation, "each event must have eventType, found (boolean), and weight (number)")
	checks := make([]audit.EventCheck, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalid
		}
		eventType, _ := m["eventType"].(string)
		found, okFound := m["found"].(bool)
		weight, okWeight := m["weight"].(float64)
		if eventType == "" || !okFound || !okWeight {
			return nil, invalid
		}
		category, _ := m["category"].(string)
		skipped, _ := m["skipped"].(bool)
		checks = append(checks, audit.EventCheck{
			EventType: eventType,
			Found:     found,
			Weight:    weight,
			Category:  category,
			Skipped:   skipped,
		})
	}
	return checks, nil
}

// optionalCount returns -1 when key is absent.
func optionalCount(body map[string]any, key string) (int, error) {
	v, ok := body[key]
	if !ok || v == nil {
		return -1, nil
	}
	n, ok := v.(float64)
	if !ok || n < 0 || n != math.Trunc(n) {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be a non-negative number", key))
	}
	return int(n), nil
}

// ParseDuration converts "3m 45s" or "45s" into seconds. It returns nil when
// s does not match.
func ParseDuration(s string) *int {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	minutes, _ := strconv.Atoi(m[1])
	seconds, _ := strconv.Atoi(m[2])
	total := minutes*60 + seconds
	return &total
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
