package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(3*time.Minute + 45*time.Second)
	checks := []EventCheck{
		{EventType: "pageview", Found: true, Weight: 15, Category: "navigation"},
		{EventType: "add_to_cart", Found: true, Weight: 25, Category: "cart"},
		{EventType: "purchase", Weight: 5, Category: "conversion", Skipped: true},
	}

	doc := NewDocument("a-1", checks, Meta{CompletedAt: end, StartedAt: start})

	assert.Equal(t, 100, doc.Score)
	assert.Equal(t, "excellent", doc.HealthStatus)
	assert.Equal(t, 3, doc.TotalTests)
	assert.Equal(t, 2, doc.SuccessfulTests)
	assert.Equal(t, 0, doc.FailedTests)
	assert.Equal(t, 1, doc.SkippedTests)
	assert.Equal(t, "3m 45s", doc.Duration)
	assert.Equal(t, ExtensionVersion, doc.ExtensionVersion)
	assert.False(t, doc.IsShopify)
	assert.Nil(t, doc.ShopifyInfo)
}

func TestDocumentFields(t *testing.T) {
	doc := NewDocument("a-2", []EventCheck{{EventType: "pageview", Weight: 15}}, Meta{
		CompletedAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		Shopify:     &ShopifyInfo{Method: "meta", Shop: "demo.myshopify.com"},
	})

	fields, err := doc.Fields()
	require.NoError(t, err)

	assert.Equal(t, "a-2", fields["auditId"])
	assert.Equal(t, "2026-06-01T09:00:00Z", fields["timestamp"])
	assert.Equal(t, true, fields["isShopify"])
	assert.Equal(t, float64(0), fields["score"])
	assert.NotContains(t, fields, "duration")

	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	var back Document
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, doc, back)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "1m 0s", FormatDuration(time.Minute))
	assert.Equal(t, "12m 3s", FormatDuration(12*time.Minute+3400*time.Millisecond))
}

func TestChecklist_Validate(t *testing.T) {
	assert.NoError(t, DefaultChecklist().Validate())
	assert.Equal(t, float64(100), DefaultChecklist().TotalWeight())
	assert.ErrorIs(t, Checklist{}.Validate(), ErrEmptyChecklist)

	tests := []struct {
		name string
		item CheckItem
	}{
		{"blank event type", CheckItem{EventType: " ", Weight: 10, Category: "c", Instruction: "i"}},
		{"negative weight", CheckItem{EventType: "pageview", Weight: -1, Category: "c", Instruction: "i"}},
		{"weight over 100", CheckItem{EventType: "pageview", Weight: 101, Category: "c", Instruction: "i"}},
		{"missing category", CheckItem{EventType: "pageview", Weight: 10, Instruction: "i"}},
		{"missing instruction", CheckItem{EventType: "pageview", Weight: 10, Category: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Checklist{DefaultChecklist()[0], tt.item}.Validate()
			assert.ErrorIs(t, err, ErrInvalidItem)
			assert.Contains(t, err.Error(), "item 1")
		})
	}
}
