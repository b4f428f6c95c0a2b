package audit

import (
	"errors"
	"fmt"
	"strings"
)

// CheckItem is one event an audit expects to find.
type CheckItem struct {
	EventType   string  `json:"eventType" yaml:"eventType"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Category    string  `json:"category" yaml:"category"`
	Instruction string  `json:"instruction" yaml:"instruction"`
}

// Checklist is an ordered list of items. Weights need not sum to 100.
type Checklist []CheckItem

var (
	ErrEmptyChecklist = errors.New("checklist is empty")
	ErrInvalidItem    = errors.New("invalid checklist item")
)

// DefaultChecklist is used when no operator configuration is available.
func DefaultChecklist() Checklist {
	return Checklist{
		{EventType: "pageview", Weight: 15, Category: "navigation", Instruction: "Visit the site's homepage"},
		{EventType: "view_item_list", Weight: 20, Category: "product", Instruction: "Open a category or collection page"},
		{EventType: "view_item", Weight: 20, Category: "product", Instruction: "Open a product page"},
		{EventType: "add_to_cart", Weight: 25, Category: "cart", Instruction: "Add a product to the cart"},
		{EventType: "begin_checkout", Weight: 15, Category: "checkout", Instruction: "Start the checkout process"},
		{EventType: "purchase", Weight: 5, Category: "conversion", Instruction: "Complete a purchase (if possible)"},
	}
}

// Validate checks the item's fields.
func (c CheckItem) Validate() error {
	switch {
	case strings.TrimSpace(c.EventType) == "":
		return fmt.Errorf("%w: eventType is required", ErrInvalidItem)
	case c.Weight < 0 || c.Weight > 100:
		return fmt.Errorf("%w: %s weight %v outside [0, 100]", ErrInvalidItem, c.EventType, c.Weight)
	case c.Category == "":
		return fmt.Errorf("%w: %s category is required", ErrInvalidItem, c.EventType)
	case c.Instruction == "":
		return fmt.Errorf("%w: %s instruction is required", ErrInvalidItem, c.EventType)
	}
	return nil
}

// Validate rejects an empty list or any invalid item.
func (l Checklist) Validate() error {
	if len(l) == 0 {
		return ErrEmptyChecklist
	}
	for i, item := range l {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// TotalWeight sums the weights, for display.
func (l Checklist) TotalWeight() float64 {
	var sum float64
	for _, item := range l {
		sum += item.Weight
	}
	return sum
}
