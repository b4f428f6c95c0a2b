package matcher

import (
	"strings"

	pstrings "innexbot/pkg/platform/strings"
)

// synonyms lists spellings seen in the wild for the default checklist events,
// keyed by snake_case canonical name.
var synonyms = map[string][]string{
	"pageview":       {"page_view", "PageView", "page-view", "pageView"},
	"view_item":      {"viewItem", "ViewItem", "view-item", "product_view", "productView"},
	"view_item_list": {"viewItemList", "ViewItemList", "view-item-list", "product_list_view"},
	"add_to_cart":    {"addToCart", "AddToCart", "add-to-cart", "addtocart", "cart_add"},
	"begin_checkout": {"beginCheckout", "BeginCheckout", "begin-checkout", "checkout_start"},
	"purchase":       {"Purchase", "transaction", "order_complete", "orderComplete"},
}

// Variants returns the accepted spellings of an event name: the name as given,
// its snake_case, concatenated, camelCase, PascalCase and kebab-case forms,
// then any known synonyms. Duplicates are removed, order is stable.
func Variants(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	snake := pstrings.SnakeCase(name)
	variants := []string{
		name,
		snake,
		pstrings.Concat(name),
		pstrings.CamelCase(name),
		pstrings.PascalCase(name),
		pstrings.KebabCase(name),
	}
	variants = append(variants, synonyms[snake]...)
	return pstrings.DedupeAndTrim(variants)
}

// variantSet is the case-folded lookup form of Variants.
func variantSet(name string) map[string]struct{} {
	return pstrings.Set(Variants(name))
}
