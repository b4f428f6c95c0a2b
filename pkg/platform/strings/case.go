package strings

import (
	"strings"
	"unicode"
)

// Words splits an identifier into lowercase words. Underscores, hyphens,
// spaces and dots separate words, as does a lower-to-upper case boundary.
//
//	Words("addToCart")      // [add to cart]
//	Words("view-item_list") // [view item list]
func Words(s string) []string {
	var (
		words []string
		cur   []rune
		prev  rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return words
}

// SnakeCase joins words with underscores: add_to_cart.
func SnakeCase(s string) string {
	return strings.Join(Words(s), "_")
}

// KebabCase joins words with hyphens: add-to-cart.
func KebabCase(s string) string {
	return strings.Join(Words(s), "-")
}

// Concat joins words without a separator: addtocart.
func Concat(s string) string {
	return strings.Join(Words(s), "")
}

// CamelCase capitalises every word but the first: addToCart.
func CamelCase(s string) string {
	words := Words(s)
	for i := 1; i < len(words); i++ {
		words[i] = capitalize(words[i])
	}
	return strings.Join(words, "")
}

// PascalCase capitalises every word: AddToCart.
func PascalCase(s string) string {
	words := Words(s)
	for i := range words {
		words[i] = capitalize(words[i])
	}
	return strings.Join(words, "")
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
