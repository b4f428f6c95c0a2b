package eventstream

import (
	"net/url"
	"strings"
)

// PageType classifies a storefront page by its URL path.
type PageType string

const (
	PageHomepage      PageType = "homepage"
	PageProductDetail PageType = "pdp"
	PageProductList   PageType = "plp"
	PageCart          PageType = "cart"
	PageCheckout      PageType = "checkout"
	PageConfirmation  PageType = "confirmation"
	PageOther         PageType = "other"
)

var pagePatterns = []struct {
	page     PageType
	segments []string
}{
	{PageProductDetail, []string{"/product", "/item", "/p/", "/pd/"}},
	{PageProductList, []string{"/category", "/collection", "/shop", "/products"}},
	{PageCart, []string{"/cart", "/basket"}},
	{PageCheckout, []string{"/checkout", "/payment"}},
	{PageConfirmation, []string{"/confirmation", "/thank-you", "/success", "/order-complete"}},
}

// ClassifyPage derives the page type from a URL or bare path. Patterns are
// tried in order, so "/products/shoes" is a product page.
func ClassifyPage(rawURL string) PageType {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)

	switch path {
	case "", "/", "/index.html", "/home":
		return PageHomepage
	}
	for _, p := range pagePatterns {
		for _, seg := range p.segments {
			if strings.Contains(path, seg) {
				return p.page
			}
		}
	}
	return PageOther
}
