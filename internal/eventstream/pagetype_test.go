package eventstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPage(t *testing.T) {
	tests := []struct {
		url  string
		want PageType
	}{
		{"https://shop.example.com", PageHomepage},
		{"https://shop.example.com/", PageHomepage},
		{"https://shop.example.com/index.html", PageHomepage},
		{"/HOME", PageHomepage},
		{"https://shop.example.com/product/red-shoe", PageProductDetail},
		{"https://shop.example.com/products/red-shoe", PageProductDetail},
		{"https://shop.example.com/p/123", PageProductDetail},
		{"https://shop.example.com/collections/summer", PageProductList},
		{"https://shop.example.com/category/shoes?page=2", PageProductList},
		{"https://shop.example.com/cart", PageCart},
		{"https://shop.example.com/basket", PageCart},
		{"https://shop.example.com/checkout/step-1", PageCheckout},
		{"https://shop.example.com/payment", PageCheckout},
		{"https://shop.example.com/thank-you", PageConfirmation},
		{"https://shop.example.com/order-complete", PageConfirmation},
		{"https://shop.example.com/about-us", PageOther},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPage(tt.url))
		})
	}
}

func TestBaseDomain(t *testing.T) {
	tests := map[string]string{
		"https://www.shop.example.com/cart": "shop.example.com",
		"https://shop.example.com/":         "shop.example.com",
		"https://other.example.com":         "other.example.com",
		"http://WWW.Example.COM:8080/x":     "example.com",
		"shop.example.com":                  "shop.example.com",
		"www.example.com/path":              "example.com",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, BaseDomain(in))
		})
	}
}
