package extraction

import (
	"net/url"
	"strings"
)

// DefaultEcommerceKeywords are hostname fragments of known e-commerce sites.
// Matching is a plain substring test, so "target" also matches unrelated hosts.
var DefaultEcommerceKeywords = []string{
	"amazon", "ebay", "walmart", "aliexpress", "alibaba", "etsy", "target", "bestbuy",
	"jd.com", "taobao", "tmall", "shopee", "mercadolibre", "flipkart", "rakuten",
	"ozon", "pinduoduo", "lazada", "zalando", "asos", "wayfair", "noon", "meesho",
}

// hostname returns the lowercased host of pageURL without port.
func hostname(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// isEcommerceHost reports whether host contains any keyword.
func isEcommerceHost(host string, keywords []string) bool {
	if host == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(host, kw) {
			return true
		}
	}
	return false
}
