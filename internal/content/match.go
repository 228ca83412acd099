package content

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultMatchPatterns are the pages the content scanner attaches to.
var DefaultMatchPatterns = []string{
	"https://*.amazon.com/*",
	"https://*.alibaba.com/*",
	"https://*.aliexpress.com/*",
	"https://*.ebay.com/*",
	"https://*.walmart.com/*",
	"https://*.jd.com/*",
	"https://*.taobao.com/*",
	"https://*.tmall.com/*",
	"https://*.shopee.com/*",
	"https://*.mercadolibre.com/*",
	"https://*.etsy.com/*",
	"https://*.flipkart.com/*",
	"https://*.rakuten.com/*",
	"https://*.ozon.ru/*",
	"https://*.pinduoduo.com/*",
	"https://*.target.com/*",
	"https://*.lazada.com/*",
	"https://*.zalando.com/*",
	"https://*.asos.com/*",
	"https://*.wayfair.com/*",
	"https://*.noon.com/*",
	"https://*.meesho.com/*",
}

type matchPattern struct {
	scheme     string
	host       string
	subdomains bool
	path       *regexp.Regexp
}

// Matcher tests URLs against extension-style match patterns
// ("scheme://host/path", "*." host prefix, "*" path glob).
type Matcher struct {
	patterns []matchPattern
}

// NewMatcher compiles patterns. Malformed patterns are skipped.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		if mp, ok := parsePattern(p); ok {
			m.patterns = append(m.patterns, mp)
		}
	}
	return m
}

func parsePattern(p string) (matchPattern, bool) {
	scheme, rest, ok := strings.Cut(p, "://")
	if !ok {
		return matchPattern{}, false
	}
	host, path, ok := strings.Cut(rest, "/")
	if !ok || host == "" {
		return matchPattern{}, false
	}

	mp := matchPattern{scheme: scheme}
	switch {
	case host == "*":
		mp.subdomains = true
	case strings.HasPrefix(host, "*."):
		mp.host = strings.ToLower(host[2:])
		mp.subdomains = true
	default:
		mp.host = strings.ToLower(host)
	}

	glob := "^/" + strings.ReplaceAll(regexp.QuoteMeta(path), `\*`, ".*") + "$"
	re, err := regexp.Compile(glob)
	if err != nil {
		return matchPattern{}, false
	}
	mp.path = re
	return mp, true
}

// Matches reports whether rawURL matches any pattern.
func (m *Matcher) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	for _, p := range m.patterns {
		if p.scheme != "*" && p.scheme != u.Scheme {
			continue
		}
		if p.scheme == "*" && u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if !p.matchHost(host) {
			continue
		}
		if p.path.MatchString(path) {
			return true
		}
	}
	return false
}

func (p matchPattern) matchHost(host string) bool {
	if p.host == "" {
		return p.subdomains
	}
	if host == p.host {
		return true
	}
	return p.subdomains && strings.HasSuffix(host, "."+p.host)
}
