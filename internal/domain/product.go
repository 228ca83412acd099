package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ProductMetadata represents a product detected on an e-commerce page.
// It is replaced wholesale on every detection pass, never mutated.
type ProductMetadata struct {
	Name     string `json:"name" validate:"required"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
	URL      string `json:"url,omitempty" validate:"omitempty,url"`
}

// Valid reports whether p passes the shape check applied at every trust boundary:
// a non-blank name and, when set, a well-formed URL.
func (p *ProductMetadata) Valid() bool {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return false
	}
	return validate.Struct(p) == nil
}

// IsURL reports whether s is well-formed under the same rule as ProductMetadata.URL.
func IsURL(s string) bool {
	return validate.Var(s, "url") == nil
}

// Sanitize returns a copy of p that passes Valid, or nil when p has no name.
// A malformed URL is dropped, never the product.
func (p *ProductMetadata) Sanitize() *ProductMetadata {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return nil
	}
	c := *p
	if c.URL != "" && !IsURL(c.URL) {
		c.URL = ""
	}
	if !c.Valid() {
		return nil
	}
	return &c
}

// Clone returns a copy of p, or nil.
func (p *ProductMetadata) Clone() *ProductMetadata {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
