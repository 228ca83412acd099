package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sentimentiq/backend/internal/domain"
)

// MaxJSONLDDepth bounds the product search through a parsed JSON-LD tree.
const MaxJSONLDDepth = 32

// maxParseDepth rejects pathologically nested blocks before they are searched.
const maxParseDepth = 256

var errTooDeep = errors.New("json-ld nesting too deep")

// Kind is the type of a Node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Member is one key/value pair of an object Node, in document order.
type Member struct {
	Key   string
	Value *Node
}

// Node is a generic JSON value that keeps object keys in document order.
type Node struct {
	Kind    Kind
	Bool    bool
	Number  json.Number
	Str     string
	Items   []*Node
	Members []Member
}

// Get returns the value of key on an object node. Duplicate keys resolve to the last one.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	var found *Node
	for _, m := range n.Members {
		if m.Key == key {
			found = m.Value
		}
	}
	return found
}

// Text returns the node's text if it is a string node.
func (n *Node) Text() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return n.Str, true
}

// ParseJSONLD decodes one structured-data block.
func ParseJSONLD(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := parseValue(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after json-ld value")
	}
	return node, nil
}

func parseValue(dec *json.Decoder, depth int) (*Node, error) {
	if depth > maxParseDepth {
		return nil, errTooDeep
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case nil:
		return &Node{Kind: KindNull}, nil
	case bool:
		return &Node{Kind: KindBool, Bool: v}, nil
	case json.Number:
		return &Node{Kind: KindNumber, Number: v}, nil
	case string:
		return &Node{Kind: KindString, Str: v}, nil
	case json.Delim:
		switch v {
		case '[':
			node := &Node{Kind: KindArray}
			for dec.More() {
				item, err := parseValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				node.Items = append(node.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '{':
			node := &Node{Kind: KindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := parseValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				node.Members = append(node.Members, Member{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		}
	}
	return nil, fmt.Errorf("unexpected json token %v", tok)
}

// findProduct searches node depth-first in document order for the first
// Product-typed object carrying a non-blank name.
func findProduct(node *Node, pageURL string, depth int) *domain.ProductMetadata {
	if node == nil || depth > MaxJSONLDDepth {
		return nil
	}

	switch node.Kind {
	case KindArray:
		for _, item := range node.Items {
			if p := findProduct(item, pageURL, depth+1); p != nil {
				return p
			}
		}
	case KindObject:
		if isProductType(node.Get("@type")) {
			if p := productFromNode(node, pageURL); p != nil {
				return p
			}
		}
		for _, m := range node.Members {
			if m.Value.Kind != KindArray && m.Value.Kind != KindObject {
				continue
			}
			if p := findProduct(m.Value, pageURL, depth+1); p != nil {
				return p
			}
		}
	}
	return nil
}

// isProductType matches a string @type containing "Product" or a list
// holding the exact "Product" entry.
func isProductType(t *Node) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindString:
		return strings.Contains(t.Str, "Product")
	case KindArray:
		for _, item := range t.Items {
			if s, ok := item.Text(); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func productFromNode(node *Node, pageURL string) *domain.ProductMetadata {
	name, ok := node.Get("name").Text()
	if !ok || strings.TrimSpace(name) == "" {
		return nil
	}

	product := &domain.ProductMetadata{Name: name}

	if brand := node.Get("brand"); brand != nil {
		if s, ok := brand.Text(); ok {
			product.Brand = s
		} else if s, ok := brand.Get("name").Text(); ok {
			product.Brand = s
		}
	}
	if s, ok := node.Get("category").Text(); ok {
		product.Category = s
	}
	ref, _ := node.Get("url").Text()
	product.URL = productURL(pageURL, ref)
	return product
}

// productURL resolves ref against the page. A result that is still not a
// well-formed URL falls back to the page address, or to nothing.
func productURL(pageURL, ref string) string {
	if ref = strings.TrimSpace(ref); ref != "" {
		if u := resolveURL(pageURL, ref); domain.IsURL(u) {
			return u
		}
	}
	if domain.IsURL(pageURL) {
		return pageURL
	}
	return ""
}

// resolveURL keeps absolute references verbatim, completes scheme-less
// host references and resolves relative ones against the page.
func resolveURL(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return ref
	}
	if isSchemeless(ref, base.Hostname()) {
		return base.Scheme + "://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}

// isSchemeless reports whether ref starts with a bare host, as in
// "www.amazon.com/dp/B01".
func isSchemeless(ref, pageHost string) bool {
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, ".") || strings.Contains(ref, "://") {
		return false
	}
	host, _, _ := strings.Cut(ref, "/")
	host = strings.ToLower(host)
	if host == "" || strings.ContainsAny(host, "?#:@") {
		return false
	}
	pageHost = strings.ToLower(pageHost)
	return strings.HasPrefix(host, "www.") ||
		host == pageHost ||
		strings.HasSuffix(pageHost, "."+host) ||
		strings.HasSuffix(host, "."+pageHost)
}
