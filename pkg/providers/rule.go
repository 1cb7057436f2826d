package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// AttrText extracts the trimmed text content (default).
	AttrText = ""
	// AttrHTML extracts the inner HTML.
	AttrHTML = "html"
)

// Rule is a CSS extraction rule. In config it is either a bare selector
// string or a mapping with selector, attr and all.
type Rule struct {
	Selector string `json:"selector" yaml:"selector"`
	// Attr names an attribute to read; empty reads text, "html" reads inner HTML.
	Attr string `json:"attr" yaml:"attr"`
	// All collects every match instead of the first one.
	All bool `json:"all" yaml:"all"`
}

// IsZero reports whether the rule has no selector.
func (r Rule) IsZero() bool { return strings.TrimSpace(r.Selector) == "" }

// Or returns r, or def when r is empty.
func (r Rule) Or(def Rule) Rule {
	if r.IsZero() {
		return def
	}
	return r
}

type ruleFields Rule

// UnmarshalYAML accepts a scalar selector or a full mapping.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = Rule{Selector: node.Value}
		return nil
	}
	var f ruleFields
	if err := node.Decode(&f); err != nil {
		return fmt.Errorf("decode rule: %w", err)
	}
	*r = Rule(f)
	return nil
}

// UnmarshalJSON accepts a string selector or a full object.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var sel string
	if err := json.Unmarshal(data, &sel); err == nil {
		*r = Rule{Selector: sel}
		return nil
	}
	var f ruleFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode rule: %w", err)
	}
	*r = Rule(f)
	return nil
}

func sanitizeRule(r Rule) Rule {
	r.Selector = strings.TrimSpace(r.Selector)
	r.Attr = strings.ToLower(strings.TrimSpace(r.Attr))
	return r
}
