package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// configFile represents the structure of the providers configuration file.
type configFile struct {
	Providers []Provider `json:"providers" yaml:"providers"`
}

// Registry holds the site descriptors loaded from a config file.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	idx       map[string]Provider
}

var (
	validateOnce sync.Once
	structCheck  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structCheck = validator.New(validator.WithRequiredStructEnabled())
	})
	return structCheck
}

// LoadRegistry loads provider descriptors from a YAML or JSON file. Environment
// references in the file are expanded before decoding.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fatalf("providers file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fatalf("read providers file: %v", err)
	}

	return ParseRegistry([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseRegistry decodes, sanitizes and validates provider descriptors.
func ParseRegistry(data []byte, ext string) (*Registry, error) {
	file, err := decodeProviders(data, ext)
	if err != nil {
		return nil, err
	}
	if len(file.Providers) == 0 {
		return nil, fatalf("providers file contains no providers entries")
	}

	reg := &Registry{
		providers: make([]Provider, 0, len(file.Providers)),
		idx:       make(map[string]Provider, len(file.Providers)),
	}
	for i := range file.Providers {
		p := Sanitize(file.Providers[i])
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[p.ID]; exists {
			return nil, fatalf("duplicate provider id %q", p.ID)
		}
		reg.providers = append(reg.providers, p)
		reg.idx[p.ID] = p
	}
	return reg, nil
}

// decodeProviders picks a decoder by extension, trying all of them when the extension is unknown.
func decodeProviders(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		exts []string
		fn   func([]byte, any) error
	}{
		{name: "yaml", exts: []string{".yaml", ".yml"}, fn: yaml.Unmarshal},
		{name: "json", exts: []string{".json"}, fn: json.Unmarshal},
	}

	known := false
	for _, d := range decoders {
		known = known || contains(d.exts, ext)
	}

	var lastErr error
	for _, d := range decoders {
		if known && !contains(d.exts, ext) {
			continue
		}
		var file configFile
		if err := d.fn(data, &file); err != nil {
			lastErr = fmt.Errorf("decode %s providers: %w", d.name, err)
			continue
		}
		return file, nil
	}
	if lastErr == nil {
		lastErr = errors.New("providers file format not recognized (expected YAML or JSON)")
	}
	return configFile{}, fmt.Errorf("%w: %v", domain.ErrFatalConfig, lastErr)
}

// Sanitize trims and normalizes descriptor fields and applies defaults.
func Sanitize(p Provider) Provider {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	p.Name = strings.TrimSpace(p.Name)
	p.Country = strings.TrimSpace(p.Country)
	p.BaseURL = strings.TrimSpace(p.BaseURL)
	p.ClientKind = strings.ToLower(strings.TrimSpace(p.ClientKind))
	if p.ClientKind == "" {
		p.ClientKind = ClientNetwork
	}
	if p.Concurrency == 0 {
		p.Concurrency = 1
	}
	p.Headers = sanitizeHeaders(p.Headers)

	if len(p.RequiredFields) == 0 {
		p.RequiredFields = []string{FieldTitle, FieldBody}
	} else {
		fields := make([]string, 0, len(p.RequiredFields))
		for _, f := range p.RequiredFields {
			if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
				fields = append(fields, f)
			}
		}
		p.RequiredFields = fields
	}

	if len(p.Selectors) > 0 {
		sel := make(map[string]Rule, len(p.Selectors))
		for field, rule := range p.Selectors {
			sel[strings.ToLower(strings.TrimSpace(field))] = sanitizeRule(rule)
		}
		p.Selectors = sel
	}

	if len(p.CleaningHooks) > 0 {
		hooks := make(map[string][]string, len(p.CleaningHooks))
		for field, names := range p.CleaningHooks {
			clean := make([]string, 0, len(names))
			for _, n := range names {
				if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
					clean = append(clean, n)
				}
			}
			hooks[strings.ToLower(strings.TrimSpace(field))] = clean
		}
		p.CleaningHooks = hooks
	}

	l := p.Listing
	l.Kind = strings.ToLower(strings.TrimSpace(l.Kind))
	l.URLTemplate = strings.TrimSpace(l.URLTemplate)
	l.DateFormat = strings.TrimSpace(l.DateFormat)
	l.StartDate = strings.TrimSpace(l.StartDate)
	l.EarliestDate = strings.TrimSpace(l.EarliestDate)
	l.Item = strings.TrimSpace(l.Item)
	l.Link = sanitizeRule(l.Link)
	l.Title = sanitizeRule(l.Title)
	l.Date = sanitizeRule(l.Date)
	l.Categories = trimAll(l.Categories)
	l.Queries = trimAll(l.Queries)
	p.Listing = l

	return p
}

// Validate checks a sanitized descriptor. Failures wrap domain.ErrFatalConfig.
func Validate(p Provider) error {
	if err := structValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fatalf("provider %q: %s", p.ID, strings.Join(msgs, "; "))
		}
		return fatalf("provider %q: %v", p.ID, err)
	}

	l := p.Listing
	switch l.Kind {
	case ListingPagination, ListingCategory, ListingSearch:
		if l.Item == "" {
			return fatalf("provider %q: listing.item selector is required for %s listings", p.ID, l.Kind)
		}
		if l.Kind == ListingCategory && len(l.Categories) == 0 {
			return fatalf("provider %q: listing.categories is required for category listings", p.ID)
		}
		if l.Kind == ListingSearch && len(l.Queries) == 0 {
			return fatalf("provider %q: listing.queries is required for search listings", p.ID)
		}
	case ListingArchive:
		if l.Item == "" {
			return fatalf("provider %q: listing.item selector is required for archive listings", p.ID)
		}
		if !strings.Contains(l.URLTemplate, "{date}") {
			return fatalf("provider %q: archive url_template must contain {date}", p.ID)
		}
	}

	for field := range p.Selectors {
		if !knownField(field) {
			return fatalf("provider %q: selector for unknown field %q", p.ID, field)
		}
	}
	for field := range p.CleaningHooks {
		if !knownField(field) {
			return fatalf("provider %q: cleaning hooks for unknown field %q", p.ID, field)
		}
	}
	return nil
}

// ByID returns the provider by id.
func (r *Registry) ByID(id string) (Provider, bool) {
	if r == nil {
		return Provider{}, false
	}
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return Provider{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.idx[id]
	return p, ok
}

// All returns every configured provider in file order.
func (r *Registry) All() []Provider {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Enabled returns providers that are enabled.
func (r *Registry) Enabled() []Provider {
	all := r.All()
	out := make([]Provider, 0, len(all))
	for _, p := range all {
		if p.EnabledValue() {
			out = append(out, p)
		}
	}
	return out
}

func knownField(f string) bool {
	switch f {
	case FieldTitle, FieldBody, FieldPublishedDate, FieldTags:
		return true
	}
	return false
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrFatalConfig, fmt.Sprintf(format, args...))
}
