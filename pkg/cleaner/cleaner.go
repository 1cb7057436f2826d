// Package cleaner holds the registry of named field transforms a site
// descriptor can reference in cleaning_hooks. Hook names are resolved into a
// Pipeline once per descriptor, never per record.
package cleaner

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

// Hook is a pure string transform.
type Hook func(string) string

// Registry maps stable hook identifiers to transforms.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]Hook)}
}

// Default returns a registry preloaded with the built-in hooks.
func Default() *Registry {
	r := NewRegistry()
	for name, h := range builtins() {
		r.hooks[name] = h
	}
	return r
}

// Register adds a hook. Names are case-insensitive and must be unique.
func (r *Registry) Register(name string, h Hook) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("hook name is empty")
	}
	if h == nil {
		return fmt.Errorf("hook %q is nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[key]; exists {
		return fmt.Errorf("hook %q already registered", key)
	}
	r.hooks[key] = h
	return nil
}

// Lookup returns the hook registered under name.
func (r *Registry) Lookup(name string) (Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[strings.ToLower(strings.TrimSpace(name))]
	return h, ok
}

// Names lists the registered hook names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve binds the descriptor's cleaning hooks. An unknown hook name is a
// fatal configuration error.
func (r *Registry) Resolve(p providers.Provider) (*Pipeline, error) {
	pl := &Pipeline{}
	for field, names := range p.CleaningHooks {
		hooks := make([]Hook, 0, len(names))
		for _, name := range names {
			h, ok := r.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("%w: provider %q: unknown cleaning hook %q for field %q", domain.ErrFatalConfig, p.ID, name, field)
			}
			hooks = append(hooks, h)
		}

		switch field {
		case providers.FieldTitle:
			pl.title = hooks
		case providers.FieldBody:
			pl.body = hooks
		case providers.FieldPublishedDate:
			pl.date = hooks
		case providers.FieldTags:
			pl.tags = hooks
		default:
			return nil, fmt.Errorf("%w: provider %q: cleaning hooks for unknown field %q", domain.ErrFatalConfig, p.ID, field)
		}
	}
	return pl, nil
}

// Pipeline applies resolved hooks to an extracted record. A nil Pipeline is
// the identity.
type Pipeline struct {
	title []Hook
	body  []Hook
	date  []Hook
	tags  []Hook
}

// Clean returns a copy of raw with every field passed through its hooks in
// configured order. Tag hooks run on each tag.
func (pl *Pipeline) Clean(raw domain.RawArticle) domain.RawArticle {
	if pl == nil {
		return raw
	}
	raw.Title = apply(pl.title, raw.Title)
	raw.Body = apply(pl.body, raw.Body)
	raw.PublishedDate = apply(pl.date, raw.PublishedDate)
	if len(raw.Tags) > 0 {
		tags := make([]string, len(raw.Tags))
		for i, t := range raw.Tags {
			tags[i] = apply(pl.tags, t)
		}
		raw.Tags = tags
	}
	return raw
}

func apply(hooks []Hook, v string) string {
	for _, h := range hooks {
		v = h(v)
	}
	return v
}
