package publishers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
)

// Builder creates a Publisher from a config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)

// Registry maps publisher types to builders.
type Registry interface {
	Register(typ string, builder Builder) error
	PublisherFor(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)
	Types() []string
}

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry holding builders. Entries with an empty
// type or a nil builder are skipped.
func NewRegistry(builders map[string]Builder) Registry {
	r := &registry{builders: make(map[string]Builder, len(builders))}
	for typ, b := range builders {
		_ = r.Register(typ, b)
	}
	return r
}

// Register adds a builder under typ. Types are case-insensitive and may be
// registered once.
func (r *registry) Register(typ string, builder Builder) error {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || builder == nil {
		return errors.New("publisher type and builder are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.builders[typ]; dup {
		return fmt.Errorf("publisher type %q already registered", typ)
	}
	r.builders[typ] = builder
	return nil
}

// PublisherFor builds the publisher for cfg. An unknown type is a
// configuration error.
func (r *registry) PublisherFor(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))

	r.mu.RLock()
	builder := r.builders[typ]
	r.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("%w: publisher %q: no builder for type %q", domain.ErrFatalConfig, cfg.ID, cfg.Type)
	}
	return builder(ctx, cfg, ensureLogger(log))
}

// Types lists the registered publisher types in sorted order.
func (r *registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.builders))
}

// DefaultRegistry wires up known publishers.
func DefaultRegistry() Registry {
	return NewRegistry(map[string]Builder{
		TypeHTTP:  newHTTPPublisher,
		TypeQueue: newQueuePublisher,
	})
}

// Build instantiates a Dispatcher over the enabled configs. Publishers built
// before a failing entry are closed.
func Build(ctx context.Context, reg Registry, cfgs []PublisherConfig, log Logger) (*Dispatcher, error) {
	log = ensureLogger(log)
	if reg == nil {
		reg = DefaultRegistry()
	}

	var (
		pubs    []Publisher
		filters = make(map[string][]string)
	)
	for _, cfg := range cfgs {
		if !cfg.EnabledValue() {
			continue
		}
		pub, err := reg.PublisherFor(ctx, cfg, log)
		if err != nil {
			closeErr := NewDispatcher(pubs, nil, log).Close()
			return nil, errors.Join(fmt.Errorf("build publisher %q: %w", cfg.ID, err), closeErr)
		}
		pubs = append(pubs, pub)
		filters[cfg.ID] = cfg.Events
		log.InfoObj("publisher ready", "publisher_ready", map[string]any{
			"publisher_id":   cfg.ID,
			"publisher_type": cfg.Type,
		})
	}
	return NewDispatcher(pubs, filters, log), nil
}
