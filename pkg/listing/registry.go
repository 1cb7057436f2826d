package listing

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

// Registry resolves the strategy for a descriptor's listing kind.
type Registry interface {
	StrategyFor(p providers.Provider) (Strategy, error)
}

type strategyRegistry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry builds a registry for the provided strategies.
func NewRegistry(strategies ...Strategy) Registry {
	reg := &strategyRegistry{
		strategies: make(map[string]Strategy, len(strategies)),
	}
	for _, s := range strategies {
		if s == nil {
			continue
		}
		reg.strategies[strings.ToLower(strings.TrimSpace(s.Kind()))] = s
	}
	return reg
}

// StrategyFor selects the strategy for the provider's listing kind.
func (r *strategyRegistry) StrategyFor(p providers.Provider) (Strategy, error) {
	kind := strings.ToLower(strings.TrimSpace(p.Listing.Kind))
	if kind == "" {
		return nil, fmt.Errorf("%w: provider %q has no listing kind", domain.ErrFatalConfig, p.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.strategies[kind]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: no listing strategy registered for kind %q (provider %q)", domain.ErrFatalConfig, kind, p.ID)
}

// DefaultRegistry wires up every built-in strategy.
func DefaultRegistry(log logger.Logger) Registry {
	return NewRegistry(
		NewPagination(log),
		NewCategory(log),
		NewSearch(log),
		NewArchive(log, time.Now),
		NewSitemap(log),
		NewFeed(log),
	)
}
