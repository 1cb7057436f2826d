// Package publishers delivers harvester events to downstream sinks: HTTP
// endpoints and cloud queues (AWS SQS, AWS SNS, GCP Pub/Sub).
package publishers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/google/uuid"
)

// Event types.
const (
	EventArticlePersisted = "article.persisted"
	EventRunCompleted     = "run.completed"
)

// Logger is the structured logger publishers write to.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger { return logger.Ensure(log) }

// Event is the envelope sent to every publisher.
type Event struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	RunID      string             `json:"run_id"`
	ProviderID string             `json:"provider_id"`
	OccurredAt time.Time          `json:"occurred_at"`
	Article    *domain.Article    `json:"article,omitempty"`
	Summary    *domain.RunSummary `json:"summary,omitempty"`
}

// ArticleEvent wraps a persisted article.
func ArticleEvent(runID, providerID string, a domain.Article, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventArticlePersisted,
		RunID:      runID,
		ProviderID: providerID,
		OccurredAt: at.UTC(),
		Article:    &a,
	}
}

// SummaryEvent wraps a finished run's summary.
func SummaryEvent(s domain.RunSummary, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventRunCompleted,
		RunID:      s.RunID,
		ProviderID: s.ProviderID,
		OccurredAt: at.UTC(),
		Summary:    &s,
	}
}

// Publisher sends events to one sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Closer is implemented by publishers holding client resources.
type Closer interface {
	Close() error
}

// Dispatcher fans an event out to every publisher interested in its type.
type Dispatcher struct {
	pubs   []Publisher
	events map[string]map[string]struct{} // publisher id -> accepted types; nil accepts all
	log    Logger
}

// NewDispatcher wraps pubs. filters maps a publisher id to the event types it
// accepts; an absent or empty entry accepts every type.
func NewDispatcher(pubs []Publisher, filters map[string][]string, log Logger) *Dispatcher {
	d := &Dispatcher{pubs: pubs, events: make(map[string]map[string]struct{}), log: ensureLogger(log)}
	for id, types := range filters {
		if len(types) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(types))
		for _, t := range types {
			set[t] = struct{}{}
		}
		d.events[id] = set
	}
	return d
}

// Len returns the number of publishers.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.pubs)
}

// Publish sends evt to every interested publisher. Each failure is logged and
// the joined error returned; one failing sink does not stop the others.
func (d *Dispatcher) Publish(ctx context.Context, evt Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, pub := range d.pubs {
		if set, ok := d.events[pub.ID()]; ok {
			if _, want := set[evt.Type]; !want {
				continue
			}
		}
		if err := pub.Publish(ctx, evt); err != nil {
			d.log.WarnObj("publisher delivery failed", "publisher_error", map[string]any{
				"publisher_id":   pub.ID(),
				"publisher_type": pub.Type(),
				"event_type":     evt.Type,
				"event_id":       evt.ID,
				"error":          err.Error(),
			})
			errs = append(errs, fmt.Errorf("publisher %s: %w", pub.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every publisher that holds resources.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, pub := range d.pubs {
		if c, ok := pub.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher %s: %w", pub.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
