// Package memstore provides in-memory implementations of every engine store
// capability. They are intended for tests and local development and mirror
// the semantics the engine expects from production stores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/openbp/engine"
)

type options struct {
	clock clock.Clock
}

type Option func(o *options)

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func resolveOptions(opts []Option) options {
	opt := options{clock: clock.RealClock{}}
	for _, o := range opts {
		o(&opt)
	}
	return opt
}

// EventStore is an in-memory engine.EventStore.
type EventStore struct {
	mu     sync.Mutex
	events map[string]*engine.Event
	clock  clock.Clock
}

var _ engine.EventStore = (*EventStore)(nil)

func NewEventStore(opts ...Option) *EventStore {
	opt := resolveOptions(opts)
	return &EventStore{
		events: make(map[string]*engine.Event),
		clock:  opt.clock,
	}
}

func (s *EventStore) Create(ctx context.Context, event *engine.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	clone := *event
	s.events[event.ID] = &clone
	return nil
}

func (s *EventStore) Lookup(ctx context.Context, id string) (*engine.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return nil, engine.ErrEventNotFound
	}

	clone := *event
	return &clone, nil
}

func (s *EventStore) ListInProgress(ctx context.Context, workflowID string) ([]engine.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []engine.Event
	for _, event := range s.events {
		if event.WorkflowID == workflowID && !event.Done {
			out = append(out, *event)
		}
	}

	sortEvents(out)
	return out, nil
}

func (s *EventStore) ListByWorkflow(ctx context.Context, workflowID string) ([]engine.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []engine.Event
	for _, event := range s.events {
		if event.WorkflowID == workflowID {
			out = append(out, *event)
		}
	}

	sortEvents(out)
	return out, nil
}

func (s *EventStore) ListDueBefore(ctx context.Context, t time.Time, limit int) ([]engine.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []engine.Event
	for _, event := range s.events {
		if event.Done || event.DueDate == nil {
			continue
		}
		if event.DueDate.After(t) {
			continue
		}

		out = append(out, *event)
		if len(out) == limit {
			break
		}
	}

	sortEvents(out)
	return out, nil
}

func (s *EventStore) SetCancelled(ctx context.Context, ids []string, cancellationType int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		event, ok := s.events[id]
		if !ok {
			return engine.ErrEventNotFound
		}

		ct := cancellationType
		event.Done = true
		event.CancellationType = &ct
		event.UpdatedAt = s.clock.Now()
	}

	return nil
}

func (s *EventStore) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return engine.ErrEventNotFound
	}

	event.Done = true
	event.UpdatedAt = s.clock.Now()
	return nil
}

func (s *EventStore) SetDocumentID(ctx context.Context, workflowID, eventTemplateID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range s.events {
		if event.WorkflowID == workflowID && event.EventTemplateID == eventTemplateID {
			id := documentID
			event.DocumentID = &id
			event.UpdatedAt = s.clock.Now()
		}
	}

	return nil
}

func (s *EventStore) SetData(ctx context.Context, id string, data engine.EventData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return engine.ErrEventNotFound
	}

	event.Data = data
	event.UpdatedAt = s.clock.Now()
	return nil
}

func sortEvents(events []engine.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
