package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openbp/engine"
)

// DocumentStore is an in-memory engine.DocumentStore.
type DocumentStore struct {
	mu   sync.Mutex
	docs map[string]*engine.Document
}

var _ engine.DocumentStore = (*DocumentStore)(nil)

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*engine.Document)}
}

func (s *DocumentStore) Create(ctx context.Context, doc *engine.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	clone := *doc
	s.docs[doc.ID] = &clone
	return nil
}

func (s *DocumentStore) Lookup(ctx context.Context, id string) (*engine.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, engine.ErrDocumentNotFound
	}

	clone := *doc
	return &clone, nil
}

func (s *DocumentStore) ListByWorkflow(ctx context.Context, workflowID string) ([]engine.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []engine.Document
	for _, doc := range s.docs {
		if doc.WorkflowID == workflowID {
			out = append(out, *doc)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DocumentStore) SetCancelled(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		doc, ok := s.docs[id]
		if !ok {
			return engine.ErrDocumentNotFound
		}
		doc.Cancelled = true
	}

	return nil
}

func (s *DocumentStore) Update(ctx context.Context, doc *engine.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; !ok {
		return engine.ErrDocumentNotFound
	}

	clone := *doc
	s.docs[doc.ID] = &clone
	return nil
}
