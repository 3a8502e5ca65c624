package memstore

import (
	"context"
	"sync"

	"github.com/openbp/engine"
)

// AccessHistoryStore is an append-only in-memory engine.AccessHistoryStore.
type AccessHistoryStore struct {
	mu      sync.Mutex
	records []engine.AccessHistoryRecord
}

var _ engine.AccessHistoryStore = (*AccessHistoryStore)(nil)

func NewAccessHistoryStore() *AccessHistoryStore {
	return &AccessHistoryStore{}
}

func (s *AccessHistoryStore) Save(ctx context.Context, record *engine.AccessHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, *record)
	return nil
}

// Records returns a snapshot of everything saved. Test helper.
func (s *AccessHistoryStore) Records() []engine.AccessHistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]engine.AccessHistoryRecord{}, s.records...)
}

// UnitRuleStore is an in-memory engine.UnitRuleStore.
type UnitRuleStore struct {
	mu     sync.Mutex
	groups [][]string
}

var _ engine.UnitRuleStore = (*UnitRuleStore)(nil)

func NewUnitRuleStore(groups ...[]string) *UnitRuleStore {
	return &UnitRuleStore{groups: groups}
}

func (s *UnitRuleStore) ExclusiveGroups(ctx context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]string, 0, len(s.groups))
	for _, group := range s.groups {
		out = append(out, append([]string{}, group...))
	}
	return out, nil
}

// WorkflowStore is an in-memory engine.WorkflowStore.
type WorkflowStore struct {
	mu        sync.Mutex
	workflows map[string]*engine.Workflow
}

var _ engine.WorkflowStore = (*WorkflowStore)(nil)

func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{workflows: make(map[string]*engine.Workflow)}
}

// Seed adds a workflow. Test helper.
func (s *WorkflowStore) Seed(w *engine.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *w
	s.workflows[w.ID] = &clone
}

func (s *WorkflowStore) Lookup(ctx context.Context, id string) (*engine.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, engine.ErrWorkflowNotFound
	}

	clone := *w
	return &clone, nil
}

func (s *WorkflowStore) SetStatus(ctx context.Context, id string, statusID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return engine.ErrWorkflowNotFound
	}

	w.StatusID = statusID
	return nil
}

// TemplateStore is an in-memory engine.TemplateStore.
type TemplateStore struct {
	mu                sync.Mutex
	eventTemplates    map[string]*engine.EventTemplate
	workflowTemplates map[string]*engine.WorkflowTemplate
}

var _ engine.TemplateStore = (*TemplateStore)(nil)

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		eventTemplates:    make(map[string]*engine.EventTemplate),
		workflowTemplates: make(map[string]*engine.WorkflowTemplate),
	}
}

// SeedEventTemplate adds an event template. Test helper.
func (s *TemplateStore) SeedEventTemplate(tmpl *engine.EventTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *tmpl
	s.eventTemplates[tmpl.ID] = &clone
}

// SeedWorkflowTemplate adds a workflow template. Test helper.
func (s *TemplateStore) SeedWorkflowTemplate(tmpl *engine.WorkflowTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *tmpl
	s.workflowTemplates[tmpl.ID] = &clone
}

func (s *TemplateStore) EventTemplate(ctx context.Context, id string) (*engine.EventTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.eventTemplates[id]
	if !ok {
		return nil, engine.ErrEventNotFound
	}

	clone := *tmpl
	return &clone, nil
}

func (s *TemplateStore) WorkflowTemplate(ctx context.Context, id string) (*engine.WorkflowTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.workflowTemplates[id]
	if !ok {
		return nil, engine.ErrWorkflowNotFound
	}

	clone := *tmpl
	return &clone, nil
}
