package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openbp/engine"
	"github.com/openbp/engine/internal/sets"
)

// TaskStore is an in-memory engine.TaskStore.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*engine.Task

	// unitPerformers maps task ID to the unit each performer came from so
	// RemovePerformer can scope detachment to one unit.
	unitPerformers map[string]map[string]string
}

var _ engine.TaskStore = (*TaskStore)(nil)

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:          make(map[string]*engine.Task),
		unitPerformers: make(map[string]map[string]string),
	}
}

// Seed adds a task, assigning an ID when absent. Test helper.
func (s *TaskStore) Seed(task *engine.Task) *engine.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	clone := *task
	s.tasks[task.ID] = &clone
	return task
}

// SeedPerformerUnit records which unit a task performer belongs to. Test
// helper for RemovePerformer scoping.
func (s *TaskStore) SeedPerformerUnit(taskID, userID, unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unitPerformers[taskID] == nil {
		s.unitPerformers[taskID] = make(map[string]string)
	}
	s.unitPerformers[taskID][userID] = unitID
}

func (s *TaskStore) Lookup(ctx context.Context, id string) (*engine.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, engine.ErrTaskNotFound
	}

	clone := *task
	return &clone, nil
}

func (s *TaskStore) ListInProgress(ctx context.Context, workflowID string) ([]engine.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []engine.Task
	for _, task := range s.tasks {
		if task.WorkflowID == workflowID && !task.Finished && !task.Cancelled {
			out = append(out, *task)
		}
	}

	sortTasks(out)
	return out, nil
}

func (s *TaskStore) ListByWorkflow(ctx context.Context, workflowID string) ([]engine.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []engine.Task
	for _, task := range s.tasks {
		if task.WorkflowID == workflowID {
			out = append(out, *task)
		}
	}

	sortTasks(out)
	return out, nil
}

func (s *TaskStore) SetCancelled(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		task, ok := s.tasks[id]
		if !ok {
			return engine.ErrTaskNotFound
		}
		task.Cancelled = true
	}

	return nil
}

func (s *TaskStore) SetPerformers(ctx context.Context, ids []string, performers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		task, ok := s.tasks[id]
		if !ok {
			return engine.ErrTaskNotFound
		}
		task.Performers = append([]string{}, performers...)
	}

	return nil
}

func (s *TaskStore) RemovePerformer(ctx context.Context, unitID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.Finished {
			continue
		}
		if !sets.Contains(task.Performers, userID) {
			continue
		}
		if units := s.unitPerformers[task.ID]; units != nil && units[userID] != unitID {
			continue
		}

		task.Performers = sets.Diff(task.Performers, []string{userID})
	}

	return nil
}

func (s *TaskStore) SetMeta(ctx context.Context, id string, meta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return engine.ErrTaskNotFound
	}

	task.Meta = meta
	return nil
}

func sortTasks(tasks []engine.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
}
