package task

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewMemoryRepository - хранилище для локального запуска и тестов
func NewMemoryRepository() TaskRepository {
	return &memoryRepository{tasks: make(map[string]Task)}
}

func (r *memoryRepository) Create(_ context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return ErrConflict
	}
	r.tasks[t.ID] = t.Clone()
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (r *memoryRepository) Update(_ context.Context, t Task) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tasks[t.ID]
	if !ok {
		return Task{}, ErrNotFound
	}
	if stored.Version != t.Version {
		return Task{}, ErrConflict
	}

	next := t.Clone()
	next.Version = t.Version + 1
	// неизменяемые поля берём из сохранённой записи
	next.CreatedAt = stored.CreatedAt
	next.Category = stored.Category
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	r.tasks[t.ID] = next
	return next.Clone(), nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []Task
	for _, t := range r.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && t.Category != *filter.Category {
			continue
		}
		if filter.AssignedResourceID != nil && (t.AssignedResourceID == nil || *t.AssignedResourceID != *filter.AssignedResourceID) {
			continue
		}
		if filter.ReporterID != nil && t.Reporter.ID != *filter.ReporterID {
			continue
		}
		tasks = append(tasks, t.Clone())
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}
