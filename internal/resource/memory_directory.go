package resource

import (
	"context"
	"sync"
	"time"
)

type memoryDirectory struct {
	mu    sync.Mutex
	order []string
	items map[string]Resource
}

// NewMemoryDirectory сохраняет порядок вставки, как Query у postgres-реализации
func NewMemoryDirectory(seed ...Resource) Directory {
	d := &memoryDirectory{items: make(map[string]Resource)}
	for _, r := range seed {
		_, _ = d.Upsert(context.Background(), r)
	}
	return d
}

func (d *memoryDirectory) Query(_ context.Context, filter Filter) ([]Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Resource, 0, len(d.order))
	for _, id := range d.order {
		r := d.items[id]
		if filter.match(r) {
			result = append(result, clone(r))
		}
	}
	return result, nil
}

func (d *memoryDirectory) Get(_ context.Context, id string) (Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.items[id]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return clone(r), nil
}

func (d *memoryDirectory) Reserve(_ context.Context, id string, version int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.items[id]
	if !ok {
		return ErrNotFound
	}
	if r.Version != version || r.Status != StatusAvailable {
		return ErrConflict
	}
	r.Status = StatusBusy
	r.Version++
	r.UpdatedAt = time.Now().UTC()
	d.items[id] = r
	return nil
}

func (d *memoryDirectory) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.items[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = StatusAvailable
	r.Version++
	r.UpdatedAt = time.Now().UTC()
	d.items[id] = r
	return nil
}

func (d *memoryDirectory) Upsert(_ context.Context, r Resource) (Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r.Skills = NormalizeSkills(r.Skills)
	if r.Status == "" {
		r.Status = StatusAvailable
	}
	if r.Role == "" {
		r.Role = RoleTechnician
	}
	now := time.Now().UTC()
	if existing, ok := d.items[r.ID]; ok {
		r.CreatedAt = existing.CreatedAt
		r.Version = existing.Version + 1
	} else {
		r.CreatedAt = now
		r.Version = 0
		d.order = append(d.order, r.ID)
	}
	r.UpdatedAt = now
	d.items[r.ID] = r
	return clone(r), nil
}

func clone(r Resource) Resource {
	out := r
	out.Skills = append(out.Skills[:0:0], r.Skills...)
	return out
}
