package task

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrConflict - запись изменилась после чтения
	ErrConflict = errors.New("task was modified concurrently")
)

type Filter struct {
	Status             *Status
	Category           *Category
	AssignedResourceID *string
	ReporterID         *string
	Limit              int
}

// TaskRepository - хранилище задач. Update пишет запись только если её
// версия совпадает с прочитанной, и возвращает запись с новой версией.
type TaskRepository interface {
	Create(ctx context.Context, t Task) error
	Get(ctx context.Context, id string) (Task, error)
	Update(ctx context.Context, t Task) (Task, error)
	List(ctx context.Context, filter Filter) ([]Task, error)
}

type taskRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Task{})
}

func (r *taskRepository) Create(ctx context.Context, t Task) error {
	return r.db.WithContext(ctx).Create(&t).Error
}

func (r *taskRepository) Get(ctx context.Context, id string) (Task, error) {
	var t Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, ErrNotFound
	}
	return t, err
}

func (r *taskRepository) Update(ctx context.Context, t Task) (Task, error) {
	next := t
	next.Version = t.Version + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	res := versionedUpdate(r.db.WithContext(ctx), t.ID, t.Version, updateValues(next))
	if res.Error != nil {
		return Task{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Task{}, r.missingOrConflict(ctx, t.ID)
	}
	return next, nil
}

// versionedUpdate пишет запись, только если версия в базе совпадает с прочитанной
func versionedUpdate(tx *gorm.DB, id string, version int64, values map[string]interface{}) *gorm.DB {
	return tx.Model(&Task{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
}

// updateValues - map, чтобы записать и нулевые значения
func updateValues(next Task) map[string]interface{} {
	return map[string]interface{}{
		"status":               next.Status,
		"priority":             next.Priority,
		"assigned_resource_id": next.AssignedResourceID,
		"report_image_ids":     next.ReportImageIDs,
		"initiation_image_ids": next.InitiationImageIDs,
		"completion_image_ids": next.CompletionImageIDs,
		"bill_image_ids":       next.BillImageIDs,
		"notes":                next.Notes,
		"updated_by":           next.UpdatedBy,
		"updated_at":           next.UpdatedAt,
		"assigned_at":          next.AssignedAt,
		"work_started_at":      next.WorkStartedAt,
		"resolved_at":          next.ResolvedAt,
		"version":              next.Version,
	}
}

func (r *taskRepository) missingOrConflict(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *taskRepository) List(ctx context.Context, filter Filter) ([]Task, error) {
	var tasks []Task
	tx := r.db.WithContext(ctx)

	if filter.Status != nil {
		tx = tx.Where("status = ?", *filter.Status)
	}
	if filter.Category != nil {
		tx = tx.Where("category = ?", *filter.Category)
	}
	if filter.AssignedResourceID != nil {
		tx = tx.Where("assigned_resource_id = ?", *filter.AssignedResourceID)
	}
	if filter.ReporterID != nil {
		tx = tx.Where("reporter_id = ?", *filter.ReporterID)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	if err := tx.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
