package resource

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrConflict - ресурс уже занят или изменён другим запросом
	ErrConflict = errors.New("resource was modified concurrently")
)

type Filter struct {
	Status *Status
	Role   *Role
	Skill  string
}

func (f Filter) match(r Resource) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.Role != nil && r.Role != *f.Role {
		return false
	}
	if f.Skill != "" && !r.HasSkill(f.Skill) {
		return false
	}
	return true
}

// Directory - справочник исполнителей. Query возвращает записи в стабильном
// порядке (created_at, id); Reserve переводит available -> busy только при
// совпадении версии.
type Directory interface {
	Query(ctx context.Context, filter Filter) ([]Resource, error)
	Get(ctx context.Context, id string) (Resource, error)
	Reserve(ctx context.Context, id string, version int64) error
	Release(ctx context.Context, id string) error
	Upsert(ctx context.Context, r Resource) (Resource, error)
}

type gormDirectory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) Directory {
	return &gormDirectory{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Resource{})
}

func (d *gormDirectory) Query(ctx context.Context, filter Filter) ([]Resource, error) {
	var rows []Resource
	tx := d.db.WithContext(ctx)
	if filter.Status != nil {
		tx = tx.Where("status = ?", *filter.Status)
	}
	if filter.Role != nil {
		tx = tx.Where("role = ?", *filter.Role)
	}
	if err := tx.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	// навыки сравниваются после нормализации, поэтому фильтр по ним здесь
	result := make([]Resource, 0, len(rows))
	for _, r := range rows {
		r.Skills = NormalizeSkills(r.Skills)
		if filter.match(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (d *gormDirectory) Get(ctx context.Context, id string) (Resource, error) {
	var r Resource
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Resource{}, ErrNotFound
	}
	if err != nil {
		return Resource{}, err
	}
	r.Skills = NormalizeSkills(r.Skills)
	return r, nil
}

func (d *gormDirectory) Reserve(ctx context.Context, id string, version int64) error {
	res := reserveUpdate(d.db.WithContext(ctx), id, version, time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := d.Get(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// reserveUpdate переводит available -> busy только для прочитанной версии
func reserveUpdate(tx *gorm.DB, id string, version int64, now time.Time) *gorm.DB {
	return tx.Model(&Resource{}).
		Where("id = ? AND version = ? AND status = ?", id, version, StatusAvailable).
		Updates(map[string]interface{}{
			"status":     StatusBusy,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
}

func (d *gormDirectory) Release(ctx context.Context, id string) error {
	res := d.db.WithContext(ctx).
		Model(&Resource{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusAvailable,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *gormDirectory) Upsert(ctx context.Context, r Resource) (Resource, error) {
	r.Skills = NormalizeSkills(r.Skills)
	if r.Status == "" {
		r.Status = StatusAvailable
	}
	if r.Role == "" {
		r.Role = RoleTechnician
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"name":       r.Name,
			"role":       r.Role,
			"department": r.Department,
			"phone":      r.Phone,
			"status":     r.Status,
			"skills":     r.Skills,
			"lat":        r.Lat,
			"lng":        r.Lng,
			"version":    gorm.Expr("resources.version + 1"),
			"updated_at": now,
		}),
	}).Create(&r).Error
	if err != nil {
		return Resource{}, err
	}
	return d.Get(ctx, r.ID)
}
