package runs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("pipeline run not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunModel{})
}

func (r *Repository) Create(ctx context.Context, run *RunModel) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, stats map[string]interface{}, errorMessage string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"completed_at":  now,
	}
	if stats != nil {
		updates["stats"] = datatypes.JSONMap(stats)
	}
	return r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*RunModel, error) {
	var run RunModel
	result := r.db.WithContext(ctx).First(&run, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return &run, result.Error
}

func (r *Repository) List(ctx context.Context, stage string, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	tx := r.db.WithContext(ctx).Order("started_at desc").Limit(limit)
	if stage != "" {
		tx = tx.Where("stage = ?", stage)
	}
	var out []RunModel
	result := tx.Find(&out)
	return out, result.Error
}
