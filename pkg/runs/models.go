package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	StageCache    = "cache"
	StageFeatures = "features"
	StageAssemble = "assemble"
	StageClean    = "clean"
	StageFolds    = "folds"
)

// RunModel is one pipeline stage execution in the run ledger.
type RunModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	Stage        string            `gorm:"column:stage;index" json:"stage"`
	Status       string            `gorm:"column:status" json:"status"`
	Params       datatypes.JSONMap `gorm:"column:params" json:"params,omitempty"`
	Stats        datatypes.JSONMap `gorm:"column:stats" json:"stats,omitempty"`
	ErrorMessage string            `gorm:"column:error_message" json:"error,omitempty"`
	StartedAt    time.Time         `gorm:"column:started_at" json:"started_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (RunModel) TableName() string {
	return "pipeline_runs"
}
