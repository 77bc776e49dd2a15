package archive

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type runRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DeviceID   string     `gorm:"type:text;not null;index"`
	DeviceName string     `gorm:"type:text;not null"`
	Model      string     `gorm:"type:text;not null"`
	Status     string     `gorm:"type:text;not null"`
	Cycles     int        `gorm:"not null;default:0"`
	Error      string     `gorm:"type:text"`
	StartedAt  time.Time  `gorm:"type:timestamptz;not null"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
}

func (runRecord) TableName() string { return "runs" }

type eventRecord struct {
	ID         int64             `gorm:"type:bigserial;primaryKey"`
	RunID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	DeviceID   string            `gorm:"type:text;not null"`
	Kind       string            `gorm:"type:text;not null"`
	Cycle      int               `gorm:"not null"`
	ImageIndex int               `gorm:"not null"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb"`
	EmittedAt  time.Time         `gorm:"type:timestamptz;not null"`
}

func (eventRecord) TableName() string { return "run_events" }

const (
	runStatusRunning = "running"
	runStatusStopped = "stopped"
	runStatusErrored = "errored"
)
