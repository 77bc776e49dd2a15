package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Run struct {
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

type RunEvent struct {
	ID         int64             `gorm:"type:bigserial;primaryKey"`
	RunID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	DeviceID   string            `gorm:"type:text;not null"`
	Kind       string            `gorm:"type:text;not null"`
	Cycle      int               `gorm:"not null"`
	ImageIndex int               `gorm:"not null"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb"`
	EmittedAt  time.Time         `gorm:"type:timestamptz;not null"`
	Run        Run               `gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Run{},
		&RunEvent{},
	); err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().CreateConstraint(&RunEvent{}, "Run")
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(&RunEvent{}, &Run{})
}
