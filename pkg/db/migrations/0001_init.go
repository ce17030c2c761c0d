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

// TestScript is the schema snapshot for the test_scripts table at version 1.
type TestScript struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	ChatID       string                      `gorm:"type:text;not null;index"`
	Content      string                      `gorm:"type:text;not null;default:''"`
	Stdout       *string                     `gorm:"type:text"`
	Stderr       *string                     `gorm:"type:text"`
	ReturnCode   *int                        `gorm:"type:integer"`
	ResultStatus *string                     `gorm:"type:text"`
	SignedURL    *string                     `gorm:"type:text"`
	ArtifactKey  *string                     `gorm:"type:text"`
	Artifacts    datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	ResultsAt    *time.Time                  `gorm:"type:timestamptz"`
	CreatedAt    time.Time                   `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt    time.Time                   `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func open(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := open(tx)
	if err != nil {
		return err
	}
	return gormDB.WithContext(ctx).AutoMigrate(&TestScript{})
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := open(tx)
	if err != nil {
		return err
	}
	return gormDB.WithContext(ctx).Migrator().DropTable(&TestScript{})
}
