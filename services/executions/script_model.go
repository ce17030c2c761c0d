package executions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Script is the gorm model of a test_scripts row: the generated test script
// plus the executor's results for its session.
type Script struct {
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

func (Script) TableName() string { return "test_scripts" }

// Record projects the row onto the execution record read by pollers.
func (s Script) Record() *Record {
	artifacts := []string(s.Artifacts)
	if artifacts == nil {
		artifacts = []string{}
	}
	return &Record{
		SessionID:    s.ChatID,
		Stdout:       deref(s.Stdout),
		Stderr:       deref(s.Stderr),
		ReturnCode:   s.ReturnCode,
		ResultStatus: deref(s.ResultStatus),
		SignedURL:    deref(s.SignedURL),
		ArtifactKey:  deref(s.ArtifactKey),
		Artifacts:    artifacts,
		ResultsAt:    s.ResultsAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
