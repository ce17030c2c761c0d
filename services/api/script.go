package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"qaflow/services/executions"
)

// TestScript is the API view of a stored test script and its results.
type TestScript struct {
	ID          uuid.UUID    `json:"id"`
	ChatID      string       `json:"chatId"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"createdAt"`
	TestResults *TestResults `json:"testResults,omitempty"`
	Artifacts   []string     `json:"artifacts"`
}

// TestResults mirrors the executor's result fields.
type TestResults struct {
	Key        string `json:"key,omitempty"`
	ReturnCode *int   `json:"returncode,omitempty"`
	SignedURL  string `json:"signed_url,omitempty"`
	Status     string `json:"status,omitempty"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

func scriptToAPI(s executions.Script) TestScript {
	out := TestScript{
		ID:        s.ID,
		ChatID:    s.ChatID,
		Content:   s.Content,
		CreatedAt: s.CreatedAt,
		Artifacts: []string(s.Artifacts),
	}
	if out.Artifacts == nil {
		out.Artifacts = []string{}
	}
	if s.ResultsAt != nil || s.Stdout != nil {
		rec := s.Record()
		out.TestResults = &TestResults{
			Key:        rec.ArtifactKey,
			ReturnCode: rec.ReturnCode,
			SignedURL:  rec.SignedURL,
			Status:     rec.ResultStatus,
			Stdout:     rec.Stdout,
			Stderr:     rec.Stderr,
		}
	}
	return out
}

// ErrScriptNotFound is returned when a session has no stored script.
var ErrScriptNotFound = errors.New("test script not found")

// ScriptRepository persists generated test scripts.
type ScriptRepository interface {
	Create(ctx context.Context, chatID, content string) (executions.Script, error)
	Latest(ctx context.Context, chatID string) (executions.Script, error)
}

// GormScripts is the gorm-backed ScriptRepository.
type GormScripts struct {
	orm *gorm.DB
}

// NewGormScripts returns a repository on orm.
func NewGormScripts(orm *gorm.DB) (*GormScripts, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &GormScripts{orm: orm}, nil
}

func (g *GormScripts) Create(ctx context.Context, chatID, content string) (executions.Script, error) {
	model := executions.Script{
		ID:      uuid.New(),
		ChatID:  chatID,
		Content: content,
	}
	if err := g.orm.WithContext(ctx).Create(&model).Error; err != nil {
		return executions.Script{}, err
	}
	return model, nil
}

func (g *GormScripts) Latest(ctx context.Context, chatID string) (executions.Script, error) {
	var model executions.Script
	err := g.orm.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return executions.Script{}, ErrScriptNotFound
	}
	if err != nil {
		return executions.Script{}, err
	}
	return model, nil
}
