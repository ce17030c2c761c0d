package executions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResultMessage is what the executor reports when a run ends.
type ResultMessage struct {
	ChatID     string       `json:"chat_id"`
	Stdout     string       `json:"stdout"`
	Stderr     string       `json:"stderr"`
	ReturnCode *int         `json:"returncode"`
	Status     string       `json:"status"`
	SignedURL  string       `json:"signed_url"`
	Key        string       `json:"key"`
	Artifacts  ArtifactList `json:"artifacts"`
}

// Validate checks the fields every result must carry.
func (m ResultMessage) Validate() error {
	if strings.TrimSpace(m.ChatID) == "" {
		return errors.New("chat_id is required")
	}
	return nil
}

// ArtifactList accepts either a JSON array of names or a single string. A
// string holding a JSON array is decoded as one.
type ArtifactList []string

func (a *ArtifactList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = compact(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return errors.New("artifacts: expected string or array of strings")
	}
	single = strings.TrimSpace(single)
	if strings.HasPrefix(single, "[") {
		if err := json.Unmarshal([]byte(single), &list); err == nil {
			*a = compact(list)
			return nil
		}
	}
	if single == "" {
		*a = nil
		return nil
	}
	*a = ArtifactList{single}
	return nil
}

func compact(in []string) ArtifactList {
	out := make(ArtifactList, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DecodeResult parses and validates an executor result payload.
func DecodeResult(data []byte) (ResultMessage, error) {
	var msg ResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ResultMessage{}, fmt.Errorf("decode result: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return ResultMessage{}, err
	}
	return msg, nil
}

// ResultWriter persists executor results onto a session's record.
type ResultWriter interface {
	SaveResult(ctx context.Context, msg ResultMessage) (*Record, error)
}

// GormResults writes results with gorm.
type GormResults struct {
	orm *gorm.DB
}

// NewGormResults returns a ResultWriter over orm.
func NewGormResults(orm *gorm.DB) (*GormResults, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &GormResults{orm: orm}, nil
}

// SaveResult updates the session's most recent script row, creating an
// empty one when the executor reports for an unknown session.
func (g *GormResults) SaveResult(ctx context.Context, msg ResultMessage) (*Record, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var saved Script
	err := g.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model Script
		err := tx.Where("chat_id = ?", msg.ChatID).
			Order("created_at DESC").
			First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model = Script{ID: uuid.New(), ChatID: msg.ChatID}
		case err != nil:
			return err
		}

		applyResult(&model, msg, time.Now().UTC())
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		saved = model
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save result for %s: %w", msg.ChatID, err)
	}
	return saved.Record(), nil
}

func applyResult(model *Script, msg ResultMessage, at time.Time) {
	model.Stdout = &msg.Stdout
	model.Stderr = &msg.Stderr
	model.ReturnCode = msg.ReturnCode
	model.ResultStatus = optional(msg.Status)
	model.SignedURL = optional(msg.SignedURL)
	model.ArtifactKey = optional(msg.Key)
	model.Artifacts = []string(msg.Artifacts)
	if model.Artifacts == nil {
		model.Artifacts = []string{}
	}
	model.ResultsAt = &at
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
