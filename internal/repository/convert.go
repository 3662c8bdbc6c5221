package repository

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cvlm/internal/database"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.ErrNoRows
	}
	return err
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func ensureCreatedAt(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	} else {
		*t = t.UTC()
	}
}

func toUser(row database.User) *domain.User {
	return &domain.User{
		ID:          row.ID,
		Email:       row.Email,
		Name:        row.Name,
		PDFCredits:  row.PDFCredits,
		TextCredits: row.TextCredits,
		CreatedAt:   row.CreatedAt,
	}
}

func toCV(row database.CV) domain.CV {
	return domain.CV{
		ID:        row.ID,
		UserID:    row.UserID,
		Filename:  row.Filename,
		FilePath:  row.FilePath,
		FileSize:  row.FileSize,
		RawText:   row.RawText,
		CreatedAt: row.CreatedAt,
	}
}

func toLetter(row database.Letter) domain.Letter {
	return domain.Letter{
		ID:          row.ID,
		UserID:      row.UserID,
		CVID:        row.CVID,
		JobOfferURL: row.JobOfferURL,
		Filename:    row.Filename,
		FilePath:    row.FilePath,
		FileSize:    row.FileSize,
		RawText:     row.RawText,
		LLMProvider: row.LLMProvider,
		CreatedAt:   row.CreatedAt,
	}
}

func fromHistory(e *domain.HistoryEntry) (database.GenerationHistory, error) {
	var meta datatypes.JSON
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return database.GenerationHistory{}, err
		}
		meta = datatypes.JSON(raw)
	}
	var expires *time.Time
	if e.FileExpiresAt != nil {
		t := e.FileExpiresAt.UTC()
		expires = &t
	}
	return database.GenerationHistory{
		ID:            e.ID,
		UserID:        e.UserID,
		Type:          string(e.Type),
		Status:        string(e.Status),
		JobTitle:      e.JobTitle,
		CompanyName:   e.CompanyName,
		JobURL:        e.JobURL,
		CVID:          e.CVID,
		CVFilename:    e.CVFilename,
		LetterID:      e.LetterID,
		FilePath:      e.FilePath,
		TextContent:   e.TextContent,
		ErrorMessage:  e.ErrorMessage,
		Metadata:      meta,
		CreatedAt:     e.CreatedAt,
		FileExpiresAt: expires,
	}, nil
}

func toHistory(row database.GenerationHistory) domain.HistoryEntry {
	entry := domain.HistoryEntry{
		ID:            row.ID,
		UserID:        row.UserID,
		Type:          domain.ResourceKind(row.Type),
		Status:        domain.HistoryStatus(row.Status),
		JobTitle:      row.JobTitle,
		CompanyName:   row.CompanyName,
		JobURL:        row.JobURL,
		CVID:          row.CVID,
		CVFilename:    row.CVFilename,
		LetterID:      row.LetterID,
		FilePath:      row.FilePath,
		TextContent:   row.TextContent,
		ErrorMessage:  row.ErrorMessage,
		CreatedAt:     row.CreatedAt,
		FileExpiresAt: row.FileExpiresAt,
	}
	if len(row.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(row.Metadata, &meta); err == nil {
			entry.Metadata = meta
		}
	}
	return entry
}
