package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pairpad/internal/models"
	"pairpad/internal/store"
)

// Open connects to the session database and runs migrations.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	if err := db.AutoMigrate(&models.StoredSession{}, &models.HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("migrate session database: %w", err)
	}
	return db, nil
}

type SessionRepository struct {
	DB *gorm.DB
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *models.StoredSession) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

// Get returns the session row or models.ErrSessionNotFound.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*models.StoredSession, error) {
	var s models.StoredSession
	err := r.DB.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSession implements store.Loader.
func (r *SessionRepository) LoadSession(ctx context.Context, sessionID string) (*store.SessionRecord, error) {
	s, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &store.SessionRecord{
		SessionID: s.SessionID,
		Title:     s.Title,
		Code:      s.Code,
		Language:  models.Language(s.Language),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}, nil
}

// Update patches title and/or language. Nil fields are left untouched.
func (r *SessionRepository) Update(ctx context.Context, sessionID string, language *models.Language, title *string) (*models.StoredSession, error) {
	s, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if language != nil {
		updates["language"] = string(*language)
		s.Language = string(*language)
	}
	if title != nil {
		updates["title"] = *title
		s.Title = *title
	}
	if len(updates) == 0 {
		return s, nil
	}
	if err := r.DB.WithContext(ctx).Model(&models.StoredSession{}).
		Where("session_id = ?", sessionID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes the session and its history. Deleting an unknown session
// returns models.ErrSessionNotFound.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	res := r.DB.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.StoredSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return r.DB.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.HistoryEntry{}).Error
}

// SaveCode writes through the latest accepted code for a session.
func (r *SessionRepository) SaveCode(ctx context.Context, sessionID, code string, language models.Language) error {
	res := r.DB.WithContext(ctx).Model(&models.StoredSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"code":          code,
			"language":      string(language),
			"last_modified": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// SaveLanguage writes through the latest accepted language for a session.
func (r *SessionRepository) SaveLanguage(ctx context.Context, sessionID string, language models.Language) error {
	res := r.DB.WithContext(ctx).Model(&models.StoredSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"language":      string(language),
			"last_modified": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// DeleteExpired removes sessions whose expiry has passed and returns their ids
// so the caller can tear down any live connections.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	var expired []models.StoredSession
	if err := r.DB.WithContext(ctx).
		Where("expires_at <= ?", now).Find(&expired).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		if err := r.Delete(ctx, s.SessionID); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
			return ids, err
		}
		ids = append(ids, s.SessionID)
	}
	return ids, nil
}
