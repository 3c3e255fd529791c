package repository

import (
	"context"

	"gorm.io/gorm"

	"pairpad/internal/models"
)

type HistoryRepository struct {
	DB *gorm.DB
}

// Append stores one history entry.
func (r *HistoryRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

// BySession returns the most recent entries for a session, oldest first.
func (r *HistoryRepository) BySession(ctx context.Context, sessionID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries := []models.HistoryEntry{}
	err := r.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
