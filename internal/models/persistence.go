package models

import (
	"time"

	"gorm.io/gorm"
)

// StoredSession is the persisted session row backing the hub's lazy hydration.
type StoredSession struct {
	SessionID    string `gorm:"primaryKey"`
	Title        string
	Language     string
	Code         string    `gorm:"type:text"`
	CreatedAt    time.Time
	ExpiresAt    time.Time `gorm:"index"`
	LastModified time.Time
}

// HistoryEntry records one accepted code-update or language-change.
type HistoryEntry struct {
	gorm.Model
	SessionID     string `gorm:"not null;index"`
	ParticipantID string
	ChangeType    string
	Snapshot      string `gorm:"type:text"`
	OccurredAt    time.Time
}
