package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides the identity and audit columns shared by all tables.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Stamp prepares a row for insert: it assigns an ID when none is set and
// sets both audit timestamps to now.
func (m *BaseModel) Stamp(now time.Time) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
}
