package model

import (
	"time"

	"github.com/google/uuid"
)

// Spot is owned by the cataloguing side of the application; the scheduling
// engine only checks existence.
type Spot struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	City      *string   `json:"city,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Spot) TableName() string { return "spots" }
