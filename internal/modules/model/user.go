package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DisplayName string    `gorm:"not null" json:"display_name"`
	IsAdmin     bool      `gorm:"not null;default:false" json:"is_admin"`

	// Bearer token credentials: HMAC for lookup, argon2id PHC for verification.
	TokenHMAC    string `gorm:"uniqueIndex;not null" json:"-"`
	TokenHashPHC string `gorm:"not null" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }
