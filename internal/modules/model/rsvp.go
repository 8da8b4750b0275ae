package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RSVPResponse string

const (
	RSVPGoing    RSVPResponse = "going"
	RSVPMaybe    RSVPResponse = "maybe"
	RSVPWaitlist RSVPResponse = "waitlist"
)

func (r RSVPResponse) Valid() bool {
	switch r {
	case RSVPGoing, RSVPMaybe, RSVPWaitlist:
		return true
	}
	return false
}

// SessionRSVP is one user's declared intention toward one session. At most one
// row exists per (session, user) pair; re-RSVPing updates the row in place.
// CreatedAt never changes after the first insert and is the waitlist ordering
// basis.
type SessionRSVP struct {
	ID        uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_session_user" json:"session_id"`
	UserID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_session_user" json:"user_id"`
	Response  RSVPResponse `gorm:"type:varchar(16);not null" json:"response"`
	Note      *string      `json:"note,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Session *Session `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
	User    *User    `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (SessionRSVP) TableName() string { return "session_rsvps" }

// NormalizeOptional trims a free-form field and maps blank strings to unset.
func NormalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
