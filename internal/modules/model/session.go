package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCancelled SessionStatus = "cancelled"
	SessionCompleted SessionStatus = "completed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionCancelled, SessionCompleted:
		return true
	}
	return false
}

// Session is one organized meetup at a spot. All timestamps are stored in UTC;
// EndTime > StartTime holds for every persisted row.
type Session struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SpotID      uuid.UUID `gorm:"type:uuid;not null;index" json:"spot_id"`
	OrganizerID uuid.UUID `gorm:"type:uuid;not null;index" json:"organizer_id"`

	Title        string  `gorm:"not null" json:"title"`
	Description  *string `json:"description,omitempty"`
	MeetLocation *string `json:"meet_location,omitempty"`
	SkillLevel   *string `json:"skill_level,omitempty"`

	StartTime time.Time `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`

	// Capacity is the maximum number of going RSVPs; nil means unlimited.
	Capacity *int `json:"capacity,omitempty"`

	Status SessionStatus `gorm:"type:varchar(16);not null;default:'scheduled'" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Session <-> Spot
	Spot *Spot `gorm:"foreignKey:SpotID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`

	// Session <-> RSVP
	RSVPs []SessionRSVP `gorm:"constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (Session) TableName() string { return "sessions" }

type SessionStats struct {
	Going    int `json:"going"`
	Maybe    int `json:"maybe"`
	Waitlist int `json:"waitlist"`
}

// Stats derives RSVP counts from the preloaded RSVPs slice.
func (s *Session) Stats() SessionStats {
	var st SessionStats
	for _, r := range s.RSVPs {
		switch r.Response {
		case RSVPGoing:
			st.Going++
		case RSVPMaybe:
			st.Maybe++
		case RSVPWaitlist:
			st.Waitlist++
		}
	}
	return st
}

// SpotsRemaining is capacity minus going count, clamped at zero.
// Nil when the session has no capacity limit.
func (s *Session) SpotsRemaining() *int {
	if s.Capacity == nil {
		return nil
	}
	left := *s.Capacity - s.Stats().Going
	if left < 0 {
		left = 0
	}
	return &left
}

func (s *Session) IsFull() bool {
	if s.Capacity == nil {
		return false
	}
	return s.Stats().Going >= *s.Capacity
}

// ResponseFor returns the given user's RSVP response, nil when they have none.
func (s *Session) ResponseFor(userID uuid.UUID) *RSVPResponse {
	for _, r := range s.RSVPs {
		if r.UserID == userID {
			resp := r.Response
			return &resp
		}
	}
	return nil
}
