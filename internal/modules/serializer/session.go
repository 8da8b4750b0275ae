package serializer

import (
	"time"

	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/modules/model"
)

// SessionView is a Session plus the derived fields the clients render:
// RSVP stats, remaining slots, and the requesting user's own response.
type SessionView struct {
	ID          uuid.UUID `json:"id"`
	SpotID      uuid.UUID `json:"spot_id"`
	OrganizerID uuid.UUID `json:"organizer_id"`

	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	MeetLocation *string `json:"meet_location,omitempty"`
	SkillLevel   *string `json:"skill_level,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Capacity  *int      `json:"capacity,omitempty"`

	Status model.SessionStatus `json:"status"`

	Stats          model.SessionStats  `json:"stats"`
	SpotsRemaining *int                `json:"spots_remaining,omitempty"`
	IsFull         bool                `json:"is_full"`
	UserResponse   *model.RSVPResponse `json:"user_response,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BuildSession annotates a session with its derived fields. currentUserID may
// be nil for anonymous listings.
func BuildSession(s *model.Session, currentUserID *uuid.UUID) SessionView {
	view := SessionView{
		ID:             s.ID,
		SpotID:         s.SpotID,
		OrganizerID:    s.OrganizerID,
		Title:          s.Title,
		Description:    s.Description,
		MeetLocation:   s.MeetLocation,
		SkillLevel:     s.SkillLevel,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Capacity:       s.Capacity,
		Status:         s.Status,
		Stats:          s.Stats(),
		SpotsRemaining: s.SpotsRemaining(),
		IsFull:         s.IsFull(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if currentUserID != nil {
		view.UserResponse = s.ResponseFor(*currentUserID)
	}
	return view
}

func BuildSessionList(sessions []model.Session, currentUserID *uuid.UUID) []SessionView {
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, BuildSession(&sessions[i], currentUserID))
	}
	return views
}
