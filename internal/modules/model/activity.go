package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActivitySessionCreated = "session_created"
	ActivitySessionRSVP    = "session_rsvp"
)

// Activity is one row of the append-only activity feed, written by the worker
// that consumes recorder events off the queue.
type Activity struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"actor_id"`
	Kind      string            `gorm:"type:varchar(32);not null;index" json:"kind"`
	SessionID *uuid.UUID        `gorm:"type:uuid;index" json:"session_id,omitempty"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb" json:"payload"`
	CreatedAt time.Time         `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Activity) TableName() string { return "activities" }
