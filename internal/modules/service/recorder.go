package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/config"
	mq "github.com/skatespot-io/skatespot/internal/infra/queue"
	"github.com/skatespot-io/skatespot/internal/modules/model"
)

// ActivityRecorder reports engine events to the activity feed. Calls are
// fire-and-forget from the engine's point of view: the scheduler logs and
// discards any error instead of failing the triggering mutation.
type ActivityRecorder interface {
	RecordSessionCreated(ctx context.Context, actorID, sessionID uuid.UUID, title string) error
	RecordSessionRSVP(ctx context.Context, actorID, sessionID, rsvpID uuid.UUID, response model.RSVPResponse, title string) error
}

// ActivityEventMQ is the wire shape consumed by the activity worker.
type ActivityEventMQ struct {
	Kind      string             `json:"kind"`
	ActorID   uuid.UUID          `json:"actor_id"`
	SessionID uuid.UUID          `json:"session_id"`
	RSVPID    *uuid.UUID         `json:"rsvp_id,omitempty"`
	Response  model.RSVPResponse `json:"response,omitempty"`
	Title     string             `json:"title"`
}

type mqActivityRecorder struct {
	publisher *mq.Publisher
	cfg       *config.Config
}

func NewActivityRecorder(publisher *mq.Publisher, cfg *config.Config) ActivityRecorder {
	return &mqActivityRecorder{publisher: publisher, cfg: cfg}
}

func (r *mqActivityRecorder) RecordSessionCreated(ctx context.Context, actorID, sessionID uuid.UUID, title string) error {
	return r.publisher.PublishJSON(ctx,
		r.cfg.RabbitMQ.ExchangeName.Activity,
		r.cfg.RabbitMQ.RoutingKey.SessionCreated,
		ActivityEventMQ{
			Kind:      model.ActivitySessionCreated,
			ActorID:   actorID,
			SessionID: sessionID,
			Title:     title,
		})
}

func (r *mqActivityRecorder) RecordSessionRSVP(ctx context.Context, actorID, sessionID, rsvpID uuid.UUID, response model.RSVPResponse, title string) error {
	return r.publisher.PublishJSON(ctx,
		r.cfg.RabbitMQ.ExchangeName.Activity,
		r.cfg.RabbitMQ.RoutingKey.SessionRSVP,
		ActivityEventMQ{
			Kind:      model.ActivitySessionRSVP,
			ActorID:   actorID,
			SessionID: sessionID,
			RSVPID:    &rsvpID,
			Response:  response,
			Title:     title,
		})
}
