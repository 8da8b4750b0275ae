package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"github.com/skatespot-io/skatespot/internal/modules/repo"
	"github.com/skatespot-io/skatespot/internal/pkg/paging"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ActivityIngestService turns recorder events from the queue into activity
// feed rows. Runs in the worker process.
type ActivityIngestService interface {
	HandleEvent(ctx context.Context, body []byte) error
}

// ActivityFeedService reads an actor's own activity feed, newest first.
type ActivityFeedService interface {
	ListActivities(ctx context.Context, in ListActivitiesInput) (*ListActivitiesOutput, error)
}

type ListActivitiesInput struct {
	ActorID uuid.UUID
	Limit   int
	Cursor  string
}

type ListActivitiesOutput struct {
	Items      []model.Activity `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

type activityFeedService struct {
	r repo.ActivityRepo
}

func NewActivityFeedService(r repo.ActivityRepo) ActivityFeedService {
	return &activityFeedService{r: r}
}

func (s *activityFeedService) ListActivities(ctx context.Context, in ListActivitiesInput) (*ListActivitiesOutput, error) {
	var afterT time.Time
	var afterID uuid.UUID
	var err error
	if in.Cursor != "" {
		afterT, afterID, err = paging.DecodeCursor(in.Cursor)
		if err != nil {
			return nil, err
		}
	}

	if in.Limit == 0 {
		items, err := s.r.ListByActor(ctx, in.ActorID, afterT, afterID, 0)
		if err != nil {
			return nil, err
		}
		return &ListActivitiesOutput{Items: items}, nil
	}

	// Query limit+1 is used to determine has_more
	items, err := s.r.ListByActor(ctx, in.ActorID, afterT, afterID, in.Limit+1)
	if err != nil {
		return nil, err
	}

	out := &ListActivitiesOutput{Items: items}
	if len(items) > in.Limit {
		out.HasMore = true
		out.Items = items[:in.Limit]
		last := out.Items[len(out.Items)-1]
		out.NextCursor = paging.EncodeCursor(last.CreatedAt, last.ID)
	}
	return out, nil
}

type activityIngestService struct {
	r   repo.ActivityRepo
	log *zap.Logger
}

func NewActivityIngestService(r repo.ActivityRepo, log *zap.Logger) ActivityIngestService {
	return &activityIngestService{r: r, log: log}
}

func (s *activityIngestService) HandleEvent(ctx context.Context, body []byte) error {
	var ev ActivityEventMQ
	if err := sonic.Unmarshal(body, &ev); err != nil {
		// A malformed payload will never parse on redelivery; drop it.
		s.log.Error("dropping malformed activity event", zap.Error(err))
		return nil
	}

	payload := datatypes.JSONMap{"title": ev.Title}
	if ev.RSVPID != nil {
		payload["rsvp_id"] = ev.RSVPID.String()
		payload["response"] = string(ev.Response)
	}

	sessionID := ev.SessionID
	activity := &model.Activity{
		ActorID:   ev.ActorID,
		Kind:      ev.Kind,
		SessionID: &sessionID,
		Payload:   payload,
	}
	if err := s.r.Append(ctx, activity); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}
