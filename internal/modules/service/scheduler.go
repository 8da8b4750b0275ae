package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/infra/cache"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"github.com/skatespot-io/skatespot/internal/modules/repo"
	"github.com/skatespot-io/skatespot/internal/pkg/paging"
	"github.com/skatespot-io/skatespot/internal/telemetry"
	"go.uber.org/zap"
)

// startGracePeriod is how far in the past a new session's start time may lie.
const startGracePeriod = 5 * time.Minute

// Actor is the already-authenticated caller. The engine never authenticates;
// it only branches on identity and the admin flag.
type Actor struct {
	ID      uuid.UUID
	IsAdmin bool
}

type SchedulerService interface {
	CreateSession(ctx context.Context, spotID uuid.UUID, organizer Actor, in CreateSessionInput) (*model.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)
	ListUpcomingSessions(ctx context.Context, in ListUpcomingInput) (*ListUpcomingOutput, error)
	UpdateSession(ctx context.Context, sessionID uuid.UUID, actor Actor, in UpdateSessionInput) (*model.Session, error)
	ChangeStatus(ctx context.Context, sessionID uuid.UUID, actor Actor, status model.SessionStatus) (*model.Session, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID, actor Actor) error
	RSVPSession(ctx context.Context, sessionID uuid.UUID, actor Actor, in RSVPInput) (*model.Session, error)
	WithdrawRSVP(ctx context.Context, sessionID uuid.UUID, actor Actor) (*model.Session, error)
}

type schedulerService struct {
	sessions repo.SessionRepo
	spots    repo.SpotRepo
	recorder ActivityRecorder
	locks    *cache.SessionLocker
	log      *zap.Logger
	now      func() time.Time
}

func NewSchedulerService(sessions repo.SessionRepo, spots repo.SpotRepo, recorder ActivityRecorder, locks *cache.SessionLocker, log *zap.Logger) SchedulerService {
	return &schedulerService{
		sessions: sessions,
		spots:    spots,
		recorder: recorder,
		locks:    locks,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateSessionInput struct {
	Title        string
	Description  *string
	MeetLocation *string
	SkillLevel   *string
	StartTime    time.Time
	EndTime      time.Time
	Capacity     *int
}

func (s *schedulerService) CreateSession(ctx context.Context, spotID uuid.UUID, organizer Actor, in CreateSessionInput) (*model.Session, error) {
	if _, err := s.spots.Get(ctx, spotID); err != nil {
		if err == repo.ErrSpotNotFound {
			return nil, ErrSpotNotFound
		}
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title must not be blank", ErrInvalidSchedule)
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if err := s.validateSchedule(start, end); err != nil {
		return nil, err
	}
	if in.Capacity != nil && *in.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidSchedule)
	}

	session := &model.Session{
		SpotID:       spotID,
		OrganizerID:  organizer.ID,
		Title:        title,
		Description:  model.NormalizeOptional(in.Description),
		MeetLocation: model.NormalizeOptional(in.MeetLocation),
		SkillLevel:   model.NormalizeOptional(in.SkillLevel),
		StartTime:    start,
		EndTime:      end,
		Capacity:     in.Capacity,
		Status:       model.SessionScheduled,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.recorder.RecordSessionCreated(ctx, organizer.ID, session.ID, session.Title); err != nil {
		// Best effort: a feed failure never rolls back the session.
		s.log.Warn("failed to record session_created activity",
			zap.Error(err), zap.String("session_id", session.ID.String()))
	}

	return session, nil
}

func (s *schedulerService) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if err == repo.ErrSessionNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

type ListUpcomingInput struct {
	SpotID uuid.UUID
	Limit  int
	Cursor string
}

type ListUpcomingOutput struct {
	Items      []model.Session `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}

func (s *schedulerService) ListUpcomingSessions(ctx context.Context, in ListUpcomingInput) (*ListUpcomingOutput, error) {
	if _, err := s.spots.Get(ctx, in.SpotID); err != nil {
		if err == repo.ErrSpotNotFound {
			return nil, ErrSpotNotFound
		}
		return nil, err
	}

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
		items, err := s.sessions.ListUpcomingBySpot(ctx, in.SpotID, s.now(), afterT, afterID, 0)
		if err != nil {
			return nil, err
		}
		return &ListUpcomingOutput{Items: items}, nil
	}

	// Query limit+1 is used to determine has_more
	items, err := s.sessions.ListUpcomingBySpot(ctx, in.SpotID, s.now(), afterT, afterID, in.Limit+1)
	if err != nil {
		return nil, err
	}

	out := &ListUpcomingOutput{Items: items}
	if len(items) > in.Limit {
		out.HasMore = true
		out.Items = items[:in.Limit]
		last := out.Items[len(out.Items)-1]
		out.NextCursor = paging.EncodeCursor(last.StartTime, last.ID)
	}
	return out, nil
}

type UpdateSessionInput struct {
	Title        *string
	Description  *string
	MeetLocation *string
	SkillLevel   *string
	StartTime    *time.Time
	EndTime      *time.Time
	Capacity     *int
	Status       *model.SessionStatus
}

func (s *schedulerService) UpdateSession(ctx context.Context, sessionID uuid.UUID, actor Actor, in UpdateSessionInput) (*model.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireOrganizerOrAdmin(session, actor); err != nil {
		return nil, err
	}

	// Details of a cancelled/completed session are frozen unless the update
	// itself carries an explicit status change.
	if session.Status != model.SessionScheduled && in.Status == nil {
		return nil, ErrSessionInactive
	}

	fields := map[string]interface{}{}

	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSchedule, *in.Status)
		}
		if *in.Status == model.SessionScheduled && session.Status != model.SessionScheduled && !actor.IsAdmin {
			// Re-activation is admin-only.
			return nil, ErrPermissionDenied
		}
		fields["status"] = *in.Status
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be blank", ErrInvalidSchedule)
		}
		fields["title"] = title
	}
	if in.Description != nil {
		fields["description"] = model.NormalizeOptional(in.Description)
	}
	if in.MeetLocation != nil {
		fields["meet_location"] = model.NormalizeOptional(in.MeetLocation)
	}
	if in.SkillLevel != nil {
		fields["skill_level"] = model.NormalizeOptional(in.SkillLevel)
	}

	if in.StartTime != nil || in.EndTime != nil {
		start := session.StartTime
		end := session.EndTime
		if in.StartTime != nil {
			start = in.StartTime.UTC()
			// A moved start is revalidated against the same grace rule
			// as creation.
			if start.Before(s.now().Add(-startGracePeriod)) {
				return nil, fmt.Errorf("%w: start time is too far in the past", ErrInvalidSchedule)
			}
			fields["start_time"] = start
		}
		if in.EndTime != nil {
			end = in.EndTime.UTC()
			fields["end_time"] = end
		}
		if !end.After(start) {
			return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidSchedule)
		}
	}

	if in.Capacity != nil {
		if *in.Capacity < 1 {
			return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidSchedule)
		}
		fields["capacity"] = *in.Capacity
	}

	if len(fields) == 0 {
		return session, nil
	}

	updated, err := s.sessions.Update(ctx, sessionID, fields)
	if err != nil {
		if err == repo.ErrSessionNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *schedulerService) ChangeStatus(ctx context.Context, sessionID uuid.UUID, actor Actor, status model.SessionStatus) (*model.Session, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSchedule, status)
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireOrganizerOrAdmin(session, actor); err != nil {
		return nil, err
	}
	if status == model.SessionScheduled && session.Status != model.SessionScheduled && !actor.IsAdmin {
		return nil, ErrPermissionDenied
	}

	updated, err := s.sessions.SetStatus(ctx, sessionID, status)
	if err != nil {
		if err == repo.ErrSessionNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *schedulerService) DeleteSession(ctx context.Context, sessionID uuid.UUID, actor Actor) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireOrganizerOrAdmin(session, actor); err != nil {
		return err
	}

	removed, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrSessionNotFound
	}
	return nil
}

type RSVPInput struct {
	Response model.RSVPResponse
	Note     *string
}

func (s *schedulerService) RSVPSession(ctx context.Context, sessionID uuid.UUID, actor Actor, in RSVPInput) (*model.Session, error) {
	if !in.Response.Valid() {
		return nil, fmt.Errorf("%w: unknown response %q", ErrInvalidSchedule, in.Response)
	}

	unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionScheduled {
		return nil, ErrSessionInactive
	}
	if session.EndTime.Before(s.now()) {
		// A session that has already concluded cannot be RSVP'd to.
		return nil, ErrSessionInactive
	}

	_, rsvp, err := s.sessions.UpsertRSVP(ctx, repo.UpsertRSVPParams{
		SessionID: sessionID,
		UserID:    actor.ID,
		Response:  in.Response,
		Note:      model.NormalizeOptional(in.Note),
		// Admins bypass admission control.
		EnforceCapacity: !actor.IsAdmin,
	})
	if err != nil {
		switch err {
		case repo.ErrSessionNotFound:
			return nil, ErrSessionNotFound
		case repo.ErrCapacityReached:
			telemetry.CountRSVPAdmission(ctx, string(in.Response), false)
			return nil, ErrSessionFull
		}
		return nil, err
	}
	telemetry.CountRSVPAdmission(ctx, string(in.Response), true)

	if err := s.recorder.RecordSessionRSVP(ctx, actor.ID, sessionID, rsvp.ID, rsvp.Response, session.Title); err != nil {
		s.log.Warn("failed to record session_rsvp activity",
			zap.Error(err), zap.String("session_id", sessionID.String()))
	}

	// The sweep is cheap and idempotent, so it runs after every RSVP
	// mutation even though only a withdrawal can actually free a slot.
	s.sweepWaitlist(ctx, sessionID)

	return s.GetSession(ctx, sessionID)
}

func (s *schedulerService) WithdrawRSVP(ctx context.Context, sessionID uuid.UUID, actor Actor) (*model.Session, error) {
	unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.sessions.RemoveRSVP(ctx, sessionID, actor.ID); err != nil {
		switch err {
		case repo.ErrSessionNotFound:
			return nil, ErrSessionNotFound
		case repo.ErrRSVPNotFound:
			return nil, ErrRSVPNotFound
		}
		return nil, err
	}

	s.sweepWaitlist(ctx, sessionID)

	return s.GetSession(ctx, sessionID)
}

// sweepWaitlist promotes at most one waitlisted RSVP (FIFO by created_at, id
// tiebreak) when a going slot is free. Promotion failures are logged, not
// propagated: the triggering mutation already committed.
func (s *schedulerService) sweepWaitlist(ctx context.Context, sessionID uuid.UUID) {
	promoted, err := s.sessions.PromoteNextWaitlisted(ctx, sessionID)
	if err != nil {
		s.log.Error("waitlist promotion sweep failed",
			zap.Error(err), zap.String("session_id", sessionID.String()))
		return
	}
	if promoted != nil {
		telemetry.CountWaitlistPromotion(ctx)
		s.log.Info("promoted waitlisted rsvp",
			zap.String("session_id", sessionID.String()),
			zap.String("rsvp_id", promoted.ID.String()),
			zap.String("user_id", promoted.UserID.String()))
	}
}

// lockSession takes the per-session advisory lock when a locker is wired.
// The store's row locks keep each statement atomic on their own; this lock
// additionally serializes the upsert+sweep pair across processes.
func (s *schedulerService) lockSession(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	return s.locks.Acquire(ctx, sessionID)
}

func (s *schedulerService) validateSchedule(start, end time.Time) error {
	if start.Before(s.now().Add(-startGracePeriod)) {
		return fmt.Errorf("%w: start time is too far in the past", ErrInvalidSchedule)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidSchedule)
	}
	return nil
}

func requireOrganizerOrAdmin(session *model.Session, actor Actor) error {
	if session.OrganizerID != actor.ID && !actor.IsAdmin {
		return ErrPermissionDenied
	}
	return nil
}
