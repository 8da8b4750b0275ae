package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"github.com/skatespot-io/skatespot/internal/modules/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSessionRepo is a mock implementation of repo.SessionRepo
type MockSessionRepo struct {
	mock.Mock
}

func (m *MockSessionRepo) Create(ctx context.Context, s *model.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepo) Get(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepo) ListUpcomingBySpot(ctx context.Context, spotID uuid.UUID, now time.Time, afterStart time.Time, afterID uuid.UUID, limit int) ([]model.Session, error) {
	args := m.Called(ctx, spotID, now, afterStart, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *MockSessionRepo) Update(ctx context.Context, sessionID uuid.UUID, fields map[string]interface{}) (*model.Session, error) {
	args := m.Called(ctx, sessionID, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepo) SetStatus(ctx context.Context, sessionID uuid.UUID, status model.SessionStatus) (*model.Session, error) {
	args := m.Called(ctx, sessionID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepo) Delete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepo) UpsertRSVP(ctx context.Context, in repo.UpsertRSVPParams) (*model.Session, *model.SessionRSVP, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.Session), args.Get(1).(*model.SessionRSVP), args.Error(2)
}

func (m *MockSessionRepo) RemoveRSVP(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) (*model.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepo) NextWaitlisted(ctx context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionRSVP), args.Error(1)
}

func (m *MockSessionRepo) PromoteWaitlisted(ctx context.Context, rsvpID uuid.UUID) (*model.SessionRSVP, error) {
	args := m.Called(ctx, rsvpID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionRSVP), args.Error(1)
}

func (m *MockSessionRepo) PromoteNextWaitlisted(ctx context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionRSVP), args.Error(1)
}

// MockSpotRepo is a mock implementation of repo.SpotRepo
type MockSpotRepo struct {
	mock.Mock
}

func (m *MockSpotRepo) Get(ctx context.Context, spotID uuid.UUID) (*model.Spot, error) {
	args := m.Called(ctx, spotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Spot), args.Error(1)
}

// MockRecorder is a mock implementation of ActivityRecorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordSessionCreated(ctx context.Context, actorID, sessionID uuid.UUID, title string) error {
	args := m.Called(ctx, actorID, sessionID, title)
	return args.Error(0)
}

func (m *MockRecorder) RecordSessionRSVP(ctx context.Context, actorID, sessionID, rsvpID uuid.UUID, response model.RSVPResponse, title string) error {
	args := m.Called(ctx, actorID, sessionID, rsvpID, response, title)
	return args.Error(0)
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func newTestScheduler(sessions repo.SessionRepo, spots repo.SpotRepo, rec ActivityRecorder, now time.Time) *schedulerService {
	svc := NewSchedulerService(sessions, spots, rec, nil, zap.NewNop()).(*schedulerService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestSchedulerService_CreateSession(t *testing.T) {
	ctx := context.Background()
	spotID := uuid.New()
	organizer := Actor{ID: uuid.New()}
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)

	validInput := func() CreateSessionInput {
		return CreateSessionInput{
			Title:     "Sunset ledge session",
			StartTime: now.Add(2 * time.Hour),
			EndTime:   now.Add(4 * time.Hour),
		}
	}

	tests := []struct {
		name    string
		input   CreateSessionInput
		setup   func(*MockSessionRepo, *MockSpotRepo, *MockRecorder)
		wantErr error
	}{
		{
			name:  "successful creation",
			input: validInput(),
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(&model.Spot{ID: spotID}, nil)
				sessions.On("Create", ctx, mock.AnythingOfType("*model.Session")).Return(nil)
				rec.On("RecordSessionCreated", ctx, organizer.ID, mock.Anything, "Sunset ledge session").Return(nil)
			},
		},
		{
			name:  "spot does not exist",
			input: validInput(),
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(nil, repo.ErrSpotNotFound)
			},
			wantErr: ErrSpotNotFound,
		},
		{
			name: "blank title",
			input: CreateSessionInput{
				Title:     "   ",
				StartTime: now.Add(time.Hour),
				EndTime:   now.Add(2 * time.Hour),
			},
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(&model.Spot{ID: spotID}, nil)
			},
			wantErr: ErrInvalidSchedule,
		},
		{
			name: "start more than five minutes in the past",
			input: CreateSessionInput{
				Title:     "Morning bowl",
				StartTime: now.Add(-6 * time.Minute),
				EndTime:   now.Add(2 * time.Hour),
			},
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(&model.Spot{ID: spotID}, nil)
			},
			wantErr: ErrInvalidSchedule,
		},
		{
			name: "start four minutes in the past is inside the grace window",
			input: CreateSessionInput{
				Title:     "Morning bowl",
				StartTime: now.Add(-4 * time.Minute),
				EndTime:   now.Add(2 * time.Hour),
			},
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(&model.Spot{ID: spotID}, nil)
				sessions.On("Create", ctx, mock.AnythingOfType("*model.Session")).Return(nil)
				rec.On("RecordSessionCreated", ctx, organizer.ID, mock.Anything, "Morning bowl").Return(nil)
			},
		},
		{
			name: "end before start",
			input: CreateSessionInput{
				Title:     "Backwards",
				StartTime: now.Add(2 * time.Hour),
				EndTime:   now.Add(time.Hour),
			},
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(&model.Spot{ID: spotID}, nil)
			},
			wantErr: ErrInvalidSchedule,
		},
		{
			name: "zero capacity",
			input: CreateSessionInput{
				Title:     "Tiny",
				StartTime: now.Add(time.Hour),
				EndTime:   now.Add(2 * time.Hour),
				Capacity:  intPtr(0),
			},
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(&model.Spot{ID: spotID}, nil)
			},
			wantErr: ErrInvalidSchedule,
		},
		{
			name:  "recorder failure does not fail the call",
			input: validInput(),
			setup: func(sessions *MockSessionRepo, spots *MockSpotRepo, rec *MockRecorder) {
				spots.On("Get", ctx, spotID).Return(&model.Spot{ID: spotID}, nil)
				sessions.On("Create", ctx, mock.AnythingOfType("*model.Session")).Return(nil)
				rec.On("RecordSessionCreated", ctx, organizer.ID, mock.Anything, "Sunset ledge session").
					Return(errors.New("broker unreachable"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &MockSessionRepo{}
			spots := &MockSpotRepo{}
			rec := &MockRecorder{}
			tt.setup(sessions, spots, rec)

			svc := newTestScheduler(sessions, spots, rec, now)
			result, err := svc.CreateSession(ctx, spotID, organizer, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				require.NotNil(t, result)
				assert.Equal(t, model.SessionScheduled, result.Status)
				assert.Equal(t, organizer.ID, result.OrganizerID)
				assert.Zero(t, result.Stats().Going)
			}

			sessions.AssertExpectations(t)
			spots.AssertExpectations(t)
			rec.AssertExpectations(t)
		})
	}
}

func TestSchedulerService_PermissionGate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	organizerID := uuid.New()
	stranger := Actor{ID: uuid.New()}
	sessionID := uuid.New()

	stored := &model.Session{
		ID:          sessionID,
		OrganizerID: organizerID,
		Status:      model.SessionScheduled,
		StartTime:   now.Add(time.Hour),
		EndTime:     now.Add(2 * time.Hour),
	}

	t.Run("update by stranger", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(stored, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.UpdateSession(ctx, sessionID, stranger, UpdateSessionInput{Title: strPtr("Hijacked")})
		assert.ErrorIs(t, err, ErrPermissionDenied)
		// no write reached the store
		sessions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("change status by stranger", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(stored, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.ChangeStatus(ctx, sessionID, stranger, model.SessionCancelled)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		sessions.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delete by stranger", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(stored, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		err := svc.DeleteSession(ctx, sessionID, stranger)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		sessions.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("admin passes the gate", func(t *testing.T) {
		admin := Actor{ID: uuid.New(), IsAdmin: true}
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(stored, nil)
		sessions.On("Delete", ctx, sessionID).Return(true, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		require.NoError(t, svc.DeleteSession(ctx, sessionID, admin))
		sessions.AssertExpectations(t)
	})
}

func TestSchedulerService_Reactivation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	organizerID := uuid.New()
	sessionID := uuid.New()

	cancelled := &model.Session{
		ID:          sessionID,
		OrganizerID: organizerID,
		Status:      model.SessionCancelled,
		StartTime:   now.Add(time.Hour),
		EndTime:     now.Add(2 * time.Hour),
	}

	t.Run("organizer may not re-activate", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(cancelled, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.ChangeStatus(ctx, sessionID, Actor{ID: organizerID}, model.SessionScheduled)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("admin may re-activate", func(t *testing.T) {
		reactivated := *cancelled
		reactivated.Status = model.SessionScheduled

		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(cancelled, nil)
		sessions.On("SetStatus", ctx, sessionID, model.SessionScheduled).Return(&reactivated, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		got, err := svc.ChangeStatus(ctx, sessionID, Actor{ID: uuid.New(), IsAdmin: true}, model.SessionScheduled)
		require.NoError(t, err)
		assert.Equal(t, model.SessionScheduled, got.Status)
	})

	t.Run("editing a cancelled session without a status change is rejected", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(cancelled, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.UpdateSession(ctx, sessionID, Actor{ID: organizerID}, UpdateSessionInput{Title: strPtr("New title")})
		assert.ErrorIs(t, err, ErrSessionInactive)
	})
}

func TestSchedulerService_RSVPGates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	sessionID := uuid.New()
	actor := Actor{ID: uuid.New()}

	t.Run("cancelled session rejects rsvp regardless of capacity", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(&model.Session{
			ID:        sessionID,
			Status:    model.SessionCancelled,
			StartTime: now.Add(time.Hour),
			EndTime:   now.Add(2 * time.Hour),
		}, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.RSVPSession(ctx, sessionID, actor, RSVPInput{Response: model.RSVPGoing})
		assert.ErrorIs(t, err, ErrSessionInactive)
		sessions.AssertNotCalled(t, "UpsertRSVP", mock.Anything, mock.Anything)
	})

	t.Run("concluded session rejects rsvp", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(&model.Session{
			ID:        sessionID,
			Status:    model.SessionScheduled,
			StartTime: now.Add(-3 * time.Hour),
			EndTime:   now.Add(-time.Hour),
		}, nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.RSVPSession(ctx, sessionID, actor, RSVPInput{Response: model.RSVPGoing})
		assert.ErrorIs(t, err, ErrSessionInactive)
	})

	t.Run("capacity reached maps to session full", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(&model.Session{
			ID:        sessionID,
			Status:    model.SessionScheduled,
			Capacity:  intPtr(1),
			StartTime: now.Add(time.Hour),
			EndTime:   now.Add(2 * time.Hour),
		}, nil)
		sessions.On("UpsertRSVP", ctx, mock.MatchedBy(func(in repo.UpsertRSVPParams) bool {
			return in.EnforceCapacity
		})).Return(nil, nil, repo.ErrCapacityReached)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.RSVPSession(ctx, sessionID, actor, RSVPInput{Response: model.RSVPGoing})
		assert.ErrorIs(t, err, ErrSessionFull)
	})

	t.Run("admin bypasses admission control", func(t *testing.T) {
		admin := Actor{ID: uuid.New(), IsAdmin: true}
		stored := &model.Session{
			ID:        sessionID,
			Status:    model.SessionScheduled,
			Capacity:  intPtr(1),
			StartTime: now.Add(time.Hour),
			EndTime:   now.Add(2 * time.Hour),
		}
		rsvp := &model.SessionRSVP{ID: uuid.New(), SessionID: sessionID, UserID: admin.ID, Response: model.RSVPGoing}

		sessions := &MockSessionRepo{}
		sessions.On("Get", ctx, sessionID).Return(stored, nil)
		sessions.On("UpsertRSVP", ctx, mock.MatchedBy(func(in repo.UpsertRSVPParams) bool {
			return !in.EnforceCapacity && in.UserID == admin.ID
		})).Return(stored, rsvp, nil)
		sessions.On("PromoteNextWaitlisted", ctx, sessionID).Return(nil, nil)

		rec := &MockRecorder{}
		rec.On("RecordSessionRSVP", ctx, admin.ID, sessionID, rsvp.ID, model.RSVPGoing, mock.Anything).Return(nil)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, rec, now)
		_, err := svc.RSVPSession(ctx, sessionID, admin, RSVPInput{Response: model.RSVPGoing})
		require.NoError(t, err)
		sessions.AssertExpectations(t)
	})

	t.Run("withdraw without an rsvp", func(t *testing.T) {
		sessions := &MockSessionRepo{}
		sessions.On("RemoveRSVP", ctx, sessionID, actor.ID).Return(nil, repo.ErrRSVPNotFound)

		svc := newTestScheduler(sessions, &MockSpotRepo{}, &MockRecorder{}, now)
		_, err := svc.WithdrawRSVP(ctx, sessionID, actor)
		assert.ErrorIs(t, err, ErrRSVPNotFound)
	})
}

// fakeSessionStore is an in-memory SessionRepo with the store's real
// admission and promotion semantics, for exercising full join/leave flows.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session
	rsvps    map[uuid.UUID]*model.SessionRSVP
	seq      int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[uuid.UUID]*model.Session{},
		rsvps:    map[uuid.UUID]*model.SessionRSVP{},
	}
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) snapshot(sessionID uuid.UUID) (*model.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	cp := *s
	cp.RSVPs = nil
	for _, r := range f.rsvps {
		if r.SessionID == sessionID {
			cp.RSVPs = append(cp.RSVPs, *r)
		}
	}
	sort.Slice(cp.RSVPs, func(i, j int) bool {
		if !cp.RSVPs[i].CreatedAt.Equal(cp.RSVPs[j].CreatedAt) {
			return cp.RSVPs[i].CreatedAt.Before(cp.RSVPs[j].CreatedAt)
		}
		return cp.RSVPs[i].ID.String() < cp.RSVPs[j].ID.String()
	})
	return &cp, nil
}

func (f *fakeSessionStore) Get(_ context.Context, sessionID uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(sessionID)
}

func (f *fakeSessionStore) ListUpcomingBySpot(_ context.Context, spotID uuid.UUID, now time.Time, _ time.Time, _ uuid.UUID, _ int) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for id, s := range f.sessions {
		if s.SpotID == spotID && !s.StartTime.Before(now) {
			snap, _ := f.snapshot(id)
			out = append(out, *snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeSessionStore) Update(_ context.Context, sessionID uuid.UUID, fields map[string]interface{}) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	for k, v := range fields {
		switch k {
		case "title":
			s.Title = v.(string)
		case "description":
			s.Description = v.(*string)
		case "meet_location":
			s.MeetLocation = v.(*string)
		case "skill_level":
			s.SkillLevel = v.(*string)
		case "start_time":
			s.StartTime = v.(time.Time)
		case "end_time":
			s.EndTime = v.(time.Time)
		case "capacity":
			c := v.(int)
			s.Capacity = &c
		case "status":
			s.Status = v.(model.SessionStatus)
		}
	}
	return f.snapshot(sessionID)
}

func (f *fakeSessionStore) SetStatus(ctx context.Context, sessionID uuid.UUID, status model.SessionStatus) (*model.Session, error) {
	return f.Update(ctx, sessionID, map[string]interface{}{"status": status})
}

func (f *fakeSessionStore) Delete(_ context.Context, sessionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(f.sessions, sessionID)
	for id, r := range f.rsvps {
		if r.SessionID == sessionID {
			delete(f.rsvps, id)
		}
	}
	return true, nil
}

func (f *fakeSessionStore) goingCount(sessionID uuid.UUID) int {
	n := 0
	for _, r := range f.rsvps {
		if r.SessionID == sessionID && r.Response == model.RSVPGoing {
			n++
		}
	}
	return n
}

func (f *fakeSessionStore) findRSVP(sessionID, userID uuid.UUID) *model.SessionRSVP {
	for _, r := range f.rsvps {
		if r.SessionID == sessionID && r.UserID == userID {
			return r
		}
	}
	return nil
}

func (f *fakeSessionStore) UpsertRSVP(_ context.Context, in repo.UpsertRSVPParams) (*model.Session, *model.SessionRSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[in.SessionID]
	if !ok {
		return nil, nil, repo.ErrSessionNotFound
	}

	existing := f.findRSVP(in.SessionID, in.UserID)
	if in.EnforceCapacity && in.Response == model.RSVPGoing && s.Capacity != nil {
		if existing == nil || existing.Response != model.RSVPGoing {
			if f.goingCount(in.SessionID) >= *s.Capacity {
				return nil, nil, repo.ErrCapacityReached
			}
		}
	}

	if existing != nil {
		existing.Response = in.Response
		existing.Note = in.Note
		snap, err := f.snapshot(in.SessionID)
		cp := *existing
		return snap, &cp, err
	}

	f.seq++
	r := &model.SessionRSVP{
		ID:        uuid.New(),
		SessionID: in.SessionID,
		UserID:    in.UserID,
		Response:  in.Response,
		Note:      in.Note,
		CreatedAt: time.Unix(int64(f.seq), 0).UTC(),
	}
	f.rsvps[r.ID] = r
	snap, err := f.snapshot(in.SessionID)
	cp := *r
	return snap, &cp, err
}

func (f *fakeSessionStore) RemoveRSVP(_ context.Context, sessionID, userID uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, repo.ErrSessionNotFound
	}
	r := f.findRSVP(sessionID, userID)
	if r == nil {
		return nil, repo.ErrRSVPNotFound
	}
	delete(f.rsvps, r.ID)
	return f.snapshot(sessionID)
}

func (f *fakeSessionStore) nextWaitlistedLocked(sessionID uuid.UUID) *model.SessionRSVP {
	var next *model.SessionRSVP
	for _, r := range f.rsvps {
		if r.SessionID != sessionID || r.Response != model.RSVPWaitlist {
			continue
		}
		if next == nil ||
			r.CreatedAt.Before(next.CreatedAt) ||
			(r.CreatedAt.Equal(next.CreatedAt) && r.ID.String() < next.ID.String()) {
			next = r
		}
	}
	return next
}

func (f *fakeSessionStore) NextWaitlisted(_ context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.nextWaitlistedLocked(sessionID); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeSessionStore) PromoteWaitlisted(_ context.Context, rsvpID uuid.UUID) (*model.SessionRSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rsvps[rsvpID]
	if !ok {
		return nil, repo.ErrRSVPNotFound
	}
	r.Response = model.RSVPGoing
	cp := *r
	return &cp, nil
}

func (f *fakeSessionStore) PromoteNextWaitlisted(_ context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	if s.Capacity == nil {
		return nil, nil
	}
	if f.goingCount(sessionID) >= *s.Capacity {
		return nil, nil
	}
	next := f.nextWaitlistedLocked(sessionID)
	if next == nil {
		return nil, nil
	}
	next.Response = model.RSVPGoing
	cp := *next
	return &cp, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionCreated(context.Context, uuid.UUID, uuid.UUID, string) error {
	return nil
}

func (nopRecorder) RecordSessionRSVP(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, model.RSVPResponse, string) error {
	return nil
}

func seedScheduledSession(t *testing.T, store *fakeSessionStore, organizer Actor, capacity *int, now time.Time) uuid.UUID {
	t.Helper()
	s := &model.Session{
		SpotID:      uuid.New(),
		OrganizerID: organizer.ID,
		Title:       "Full pipe jam",
		StartTime:   now.Add(time.Hour),
		EndTime:     now.Add(3 * time.Hour),
		Capacity:    capacity,
		Status:      model.SessionScheduled,
	}
	require.NoError(t, store.Create(context.Background(), s))
	return s.ID
}

func TestSchedulerService_EndToEndCapacityAndPromotion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()

	organizer := Actor{ID: uuid.New()}
	second := Actor{ID: uuid.New()}

	svc := newTestScheduler(store, &MockSpotRepo{}, nopRecorder{}, now)
	sessionID := seedScheduledSession(t, store, organizer, intPtr(1), now)

	// organizer takes the single slot
	got, err := svc.RSVPSession(ctx, sessionID, organizer, RSVPInput{Response: model.RSVPGoing})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats().Going)

	// second actor bounces off capacity
	_, err = svc.RSVPSession(ctx, sessionID, second, RSVPInput{Response: model.RSVPGoing})
	assert.ErrorIs(t, err, ErrSessionFull)

	// and joins the waitlist instead
	got, err = svc.RSVPSession(ctx, sessionID, second, RSVPInput{Response: model.RSVPWaitlist})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats().Going)
	assert.Equal(t, 1, got.Stats().Waitlist)

	// organizer withdraws; the waitlisted actor is promoted automatically
	got, err = svc.WithdrawRSVP(ctx, sessionID, organizer)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats().Going)
	assert.Equal(t, 0, got.Stats().Waitlist)

	resp := got.ResponseFor(second.ID)
	require.NotNil(t, resp)
	assert.Equal(t, model.RSVPGoing, *resp)
}

func TestSchedulerService_FIFOPromotion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()

	organizer := Actor{ID: uuid.New()}
	w1 := Actor{ID: uuid.New()}
	w2 := Actor{ID: uuid.New()}

	svc := newTestScheduler(store, &MockSpotRepo{}, nopRecorder{}, now)
	sessionID := seedScheduledSession(t, store, organizer, intPtr(1), now)

	_, err := svc.RSVPSession(ctx, sessionID, organizer, RSVPInput{Response: model.RSVPGoing})
	require.NoError(t, err)
	_, err = svc.RSVPSession(ctx, sessionID, w1, RSVPInput{Response: model.RSVPWaitlist})
	require.NoError(t, err)
	_, err = svc.RSVPSession(ctx, sessionID, w2, RSVPInput{Response: model.RSVPWaitlist})
	require.NoError(t, err)

	// the earlier waitlister is promoted first
	got, err := svc.WithdrawRSVP(ctx, sessionID, organizer)
	require.NoError(t, err)
	require.NotNil(t, got.ResponseFor(w1.ID))
	assert.Equal(t, model.RSVPGoing, *got.ResponseFor(w1.ID))
	assert.Equal(t, model.RSVPWaitlist, *got.ResponseFor(w2.ID))

	// then the later one
	got, err = svc.WithdrawRSVP(ctx, sessionID, w1)
	require.NoError(t, err)
	assert.Equal(t, model.RSVPGoing, *got.ResponseFor(w2.ID))
}

func TestSchedulerService_IdempotentRSVP(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()

	organizer := Actor{ID: uuid.New()}
	svc := newTestScheduler(store, &MockSpotRepo{}, nopRecorder{}, now)
	sessionID := seedScheduledSession(t, store, organizer, intPtr(1), now)

	_, err := svc.RSVPSession(ctx, sessionID, organizer, RSVPInput{Response: model.RSVPGoing})
	require.NoError(t, err)
	got, err := svc.RSVPSession(ctx, sessionID, organizer, RSVPInput{Response: model.RSVPGoing})
	require.NoError(t, err)

	// exactly one row for the (session, actor) pair
	assert.Len(t, got.RSVPs, 1)
	assert.Equal(t, 1, got.Stats().Going)
}

func TestSchedulerService_CapacityInvariantUnderSerializedLoad(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()

	organizer := Actor{ID: uuid.New()}
	svc := newTestScheduler(store, &MockSpotRepo{}, nopRecorder{}, now)
	const capacity = 3
	sessionID := seedScheduledSession(t, store, organizer, intPtr(capacity), now)

	actors := make([]Actor, 10)
	for i := range actors {
		actors[i] = Actor{ID: uuid.New()}
	}

	for _, a := range actors {
		_, err := svc.RSVPSession(ctx, sessionID, a, RSVPInput{Response: model.RSVPGoing})
		if err != nil {
			require.ErrorIs(t, err, ErrSessionFull)
			_, err = svc.RSVPSession(ctx, sessionID, a, RSVPInput{Response: model.RSVPWaitlist})
			require.NoError(t, err)
		}
		got, err := svc.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.LessOrEqual(t, got.Stats().Going, capacity)
	}

	// churn: withdraw every going actor; promotions must never overshoot
	for _, a := range actors {
		got, err := svc.GetSession(ctx, sessionID)
		require.NoError(t, err)
		if r := got.ResponseFor(a.ID); r != nil && *r == model.RSVPGoing {
			got, err = svc.WithdrawRSVP(ctx, sessionID, a)
			require.NoError(t, err)
			assert.LessOrEqual(t, got.Stats().Going, capacity)
		}
	}
}

func TestSchedulerService_PartialUpdateLaw(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()

	organizer := Actor{ID: uuid.New()}
	svc := newTestScheduler(store, &MockSpotRepo{}, nopRecorder{}, now)
	sessionID := seedScheduledSession(t, store, organizer, intPtr(4), now)

	before, err := svc.GetSession(ctx, sessionID)
	require.NoError(t, err)

	got, err := svc.UpdateSession(ctx, sessionID, organizer, UpdateSessionInput{Title: strPtr("Renamed jam")})
	require.NoError(t, err)

	assert.Equal(t, "Renamed jam", got.Title)
	assert.Equal(t, before.StartTime, got.StartTime)
	assert.Equal(t, before.EndTime, got.EndTime)
	require.NotNil(t, got.Capacity)
	assert.Equal(t, *before.Capacity, *got.Capacity)
	assert.Equal(t, before.Status, got.Status)
}

func TestSchedulerService_UpdateRevalidatesMovedStart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()

	organizer := Actor{ID: uuid.New()}
	svc := newTestScheduler(store, &MockSpotRepo{}, nopRecorder{}, now)
	sessionID := seedScheduledSession(t, store, organizer, nil, now)

	past := now.Add(-10 * time.Minute)
	_, err := svc.UpdateSession(ctx, sessionID, organizer, UpdateSessionInput{StartTime: &past})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	// moving the start past the current end is also rejected
	lateStart := now.Add(5 * time.Hour)
	_, err = svc.UpdateSession(ctx, sessionID, organizer, UpdateSessionInput{StartTime: &lateStart})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}
