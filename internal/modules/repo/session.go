package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Custom error types for better error handling
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRSVPNotFound    = errors.New("rsvp not found")
	// ErrCapacityReached signals the conditional admission failed: the
	// session already holds capacity going RSVPs.
	ErrCapacityReached = errors.New("session capacity reached")
)

type UpsertRSVPParams struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Response  model.RSVPResponse
	Note      *string
	// EnforceCapacity makes a going upsert conditional on a free slot.
	// The check and the write run under one row lock on the session, so
	// two concurrent admissions cannot both observe a free slot.
	EnforceCapacity bool
}

type SessionRepo interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)
	ListUpcomingBySpot(ctx context.Context, spotID uuid.UUID, now time.Time, afterStart time.Time, afterID uuid.UUID, limit int) ([]model.Session, error)
	Update(ctx context.Context, sessionID uuid.UUID, fields map[string]interface{}) (*model.Session, error)
	SetStatus(ctx context.Context, sessionID uuid.UUID, status model.SessionStatus) (*model.Session, error)
	Delete(ctx context.Context, sessionID uuid.UUID) (bool, error)
	UpsertRSVP(ctx context.Context, in UpsertRSVPParams) (*model.Session, *model.SessionRSVP, error)
	RemoveRSVP(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) (*model.Session, error)
	NextWaitlisted(ctx context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error)
	PromoteWaitlisted(ctx context.Context, rsvpID uuid.UUID) (*model.SessionRSVP, error)
	PromoteNextWaitlisted(ctx context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error)
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepo {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) Get(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).
		Preload("RSVPs").
		Where("id = ?", sessionID).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) ListUpcomingBySpot(ctx context.Context, spotID uuid.UUID, now time.Time, afterStart time.Time, afterID uuid.UUID, limit int) ([]model.Session, error) {
	q := r.db.WithContext(ctx).
		Preload("RSVPs").
		Where("spot_id = ? AND start_time >= ?", spotID, now)

	// Apply cursor-based pagination filter if cursor is provided
	if !afterStart.IsZero() && afterID != uuid.Nil {
		q = q.Where(
			"(start_time > ?) OR (start_time = ? AND id > ?)",
			afterStart, afterStart, afterID,
		)
	}

	var sessions []model.Session
	query := q.Order("start_time ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return sessions, query.Find(&sessions).Error
}

// Update applies only the fields present in the map; everything else is left
// untouched. Status changes go through SetStatus or an explicit "status" key.
func (r *sessionRepo) Update(ctx context.Context, sessionID uuid.UUID, fields map[string]interface{}) (*model.Session, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Session{}).Where("id = ?", sessionID).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, sessionID)
}

func (r *sessionRepo) SetStatus(ctx context.Context, sessionID uuid.UUID, status model.SessionStatus) (*model.Session, error) {
	return r.Update(ctx, sessionID, map[string]interface{}{"status": status})
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	// RSVPs go with the session via ON DELETE CASCADE.
	res := r.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&model.Session{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) UpsertRSVP(ctx context.Context, in UpsertRSVPParams) (*model.Session, *model.SessionRSVP, error) {
	var rsvp model.SessionRSVP

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", in.SessionID).
			First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		var existing model.SessionRSVP
		found := true
		if err := tx.Where("session_id = ? AND user_id = ?", in.SessionID, in.UserID).
			First(&existing).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			found = false
		}

		// Conditional admission: the going count is read under the session
		// row lock taken above. An actor who already holds going keeps
		// their slot regardless of the count.
		if in.EnforceCapacity && in.Response == model.RSVPGoing && session.Capacity != nil {
			if !found || existing.Response != model.RSVPGoing {
				var going int64
				if err := tx.Model(&model.SessionRSVP{}).
					Where("session_id = ? AND response = ?", in.SessionID, model.RSVPGoing).
					Count(&going).Error; err != nil {
					return err
				}
				if going >= int64(*session.Capacity) {
					return ErrCapacityReached
				}
			}
		}

		if found {
			// Update in place; created_at keeps the original join order.
			existing.Response = in.Response
			existing.Note = in.Note
			if err := tx.Model(&existing).
				Select("response", "note", "updated_at").
				Updates(map[string]interface{}{
					"response":   in.Response,
					"note":       in.Note,
					"updated_at": time.Now().UTC(),
				}).Error; err != nil {
				return err
			}
			rsvp = existing
			return nil
		}

		rsvp = model.SessionRSVP{
			SessionID: in.SessionID,
			UserID:    in.UserID,
			Response:  in.Response,
			Note:      in.Note,
		}
		return tx.Create(&rsvp).Error
	})
	if err != nil {
		return nil, nil, err
	}

	session, err := r.Get(ctx, in.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, &rsvp, nil
}

func (r *sessionRepo) RemoveRSVP(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) (*model.Session, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", sessionID).
			First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		res := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).
			Delete(&model.SessionRSVP{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// "no RSVP" is a distinct outcome from "session missing"
			return ErrRSVPNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, sessionID)
}

// NextWaitlisted returns the waitlisted RSVP with the smallest created_at
// (ties broken by id), or nil when the waitlist is empty.
func (r *sessionRepo) NextWaitlisted(ctx context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error) {
	return nextWaitlistedTx(r.db.WithContext(ctx), sessionID)
}

func nextWaitlistedTx(tx *gorm.DB, sessionID uuid.UUID) (*model.SessionRSVP, error) {
	var rsvp model.SessionRSVP
	err := tx.Where("session_id = ? AND response = ?", sessionID, model.RSVPWaitlist).
		Order("created_at ASC, id ASC").
		First(&rsvp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rsvp, nil
}

// PromoteWaitlisted flips one RSVP's response to going in place. created_at is
// untouched so the historical join order survives the promotion.
func (r *sessionRepo) PromoteWaitlisted(ctx context.Context, rsvpID uuid.UUID) (*model.SessionRSVP, error) {
	var rsvp model.SessionRSVP
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return promoteWaitlistedTx(tx, rsvpID, &rsvp)
	})
	if err != nil {
		return nil, err
	}
	return &rsvp, nil
}

func promoteWaitlistedTx(tx *gorm.DB, rsvpID uuid.UUID, out *model.SessionRSVP) error {
	if err := tx.Where("id = ?", rsvpID).First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRSVPNotFound
		}
		return err
	}
	if err := tx.Model(out).
		Select("response", "updated_at").
		Updates(map[string]interface{}{
			"response":   model.RSVPGoing,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("promote rsvp: %w", err)
	}
	out.Response = model.RSVPGoing
	return nil
}

// PromoteNextWaitlisted promotes the FIFO head of the waitlist when the
// session has a free going slot. The count, the pick and the promotion run
// under one row lock on the session so a concurrent admission cannot slip
// between the check and the write. Returns nil when nothing was promoted.
func (r *sessionRepo) PromoteNextWaitlisted(ctx context.Context, sessionID uuid.UUID) (*model.SessionRSVP, error) {
	var promoted *model.SessionRSVP
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", sessionID).
			First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if session.Capacity == nil {
			return nil
		}

		var going int64
		if err := tx.Model(&model.SessionRSVP{}).
			Where("session_id = ? AND response = ?", sessionID, model.RSVPGoing).
			Count(&going).Error; err != nil {
			return err
		}
		if going >= int64(*session.Capacity) {
			return nil
		}

		next, err := nextWaitlistedTx(tx, sessionID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		var rsvp model.SessionRSVP
		if err := promoteWaitlistedTx(tx, next.ID, &rsvp); err != nil {
			return err
		}
		promoted = &rsvp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}
