package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"gorm.io/gorm"
)

type ActivityRepo interface {
	Append(ctx context.Context, a *model.Activity) error
	ListByActor(ctx context.Context, actorID uuid.UUID, afterCreatedAt time.Time, afterID uuid.UUID, limit int) ([]model.Activity, error)
}

type activityRepo struct{ db *gorm.DB }

func NewActivityRepo(db *gorm.DB) ActivityRepo {
	return &activityRepo{db: db}
}

func (r *activityRepo) Append(ctx context.Context, a *model.Activity) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *activityRepo) ListByActor(ctx context.Context, actorID uuid.UUID, afterCreatedAt time.Time, afterID uuid.UUID, limit int) ([]model.Activity, error) {
	q := r.db.WithContext(ctx).Where("actor_id = ?", actorID)

	// Apply cursor-based pagination filter if cursor is provided
	if !afterCreatedAt.IsZero() && afterID != uuid.Nil {
		q = q.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			afterCreatedAt, afterCreatedAt, afterID,
		)
	}

	var items []model.Activity
	query := q.Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return items, query.Find(&items).Error
}
