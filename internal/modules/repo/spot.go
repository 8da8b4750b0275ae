package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"gorm.io/gorm"
)

var ErrSpotNotFound = errors.New("spot not found")

// SpotRepo is the existence oracle for spots. Spot CRUD lives on the
// cataloguing side; the scheduler only ever reads identity.
type SpotRepo interface {
	Get(ctx context.Context, spotID uuid.UUID) (*model.Spot, error)
}

type spotRepo struct{ db *gorm.DB }

func NewSpotRepo(db *gorm.DB) SpotRepo {
	return &spotRepo{db: db}
}

func (r *spotRepo) Get(ctx context.Context, spotID uuid.UUID) (*model.Spot, error) {
	var s model.Spot
	err := r.db.WithContext(ctx).Where("id = ?", spotID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSpotNotFound
		}
		return nil, err
	}
	return &s, nil
}
