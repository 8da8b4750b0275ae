package repo

import (
	"context"
	"errors"

	"github.com/skatespot-io/skatespot/internal/modules/model"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo interface {
	Create(ctx context.Context, u *model.User) error
	GetByTokenHMAC(ctx context.Context, hmac string) (*model.User, error)
}

type userRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepo) GetByTokenHMAC(ctx context.Context, hmac string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("token_hmac = ?", hmac).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
