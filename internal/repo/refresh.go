package repo

import (
	"context"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/models"
)

func (r *GormRepo) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		return writeErr("create refresh token", err)
	}
	return nil
}

func (r *GormRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&rt).Error; err != nil {
		return nil, readErr("find refresh token", err)
	}
	return &rt, nil
}

// DeleteRefreshToken reports whether a row was removed, so a concurrent
// second redemption of the same token sees false.
func (r *GormRepo) DeleteRefreshToken(ctx context.Context, token string) (bool, error) {
	res := r.DB.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return false, apperr.Transient("delete refresh token", res.Error)
	}
	return res.RowsAffected > 0, nil
}
