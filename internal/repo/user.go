package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/models"
)

type UserFilter struct {
	Email  string
	Name   string
	Role   string
	Offset int
	Limit  int
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		return writeErr("create user", err)
	}
	return nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, readErr("get user", err)
	}
	return &user, nil
}

func (r *GormRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, readErr("find user by email", err)
	}
	return &user, nil
}

func (r *GormRepo) SaveUser(ctx context.Context, u *models.User) error {
	res := r.DB.WithContext(ctx).Model(u).Select("*").Omit("id", "created_at").Updates(u)
	if res.Error != nil {
		return writeErr("save user", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("save user: %w", apperr.ErrNotFound)
	}
	return nil
}

// DeleteUser removes the user together with every refresh token issued to it.
func (r *GormRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return apperr.Transient("delete refresh tokens", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return apperr.Transient("delete user", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("delete user: %w", apperr.ErrNotFound)
		}
		return nil
	})
}

func (f UserFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Email != "" {
		db = db.Where("email = ?", f.Email)
	}
	if f.Name != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Name)+"%")
	}
	if f.Role != "" {
		db = db.Where("role = ?", f.Role)
	}
	return db
}

func (r *GormRepo) ListUsers(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Scopes(f.scope).Count(&total).Error; err != nil {
		return nil, 0, apperr.Transient("count users", err)
	}

	items := make([]models.User, 0, f.Limit)
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Scopes(f.scope).
		Order("created_at DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&items).Error; err != nil {
		return nil, 0, apperr.Transient("list users", err)
	}
	return items, total, nil
}
