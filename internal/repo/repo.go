package repo

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/models"
)

const pgUniqueViolation = "23505"

var (
	pgKeyDetailRe   = regexp.MustCompile(`Key \(([^)]+)\)=`)
	sqliteUniqueRe  = regexp.MustCompile(`UNIQUE constraint failed: \w+\.(\w+)`)
	constraintField = map[string]string{
		"idx_users_email":   "email",
		"users_email_key":   "email",
		"idx_refresh_token": "token",
	}
)

type GormRepo struct {
	DB *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.RefreshToken{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// readErr maps a lookup failure to NotFound or TransientStoreFailure.
func readErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return apperr.Transient(op, err)
}

// writeErr turns the store's native unique-violation signal into a DuplicateKey.
func writeErr(op string, err error) error {
	if field, ok := conflictField(err); ok {
		return fmt.Errorf("%s: %w", op, apperr.DuplicateKey(field))
	}
	return apperr.Transient(op, err)
}

func conflictField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", false
		}
		if f, ok := constraintField[pgErr.ConstraintName]; ok {
			return f, true
		}
		if m := pgKeyDetailRe.FindStringSubmatch(pgErr.Detail); m != nil {
			return m[1], true
		}
		return "unknown", true
	}
	if m := sqliteUniqueRe.FindStringSubmatch(err.Error()); m != nil {
		return m[1], true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "unknown", true
	}
	return "", false
}
