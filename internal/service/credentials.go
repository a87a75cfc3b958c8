package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/models"
	"github.com/Skotchmaster/user_auth/internal/repo"
	"github.com/Skotchmaster/user_auth/internal/transport"
	"github.com/Skotchmaster/user_auth/internal/util"
	"github.com/Skotchmaster/user_auth/pkg/logging"
)

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, f repo.UserFilter) ([]models.User, int64, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// CredentialStore owns identities and their password digests. Passwords are
// hashed here, before anything reaches the repository.
type CredentialStore struct {
	Repo   UserRepo
	Hasher PasswordHasher

	dummyMu     sync.Mutex
	dummyDigest string
}

type UserPage struct {
	Items   []models.User `json:"items"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"perPage"`
}

func NewCredentialStore(r UserRepo, h PasswordHasher) *CredentialStore {
	return &CredentialStore{Repo: r, Hasher: h}
}

// Create registers a new identity. actor is nil on the public registration
// path; only an admin actor can choose the role.
func (s *CredentialStore) Create(ctx context.Context, actor *models.User, req transport.CreateUserRequest) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "credentials.create")

	if err := req.Validate(); err != nil {
		return nil, err
	}

	digest, err := s.Hasher.Hash(req.Password)
	if err != nil {
		l.Error("create_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := models.RoleUser
	if actor.IsAdmin() && req.Role != "" {
		role = req.Role
	}

	u := &models.User{
		ID:           uuid.New(),
		Email:        transport.NormalizeEmail(req.Email),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: digest,
		Role:         role,
		Active:       true,
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrDuplicateKey) {
			l.Warn("create_error", "status", 400, "reason", "duplicate key", "error", err)
		} else {
			l.Error("create_error", "status", 500, "error", err)
		}
		return nil, err
	}
	l.Info("user_created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *CredentialStore) Get(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidIdentifier, id)
	}
	return s.Repo.GetUserByID(ctx, uid)
}

// VerifyCredentials returns the same ErrInvalidCredentials for an unknown
// email, a wrong password and a deactivated account.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "credentials.verify")

	u, err := s.Repo.FindUserByEmail(ctx, transport.NormalizeEmail(email))
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		// burn a comparison so unknown emails cost the same as known ones
		s.Hasher.Verify(password, s.dummy(ctx))
		l.Warn("login_failed", "status", 401, "reason", "unknown email")
		return nil, apperr.ErrInvalidCredentials
	case err != nil:
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	if !s.Hasher.Verify(password, u.PasswordHash) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, apperr.ErrInvalidCredentials
	}
	if !u.Active {
		l.Warn("login_failed", "status", 401, "reason", "inactive account")
		return nil, apperr.ErrInvalidCredentials
	}
	return u, nil
}

// dummy returns a digest no password matches. A failed hash is retried on
// the next call instead of being remembered.
func (s *CredentialStore) dummy(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyDigest == "" {
		d, err := s.Hasher.Hash(uuid.NewString())
		if err != nil {
			logging.FromContext(ctx).Error("dummy_digest_failed", "svc", "credentials.verify", "error", err)
			return ""
		}
		s.dummyDigest = d
	}
	return s.dummyDigest
}

// ApplyPartialUpdate changes only the fields present in patch. Role and
// active flag are dropped unless the actor is an admin.
func (s *CredentialStore) ApplyPartialUpdate(ctx context.Context, actor, target *models.User, patch transport.UpdateUserRequest) (*models.User, error) {
	if target == nil {
		return nil, apperr.ErrNotFound
	}
	if !actor.IsAdmin() {
		patch.Role = nil
		patch.Active = nil
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	updated := *target
	if patch.Email != nil {
		updated.Email = transport.NormalizeEmail(*patch.Email)
	}
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Password != nil {
		digest, err := s.Hasher.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updated.PasswordHash = digest
	}
	if patch.Role != nil {
		updated.Role = *patch.Role
	}
	if patch.Active != nil {
		updated.Active = *patch.Active
	}

	return s.save(ctx, "credentials.update", &updated)
}

// ApplyFullReplace overwrites every mutable field of target. The id is
// immutable; an id in data that differs from target's is a validation error.
func (s *CredentialStore) ApplyFullReplace(ctx context.Context, actor, target *models.User, data transport.ReplaceUserRequest) (*models.User, error) {
	if target == nil {
		return nil, apperr.ErrNotFound
	}
	if !actor.IsAdmin() {
		data.Role = ""
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if data.ID != "" {
		id, err := uuid.Parse(data.ID)
		if err != nil || id != target.ID {
			return nil, apperr.Validation(apperr.FieldError{Field: "id", Location: "body", Message: "id cannot be changed"})
		}
	}

	digest, err := s.Hasher.Hash(data.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	replaced := *target
	replaced.Email = transport.NormalizeEmail(data.Email)
	replaced.Name = strings.TrimSpace(data.Name)
	replaced.PasswordHash = digest
	if data.Role != "" {
		replaced.Role = data.Role
	}

	return s.save(ctx, "credentials.replace", &replaced)
}

func (s *CredentialStore) save(ctx context.Context, svc string, u *models.User) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", svc)
	if err := s.Repo.SaveUser(ctx, u); err != nil {
		switch {
		case errors.Is(err, apperr.ErrDuplicateKey):
			l.Warn("save_error", "status", 400, "reason", "duplicate key", "error", err)
		case errors.Is(err, apperr.ErrNotFound):
			l.Warn("save_error", "status", 404, "reason", "user vanished", "user_id", u.ID)
		default:
			l.Error("save_error", "status", 500, "error", err)
		}
		return nil, err
	}
	return u, nil
}

// Remove deletes target and every refresh token issued to it.
func (s *CredentialStore) Remove(ctx context.Context, target *models.User) error {
	if target == nil {
		return apperr.ErrNotFound
	}
	if err := s.Repo.DeleteUser(ctx, target.ID); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			logging.FromContext(ctx).Error("remove_error", "svc", "credentials.remove", "status", 500, "error", err)
		}
		return err
	}
	return nil
}

func (s *CredentialStore) List(ctx context.Context, q transport.ListUsersQuery) (*UserPage, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	page := q.Page
	if page == 0 {
		page = 1
	}
	offset, limit := util.Calculate(page, q.PerPage)

	items, total, err := s.Repo.ListUsers(ctx, repo.UserFilter{
		Email:  transport.NormalizeEmail(q.Email),
		Name:   strings.TrimSpace(q.Name),
		Role:   q.Role,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return &UserPage{Items: items, Total: total, Page: page, PerPage: limit}, nil
}
