package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/models"
	"github.com/Skotchmaster/user_auth/internal/repo"
	"github.com/Skotchmaster/user_auth/internal/transport"
	"github.com/Skotchmaster/user_auth/pkg/db"
	"github.com/Skotchmaster/user_auth/pkg/hash"
)

func newTestStore(t *testing.T) *CredentialStore {
	t.Helper()

	gdb, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(gdb))

	return NewCredentialStore(repo.NewGormRepo(gdb), hash.NewBcrypt(4))
}

func mustCreate(t *testing.T, s *CredentialStore, actor *models.User, email, role string) *models.User {
	t.Helper()
	u, err := s.Create(context.Background(), actor, transport.CreateUserRequest{
		Email:    email,
		Password: "password1",
		Name:     "Test User",
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }

func TestCredentialStore_Create(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	u := mustCreate(t, s, nil, "  New@Example.com ", "")

	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.True(t, u.Active)
	assert.NotEqual(t, "password1", u.PasswordHash)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2"))
}

func TestCredentialStore_Create_RoleOnlyForAdmins(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	admin := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	plain := &models.User{ID: uuid.New(), Role: models.RoleUser}

	assert.Equal(t, models.RoleUser, mustCreate(t, s, nil, "anon@x.com", models.RoleAdmin).Role)
	assert.Equal(t, models.RoleUser, mustCreate(t, s, plain, "plain@x.com", models.RoleAdmin).Role)
	assert.Equal(t, models.RoleAdmin, mustCreate(t, s, admin, "boss@x.com", models.RoleAdmin).Role)
}

func TestCredentialStore_Create_DuplicateEmail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustCreate(t, s, nil, "dup@x.com", "")

	_, err := s.Create(context.Background(), nil, transport.CreateUserRequest{
		Email: "DUP@x.com", Password: "password1", Name: "Other",
	})
	var dup *apperr.DuplicateKeyError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, "email", dup.Field)
}

func TestCredentialStore_Create_Validation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Create(context.Background(), nil, transport.CreateUserRequest{Email: "bad", Password: "1", Name: ""})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Len(t, apperr.Fields(err), 3)
}

func TestCredentialStore_Get(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreate(t, s, nil, "get@x.com", "")

	got, err := s.Get(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = s.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperr.ErrInvalidIdentifier)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCredentialStore_VerifyCredentials(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreate(t, s, nil, "login@x.com", "")

	got, err := s.VerifyCredentials(ctx, " LOGIN@x.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, wrongPassword := s.VerifyCredentials(ctx, "login@x.com", "nope-nope")
	_, unknownEmail := s.VerifyCredentials(ctx, "ghost@x.com", "password1")

	assert.ErrorIs(t, wrongPassword, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, apperr.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

type flakyHasher struct {
	hash.Bcrypt
	failures int
	verified []string
}

func (h *flakyHasher) Hash(password string) (string, error) {
	if h.failures > 0 {
		h.failures--
		return "", errors.New("entropy unavailable")
	}
	return h.Bcrypt.Hash(password)
}

func (h *flakyHasher) Verify(password, digest string) bool {
	h.verified = append(h.verified, digest)
	return h.Bcrypt.Verify(password, digest)
}

func TestCredentialStore_VerifyCredentials_DummyDigestRetried(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	h := &flakyHasher{Bcrypt: hash.NewBcrypt(4), failures: 1}
	s.Hasher = h
	ctx := context.Background()

	_, err := s.VerifyCredentials(ctx, "ghost@x.com", "password1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = s.VerifyCredentials(ctx, "ghost@x.com", "password1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	require.Len(t, h.verified, 2)
	assert.Empty(t, h.verified[0])
	assert.True(t, strings.HasPrefix(h.verified[1], "$2a$04$"), h.verified[1])
}

func TestCredentialStore_VerifyCredentials_Inactive(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	admin := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	u := mustCreate(t, s, nil, "off@x.com", "")

	_, err := s.ApplyPartialUpdate(ctx, admin, u, transport.UpdateUserRequest{Active: ptr(false)})
	require.NoError(t, err)

	_, err = s.VerifyCredentials(ctx, "off@x.com", "password1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestCredentialStore_VerifyCredentials_StoreOutage(t *testing.T) {
	t.Parallel()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := db.OpenPostgresConn(sqlDB)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnError(errors.New("connection reset by peer"))

	s := NewCredentialStore(repo.NewGormRepo(gdb), hash.NewBcrypt(4))
	_, err = s.VerifyCredentials(context.Background(), "a@x.com", "password1")

	assert.ErrorIs(t, err, apperr.ErrTransientStore)
	assert.NotErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestCredentialStore_ApplyPartialUpdate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreate(t, s, nil, "patch@x.com", "")

	updated, err := s.ApplyPartialUpdate(ctx, u, u, transport.UpdateUserRequest{
		Name:     ptr("Renamed"),
		Password: ptr("another-secret"),
		Role:     ptr(models.RoleAdmin),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "patch@x.com", updated.Email)
	assert.Equal(t, models.RoleUser, updated.Role, "non-admin actor cannot change role")
	assert.NotEqual(t, u.PasswordHash, updated.PasswordHash)

	_, err = s.VerifyCredentials(ctx, "patch@x.com", "another-secret")
	require.NoError(t, err)

	stored, err := s.Get(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, models.RoleUser, stored.Role)
}

func TestCredentialStore_ApplyPartialUpdate_AdminRole(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	admin := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	u := mustCreate(t, s, nil, "promote@x.com", "")

	updated, err := s.ApplyPartialUpdate(ctx, admin, u, transport.UpdateUserRequest{Role: ptr(models.RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
}

func TestCredentialStore_ApplyPartialUpdate_DuplicateEmail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, nil, "taken@x.com", "")
	u := mustCreate(t, s, nil, "mine@x.com", "")

	_, err := s.ApplyPartialUpdate(ctx, u, u, transport.UpdateUserRequest{Email: ptr("taken@x.com")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateKey)
}

func TestCredentialStore_ApplyFullReplace(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreate(t, s, nil, "put@x.com", "")

	replaced, err := s.ApplyFullReplace(ctx, u, u, transport.ReplaceUserRequest{
		ID:       u.ID.String(),
		Email:    "put2@x.com",
		Password: "brand-new-pw",
		Name:     "Replaced",
		Role:     models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID, replaced.ID)
	assert.Equal(t, "put2@x.com", replaced.Email)
	assert.Equal(t, models.RoleUser, replaced.Role)

	_, err = s.VerifyCredentials(ctx, "put2@x.com", "brand-new-pw")
	require.NoError(t, err)
}

func TestCredentialStore_ApplyFullReplace_IDIsImmutable(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	u := mustCreate(t, s, nil, "immutable@x.com", "")

	for _, id := range []string{uuid.NewString(), "garbage"} {
		_, err := s.ApplyFullReplace(context.Background(), u, u, transport.ReplaceUserRequest{
			ID: id, Email: "immutable@x.com", Password: "password1", Name: "X",
		})
		require.ErrorIs(t, err, apperr.ErrValidation)
		fields := apperr.Fields(err)
		require.Len(t, fields, 1)
		assert.Equal(t, "id", fields[0].Field)
	}
}

func TestCredentialStore_Remove(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreate(t, s, nil, "bye@x.com", "")

	require.NoError(t, s.Remove(ctx, u))

	_, err := s.Get(ctx, u.ID.String())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, s.Remove(ctx, u), apperr.ErrNotFound)
}

func TestCredentialStore_List(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	admin := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		mustCreate(t, s, nil, email, "")
	}
	mustCreate(t, s, admin, "root@x.com", models.RoleAdmin)

	page, err := s.List(ctx, transport.ListUsersQuery{PerPage: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.Page)

	page, err = s.List(ctx, transport.ListUsersQuery{Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "root@x.com", page.Items[0].Email)

	_, err = s.List(ctx, transport.ListUsersQuery{PerPage: 1000})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
