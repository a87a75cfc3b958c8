package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/user_auth/internal/apperr"
)

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	names := make([]string, 0, len(ve.Errors))
	for _, f := range ve.Errors {
		names = append(names, f.Field)
	}
	return names
}

func TestRegisterRequest_Validate(t *testing.T) {
	t.Parallel()

	ok := RegisterRequest{Email: "a@x.com", Password: "secret12", Name: "A"}
	assert.NoError(t, ok.Validate())

	bad := RegisterRequest{Email: "not-an-email", Password: "123", Name: ""}
	assert.ElementsMatch(t, []string{"email", "password", "name"}, fieldNames(t, bad.Validate()))
}

func TestLoginRequest_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&LoginRequest{Email: "a@x.com", Password: "x"}).Validate())
	assert.ElementsMatch(t, []string{"email", "password"}, fieldNames(t, (&LoginRequest{}).Validate()))
}

func TestUpdateUserRequest_Validate_OnlyChecksPresentFields(t *testing.T) {
	t.Parallel()

	name := "Bob"
	assert.NoError(t, (&UpdateUserRequest{Name: &name}).Validate())

	role := "root"
	assert.Equal(t, []string{"role"}, fieldNames(t, (&UpdateUserRequest{Role: &role}).Validate()))
}

func TestListUsersQuery_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&ListUsersQuery{Role: "admin", PerPage: 10}).Validate())
	assert.ElementsMatch(t, []string{"role", "perPage"}, fieldNames(t, (&ListUsersQuery{Role: "x", PerPage: 500}).Validate()))
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}
