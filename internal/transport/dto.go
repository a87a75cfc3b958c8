package transport

import (
	"net/mail"
	"strings"
	"time"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/models"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 128
	minNameLen     = 1
	maxNameLen     = 128
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// CreateUserRequest is the admin create payload; Role is honoured only for admins.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}

type ReplaceUserRequest struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type ListUsersQuery struct {
	Email   string `query:"email"`
	Name    string `query:"name"`
	Role    string `query:"role"`
	Page    int    `query:"page"`
	PerPage int    `query:"perPage"`
}

type TokenResponse struct {
	TokenType    string    `json:"tokenType"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    time.Time `json:"expiresIn"`
}

type RegisterResponse struct {
	Token TokenResponse `json:"token"`
	User  *models.User  `json:"user"`
}

type LoginResponse struct {
	Tokens TokenResponse `json:"tokens"`
	User   *models.User  `json:"user"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *RegisterRequest) Validate() error {
	var fields []apperr.FieldError
	fields = checkEmail(fields, r.Email)
	fields = checkPassword(fields, r.Password)
	fields = checkName(fields, r.Name)
	return asError(fields)
}

func (r *LoginRequest) Validate() error {
	var fields []apperr.FieldError
	fields = checkEmail(fields, r.Email)
	if r.Password == "" {
		fields = append(fields, bodyField("password", "password is required"))
	}
	return asError(fields)
}

func (r *RefreshRequest) Validate() error {
	var fields []apperr.FieldError
	fields = checkEmail(fields, r.Email)
	if strings.TrimSpace(r.RefreshToken) == "" {
		fields = append(fields, bodyField("refreshToken", "refreshToken is required"))
	}
	return asError(fields)
}

func (r *CreateUserRequest) Validate() error {
	var fields []apperr.FieldError
	fields = checkEmail(fields, r.Email)
	fields = checkPassword(fields, r.Password)
	fields = checkName(fields, r.Name)
	if r.Role != "" && !models.ValidRole(r.Role) {
		fields = append(fields, bodyField("role", "role must be one of [user, admin]"))
	}
	return asError(fields)
}

func (r *UpdateUserRequest) Validate() error {
	var fields []apperr.FieldError
	if r.Email != nil {
		fields = checkEmail(fields, *r.Email)
	}
	if r.Password != nil {
		fields = checkPassword(fields, *r.Password)
	}
	if r.Name != nil {
		fields = checkName(fields, *r.Name)
	}
	if r.Role != nil && !models.ValidRole(*r.Role) {
		fields = append(fields, bodyField("role", "role must be one of [user, admin]"))
	}
	return asError(fields)
}

func (r *ReplaceUserRequest) Validate() error {
	var fields []apperr.FieldError
	fields = checkEmail(fields, r.Email)
	fields = checkPassword(fields, r.Password)
	fields = checkName(fields, r.Name)
	if r.Role != "" && !models.ValidRole(r.Role) {
		fields = append(fields, bodyField("role", "role must be one of [user, admin]"))
	}
	return asError(fields)
}

func (q *ListUsersQuery) Validate() error {
	var fields []apperr.FieldError
	if q.Role != "" && !models.ValidRole(q.Role) {
		fields = append(fields, apperr.FieldError{Field: "role", Location: "query", Message: "role must be one of [user, admin]"})
	}
	if q.PerPage < 0 || q.PerPage > 100 {
		fields = append(fields, apperr.FieldError{Field: "perPage", Location: "query", Message: "perPage must be between 1 and 100"})
	}
	if q.Page < 0 {
		fields = append(fields, apperr.FieldError{Field: "page", Location: "query", Message: "page must be positive"})
	}
	return asError(fields)
}

func checkEmail(fields []apperr.FieldError, email string) []apperr.FieldError {
	email = strings.TrimSpace(email)
	if email == "" {
		return append(fields, bodyField("email", "email is required"))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return append(fields, bodyField("email", "email must be a valid email"))
	}
	return fields
}

func checkPassword(fields []apperr.FieldError, password string) []apperr.FieldError {
	if n := len(password); n < minPasswordLen || n > maxPasswordLen {
		return append(fields, bodyField("password", "password length must be between 6 and 128 characters"))
	}
	return fields
}

func checkName(fields []apperr.FieldError, name string) []apperr.FieldError {
	if n := len(strings.TrimSpace(name)); n < minNameLen || n > maxNameLen {
		return append(fields, bodyField("name", "name length must be between 1 and 128 characters"))
	}
	return fields
}

func bodyField(field, msg string) apperr.FieldError {
	return apperr.FieldError{Field: field, Location: "body", Message: msg}
}

func asError(fields []apperr.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields...)
}
