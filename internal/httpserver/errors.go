package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/pkg/logging"
)

const successStatus = "SUCCESS"

type envelope struct {
	Data    any    `json:"data,omitempty"`
	Success string `json:"success"`
}

type errorBody struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
	Stack   string              `json:"stack,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Data: data, Success: successStatus})
}

// ErrorHandler renders every error as {code, message, errors, stack}.
// Internal detail goes into stack only outside production.
func ErrorHandler(production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		body := errorBody{
			Code:    apperr.Status(err),
			Message: apperr.Message(err),
			Errors:  apperr.Fields(err),
		}
		if he, ok := err.(*echo.HTTPError); ok {
			body.Code = he.Code
			body.Message = fmt.Sprint(he.Message)
			body.Errors = nil
		}
		if !production {
			body.Stack = err.Error()
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(body.Code)
		} else {
			werr = c.JSON(body.Code, body)
		}
		if werr != nil {
			logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", werr)
		}
	}
}

func bindErr(err error) error {
	ve := apperr.Validation(apperr.FieldError{Field: "body", Location: "body", Message: "malformed request body"})
	return fmt.Errorf("%w: %w", ve, err)
}
