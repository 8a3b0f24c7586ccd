// Package server provides the HTTP REST API for the research wizard.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/wizard"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrUserNotFound indicates user was not found
type ErrUserNotFound struct {
	UserID uuid.UUID
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// HTTPStatus returns the appropriate HTTP status code for an auth error
func HTTPStatus(err error) int {
	switch err.(type) {
	case *ErrEmailAlreadyExists:
		return http.StatusConflict
	case *ErrInvalidCredentials:
		return http.StatusUnauthorized
	case *ErrUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// wizardHTTPStatus maps wizard state machine errors to HTTP status codes.
// Missing prerequisites and invalid state transitions are semantic errors
// (422), a concurrent step is a conflict (409).
func wizardHTTPStatus(err error) int {
	var prereqErr *wizard.PrerequisiteError
	switch {
	case errors.As(err, &prereqErr), errors.Is(err, wizard.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
