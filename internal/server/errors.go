// Package server provides the HTTP API for starting workflows, resolving
// approvals and ingesting application outcomes.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/job-agent/internal/approval"
	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/schemas"
	"github.com/jonathan/job-agent/internal/workflow"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		reqErr    *ErrValidation
		flowErr   *workflow.ValidationError
		schemaErr *schemas.ValidationError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &flowErr), errors.As(err, &schemaErr):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, learning.ErrUnknownApplication):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrConflict), errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
