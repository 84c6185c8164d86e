package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service answers capability questions for a role. It never resolves store
// scope; that belongs to the query composer.
type Service interface {
	Authorize(ctx context.Context, role string, object string, action string) error
}
