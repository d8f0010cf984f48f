package authorization

import (
	"context"
	"errors"

	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
)

type Service interface {
	// Authorize checks that principal may perform action on object inside its
	// own business.
	Authorize(ctx context.Context, principal apikeydomain.Principal, object, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)
