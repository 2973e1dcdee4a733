package internal

import (
	"fmt"
)

var (
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrNotFound        = fmt.Errorf("record not found")
	ErrBadRequest      = fmt.Errorf("bad request")
	ErrConflict        = fmt.Errorf("conflict")
	ErrBadGateway      = fmt.Errorf("bad gateway")
	ErrTooManyRequests = fmt.Errorf("too many requests")

	ErrGristKeyMissing = fmt.Errorf("%w: no grist api key configured", ErrBadRequest)
	ErrGristKeyReenter = fmt.Errorf("%w: grist key must be re-entered", ErrConflict)
	ErrNotAPublicAgent = fmt.Errorf("%w: reserved to public agents", ErrForbidden)
)
