package apperr

import "errors"

// Shared error taxonomy. Transport layers map these to socket error events
// or HTTP status codes; anything else is treated as internal and never
// leaks detail to the client.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrMissingFields = errors.New("missing required fields")
	ErrInternal      = errors.New("internal error")
)
