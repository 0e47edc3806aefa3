package recruiting

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrMissingJobID    = errors.New("missing job id")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrJobNotOwned     = errors.New("job posting not found or not owned by caller")
	ErrNotFound        = errors.New("not found")
	ErrNoWorkItems     = errors.New("no work items found")
)
