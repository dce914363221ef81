// pkg/core/errors.go
package core

import "errors"

// ErrInvalidInput marks malformed metadata or an out-of-bounds tap. It is the
// only condition that fails a query.
var ErrInvalidInput = errors.New("invalid input")

// ErrCandidateSourceUnavailable is wrapped by candidate sources on I/O or
// quota failure. Callers degrade to the heuristic path.
var ErrCandidateSourceUnavailable = errors.New("candidate source unavailable")
