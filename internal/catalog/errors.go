package catalog

import "errors"

// Catalog failures abort the current check; the next periodic check tries
// again. None of them are retried within a single check.
var (
	// ErrUnreachable covers network and transport failures reaching the
	// release index.
	ErrUnreachable = errors.New("release catalog unreachable")

	// ErrRateLimited maps HTTP 403/429 from the catalog. Retryable later,
	// never immediately ("wait or use authentication").
	ErrRateLimited = errors.New("release catalog rate limited")

	// ErrInvalidResponse covers malformed or unexpected catalog payloads.
	ErrInvalidResponse = errors.New("invalid release catalog response")
)
