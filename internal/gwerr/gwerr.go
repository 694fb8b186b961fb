// Package gwerr defines the error taxonomy the front door maps to HTTP
// status codes. Components return wrapped sentinels from this package
// instead of raw status codes so the mapping stays in one place.
package gwerr

import "errors"

var (
	// ErrConfigInvalid marks a configuration document that failed
	// validation at load time. Fatal at startup.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrUnauthorized marks a missing, malformed, or undecodable
	// Authorization header. Surfaced as 401 with an empty body.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited marks a denial from the quota registry. Surfaced
	// as 429 with an empty body.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamFailure marks a timeout, connection error, or invalid
	// upstream URL while forwarding. Surfaced as 500 with an empty body.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrInternal marks an impossible state (e.g. a poisoned lock).
	// Surfaced as 500.
	ErrInternal = errors.New("internal error")
)
