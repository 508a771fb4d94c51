package domain

import "errors"

var (
	// ErrInvalidInput signals a request that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable signals a network-level failure reaching a remote dependency.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamError signals a remote dependency that responded with a non-success status.
	ErrUpstreamError = errors.New("upstream error")
	// ErrMalformedResponse signals a remote response that cannot be parsed into the expected shape.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrSearchTimeout signals a search job that did not complete within the configured timeout.
	ErrSearchTimeout = errors.New("search timed out")
	// ErrSearchRejected signals a query the search platform judged invalid.
	ErrSearchRejected = errors.New("search query rejected")
)
