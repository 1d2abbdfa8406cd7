package marketdata

import "errors"

var (
	// ErrMissingCredential is returned by Connect when the API key is empty.
	ErrMissingCredential = errors.New("missing API credential")
	// ErrInvalidRequest is returned by Subscribe when the provider is not in a
	// state that can accept the request, e.g. before a successful Connect.
	ErrInvalidRequest = errors.New("invalid subscription request")
	// ErrUpstreamUnavailable is returned when the vendor endpoint could not be
	// reached or answered with a non-success status.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedResponse is returned when a vendor payload could not be
	// parsed into the expected shape.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrNoData is returned when the vendor answered with a well-formed but
	// empty result. Callers are expected to fall back to a derived value
	// before treating it as an upstream failure.
	ErrNoData = errors.New("upstream returned no data")
)
