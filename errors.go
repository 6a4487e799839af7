package telesync

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned by facade operations when no
	// authenticated session exists. The cache is never touched.
	ErrUnauthenticated = errors.New("telesync: not authenticated")

	// ErrSessionExpired is returned when the remote API rejected the
	// current credential. The session has transitioned to expired and a
	// new login is required.
	ErrSessionExpired = errors.New("telesync: session expired")

	// ErrNoData is returned when a fetch failed and no previously
	// cached value exists to serve.
	ErrNoData = errors.New("telesync: no data available")

	// ErrUnknownWindow is returned for an unrecognized window specifier.
	ErrUnknownWindow = errors.New("telesync: unknown window specifier")
)

// ErrorKind classifies a remote API failure.
type ErrorKind int

const (
	// KindNetwork covers transport failures and server-side errors.
	// These are transient and retried per the configured policy.
	KindNetwork ErrorKind = iota

	// KindUnauthorized means the credential was rejected. Never
	// retried; routed to the session manager instead.
	KindUnauthorized

	// KindValidation means the remote rejected the request payload.
	KindValidation

	// KindNotFound means the requested entity does not exist.
	KindNotFound
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// APIError is a classified failure from the remote API boundary.
type APIError struct {
	Kind       ErrorKind
	StatusCode int // zero for transport-level failures
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("telesync: api error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("telesync: api error (%s): %s", e.Kind, e.Message)
}

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindUnauthorized
	case code == 404:
		return KindNotFound
	case code == 400 || code == 422:
		return KindValidation
	default:
		return KindNetwork
	}
}

// isUnauthorized reports whether err is a credential rejection.
func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized
}

// retryable reports whether a fetch failure is transient. Only network
// and server-side failures qualify; unauthorized, validation and
// not-found errors surface immediately.
func retryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNetwork
}
