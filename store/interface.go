package store

// CredentialStore persists the session credential and the last-known
// user profile across process restarts.
// Implementations must be safe for concurrent use.
//
// The token and the serialized user travel together: both are written
// over the course of one login/profile-fetch cycle and both are removed
// by a single Clear call. The user payload is opaque to the store; the
// session layer owns its encoding and tolerates corrupt data.
type CredentialStore interface {
	// SaveToken persists the bearer token, replacing any previous one.
	SaveToken(token string) error

	// Token returns the stored bearer token, or "" when absent.
	Token() (string, error)

	// SaveUser persists the serialized user profile.
	SaveUser(data []byte) error

	// User returns the stored serialized user, or nil when absent.
	User() ([]byte, error)

	// Clear removes the token and the user together.
	Clear() error

	// Close releases any resources held by the store.
	Close() error
}
