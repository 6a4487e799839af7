package telesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/emontero/telesync/store"
)

// SessionStatus is the authentication state of the process-wide session.
type SessionStatus int

const (
	SessionAnonymous SessionStatus = iota
	SessionAuthenticating
	SessionAuthenticated
	SessionExpired
)

// String returns a human-readable name for the status.
func (s SessionStatus) String() string {
	switch s {
	case SessionAnonymous:
		return "anonymous"
	case SessionAuthenticating:
		return "authenticating"
	case SessionAuthenticated:
		return "authenticated"
	case SessionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// loginFlight coalesces concurrent login calls: a second login while one
// is in flight waits on the first's result.
type loginFlight struct {
	done chan struct{}
	err  error
}

// sessionManager owns the process-wide session: the bearer credential,
// the cached user profile and the authentication status. It is the only
// mutator of that state; external code reaches it through Login, Logout
// and the Expire notification.
type sessionManager struct {
	creds store.CredentialStore
	api   *apiClient
	log   *logrus.Logger

	mu     sync.Mutex
	status SessionStatus
	token  string
	user   *User
	login  *loginFlight
}

// newSessionManager restores the session from the credential store. A
// stored token yields an authenticated session; a corrupt stored user is
// treated as absent rather than an error.
func newSessionManager(creds store.CredentialStore, api *apiClient, log *logrus.Logger) (*sessionManager, error) {
	m := &sessionManager{
		creds:  creds,
		api:    api,
		log:    log,
		status: SessionAnonymous,
	}

	token, err := creds.Token()
	if err != nil {
		return nil, fmt.Errorf("telesync: failed to read stored credential: %w", err)
	}
	if token == "" {
		return m, nil
	}

	m.token = token
	m.status = SessionAuthenticated

	data, err := creds.User()
	if err != nil {
		return nil, fmt.Errorf("telesync: failed to read stored user: %w", err)
	}
	if len(data) > 0 {
		var user User
		if jsonErr := json.Unmarshal(data, &user); jsonErr == nil {
			m.user = &user
		} else {
			log.WithField("error", jsonErr).Warn("discarding corrupt stored user")
		}
	}

	return m, nil
}

// Login authenticates against the remote API and persists the returned
// credential. A failed login leaves any existing session untouched.
// Concurrent calls are serialized: the second waits on the first's result
// instead of issuing a duplicate request.
func (m *sessionManager) Login(ctx context.Context, email, password string) error {
	m.mu.Lock()
	if fl := m.login; fl != nil {
		m.mu.Unlock()
		select {
		case <-fl.done:
			return fl.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	fl := &loginFlight{done: make(chan struct{})}
	m.login = fl
	prevStatus := m.status
	m.status = SessionAuthenticating
	m.mu.Unlock()

	token, err := m.api.login(ctx, email, password)

	m.mu.Lock()
	m.login = nil
	if err != nil {
		// Keep whatever session existed before the attempt.
		m.status = prevStatus
		m.mu.Unlock()

		fl.err = err
		close(fl.done)
		return err
	}

	m.token = token.AccessToken
	m.user = nil
	m.status = SessionAuthenticated
	m.mu.Unlock()

	if saveErr := m.creds.SaveToken(token.AccessToken); saveErr != nil {
		m.log.WithField("error", saveErr).Warn("failed to persist credential")
	}
	m.log.WithField("email", email).Info("session authenticated")

	close(fl.done)
	return nil
}

// Logout clears the credential and the cached user, in memory and in the
// persistent store, and resets the session to anonymous.
func (m *sessionManager) Logout() error {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.status = SessionAnonymous
	m.mu.Unlock()

	m.log.Info("session logged out")

	if err := m.creds.Clear(); err != nil {
		return fmt.Errorf("telesync: failed to clear stored credentials: %w", err)
	}
	return nil
}

// Expire is the single notification path by which a credential rejection
// from any remote call mutates the session. It clears the credential and
// transitions the session to expired.
func (m *sessionManager) Expire() {
	m.mu.Lock()
	wasAuthenticated := m.status == SessionAuthenticated
	m.token = ""
	m.user = nil
	m.status = SessionExpired
	m.mu.Unlock()

	if wasAuthenticated {
		m.log.Warn("credential rejected by remote API, session expired")
	}

	// The rejected token is useless; drop it from the store as well.
	if err := m.creds.Clear(); err != nil {
		m.log.WithField("error", err).Warn("failed to clear stored credentials")
	}
}

// Token returns the current credential. ok is false unless the session
// is authenticated.
func (m *sessionManager) Token() (token string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != SessionAuthenticated {
		return "", false
	}
	return m.token, true
}

// Status returns the current session status.
func (m *sessionManager) Status() SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsAuthenticated reports whether an authenticated session exists.
func (m *sessionManager) IsAuthenticated() bool {
	return m.Status() == SessionAuthenticated
}

// CachedUser returns the last-known user profile, or nil.
func (m *sessionManager) CachedUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// setUser records a freshly fetched user profile and persists it
// alongside the credential.
func (m *sessionManager) setUser(user User) {
	m.mu.Lock()
	m.user = &user
	m.mu.Unlock()

	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := m.creds.SaveUser(data); err != nil {
		m.log.WithField("error", err).Warn("failed to persist user profile")
	}
}
