// Package backend is the account and session service the rest of the app
// talks to: anonymous, Google and magic-link sign-in, revocable sessions,
// user metadata, auth-state-change notifications and the two data
// procedures the login flow needs (migrate_user_data and the content check).
//
// A Hub holds the server-wide dependencies. Each browser gets a Client bound
// to its kv.Store, which keeps the access token and a device token signed by
// the server. Clients on the same device are notified of each other's
// sign-ins and sign-outs; only followers take over the announced session.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/akruel/list-flix/internal/model"
)

var (
	ErrProviderDisabled = errors.New("backend: sign-in provider is not enabled")
	ErrInvalidState     = errors.New("backend: invalid or expired oauth state")
	ErrInvalidOTP       = errors.New("backend: invalid or expired code")
	ErrRateLimited      = errors.New("backend: too many requests, try again later")
	ErrNoSession        = errors.New("backend: no active session")
)

// Session is an authenticated session as handed to the browser.
type Session struct {
	AccessToken string      `json:"-"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        *model.User `json:"user"`
}

// Event names the kind of auth state change.
type Event string

const (
	EventSignedIn    Event = "SIGNED_IN"
	EventSignedOut   Event = "SIGNED_OUT"
	EventUserUpdated Event = "USER_UPDATED"
)

// AuthChange is delivered to OnAuthStateChange listeners. Session is nil
// after a sign-out.
type AuthChange struct {
	Event   Event
	Session *Session
}

// Auth is the authentication surface the session service depends on.
type Auth interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// GetUser returns the current user, or nil when signed out.
	GetUser(ctx context.Context) (*model.User, error)
	OnAuthStateChange(fn func(AuthChange)) (unsubscribe func())
	// SignInWithOAuth returns the provider URL the browser must visit.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	SignInWithOtp(ctx context.Context, email, redirectTo string) error
	SignInAnonymously(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, metadata map[string]string) (*model.User, error)
}

// Data is the pair of server-side procedures used by the login flow.
type Data interface {
	MigrateUserData(ctx context.Context, oldUserID, newUserID string) error
	HasContent(ctx context.Context, userID string) (bool, error)
}
