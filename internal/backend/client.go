package backend

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/auth"
	"github.com/akruel/list-flix/internal/kv"
	"github.com/akruel/list-flix/internal/model"
)

// Keys the client keeps in the browser's store.
const (
	KeyDeviceID      = "device_id"
	KeyAccessToken   = "access_token"
	KeyOAuthState    = "oauth_state"
	KeyOAuthNonce    = "oauth_nonce"
	KeyOAuthRedirect = "oauth_redirect"
)

// ProviderGoogle is the only OAuth provider SignInWithOAuth accepts.
const ProviderGoogle = "google"

// Client is one browser's view of the backend. It implements Auth and Data.
type Client struct {
	hub    *Hub
	store  kv.Store
	device string
	follow bool
}

var (
	_ Auth = (*Client)(nil)
	_ Data = (*Client)(nil)
)

// newClient reads the signed device token from store, minting a new device
// when it is missing or does not verify.
func newClient(h *Hub, store kv.Store, follow bool) *Client {
	c := &Client{hub: h, store: store, follow: follow}

	if token, ok := store.Get(KeyDeviceID); ok && token != "" {
		if id, err := h.tokens.VerifyDevice(token); err == nil {
			c.device = id
			return c
		}
	}

	c.device = xid.New().String()
	token, err := h.tokens.SignDevice(c.device)
	if err != nil {
		h.logger.Warn("device not persisted", slog.String("error", err.Error()))
		return c
	}
	store.Set(KeyDeviceID, token)
	return c
}

// DeviceID identifies the browser this client belongs to.
func (c *Client) DeviceID() string {
	return c.device
}

// =========================================================================
// SESSION
// =========================================================================

func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	token, ok := c.store.Get(KeyAccessToken)
	if !ok || token == "" {
		return nil, nil
	}

	claims, err := c.hub.tokens.Validate(token)
	if err != nil {
		c.store.Remove(KeyAccessToken)
		return nil, nil
	}

	row, err := c.hub.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			c.store.Remove(KeyAccessToken)
			return nil, nil
		}
		return nil, fmt.Errorf("backend: loading session: %w", err)
	}
	if row.UserID != claims.UserID || !row.ExpiresAt.After(time.Now()) {
		c.store.Remove(KeyAccessToken)
		return nil, nil
	}

	user, err := c.hub.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			c.store.Remove(KeyAccessToken)
			return nil, nil
		}
		return nil, fmt.Errorf("backend: loading session user: %w", err)
	}

	return &Session{AccessToken: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}

func (c *Client) GetUser(ctx context.Context) (*model.User, error) {
	s, err := c.GetSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	return s.User, nil
}

// OnAuthStateChange registers fn for every auth change on this device. A
// following client adopts the session carried by each change before fn
// runs; other clients keep their own token and re-read it on demand.
func (c *Client) OnAuthStateChange(fn func(AuthChange)) func() {
	return c.hub.bus.subscribe(c.device, func(change AuthChange) {
		if c.follow {
			c.adopt(change)
		}
		fn(change)
	})
}

func (c *Client) adopt(change AuthChange) {
	if change.Session == nil {
		c.store.Remove(KeyAccessToken)
		return
	}
	if cur, _ := c.store.Get(KeyAccessToken); cur != change.Session.AccessToken {
		c.store.Set(KeyAccessToken, change.Session.AccessToken)
	}
}

// startSession creates a session row for user, stores the signed token and
// announces the sign-in on the device.
func (c *Client) startSession(ctx context.Context, user *model.User) (*Session, error) {
	row := &model.AuthSession{
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(c.hub.opts.SessionTTL),
	}
	if err := c.hub.sessions.CreateSession(ctx, row); err != nil {
		return nil, fmt.Errorf("backend: creating session: %w", err)
	}

	token, err := c.hub.tokens.Generate(user.ID, row.ID, c.hub.opts.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("backend: issuing token: %w", err)
	}

	s := &Session{AccessToken: token, ExpiresAt: row.ExpiresAt, User: user}
	c.store.Set(KeyAccessToken, token)
	c.hub.bus.publish(c.device, AuthChange{Event: EventSignedIn, Session: s})

	c.hub.logger.InfoContext(ctx, "session started",
		slog.String("userID", user.ID),
		slog.String("provider", user.Provider),
		slog.Bool("anonymous", user.IsAnonymous),
	)
	return s, nil
}

// =========================================================================
// SIGN IN
// =========================================================================

func (c *Client) SignInAnonymously(ctx context.Context) (*Session, error) {
	user := &model.User{IsAnonymous: true, Provider: model.ProviderTagAnonymous}
	if err := c.hub.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("backend: creating anonymous user: %w", err)
	}
	return c.startSession(ctx, user)
}

// SignInWithOAuth prepares an authorization code flow and returns the URL
// to send the browser to. redirectTo must be the callback URL registered
// with the provider.
func (c *Client) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	if provider != ProviderGoogle || c.hub.google == nil {
		return "", ErrProviderDisabled
	}

	state := rand.Text()
	nonce := rand.Text()
	c.store.Set(KeyOAuthState, state)
	c.store.Set(KeyOAuthNonce, nonce)
	c.store.Set(KeyOAuthRedirect, redirectTo)

	return c.hub.google.AuthURL(state, nonce, redirectTo), nil
}

// ExchangeCodeForSession completes the OAuth flow started by
// SignInWithOAuth in the same browser.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, state string) (*Session, error) {
	if c.hub.google == nil {
		return nil, ErrProviderDisabled
	}

	wantState, _ := c.store.Get(KeyOAuthState)
	nonce, _ := c.store.Get(KeyOAuthNonce)
	redirectTo, _ := c.store.Get(KeyOAuthRedirect)
	c.store.Remove(KeyOAuthState)
	c.store.Remove(KeyOAuthNonce)
	c.store.Remove(KeyOAuthRedirect)

	if code == "" || wantState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(wantState)) != 1 {
		return nil, ErrInvalidState
	}

	ident, err := c.hub.google.Exchange(ctx, code, nonce, redirectTo)
	if err != nil {
		return nil, fmt.Errorf("backend: google exchange: %w", err)
	}

	user, err := c.findOrCreateUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	return c.startSession(ctx, user)
}

// findOrCreateUser resolves an external identity to a user: by linked
// identity first, then by verified email, else a new account.
func (c *Client) findOrCreateUser(ctx context.Context, ident *auth.ExternalIdentity) (*model.User, error) {
	user, err := c.hub.users.FindByIdentity(ctx, ident.Provider, ident.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("backend: finding %s identity: %w", ident.Provider, err)
	}

	if ident.Email != "" {
		user, err = c.hub.users.FindByEmail(ctx, ident.Email)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("backend: finding user by email: %w", err)
		}
	}

	if user == nil {
		user = &model.User{
			Email:    ident.Email,
			Provider: ident.Provider,
			Metadata: map[string]string{},
		}
		if ident.Name != "" {
			user.Metadata[model.MetaFullName] = ident.Name
			user.Metadata[model.MetaName] = ident.Name
		}
		if ident.Picture != "" {
			user.Metadata[model.MetaAvatarURL] = ident.Picture
			user.Metadata[model.MetaPicture] = ident.Picture
		}
		if err := c.hub.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("backend: creating %s user: %w", ident.Provider, err)
		}
	}

	if err := c.hub.users.LinkIdentity(ctx, model.Identity{
		Provider: ident.Provider,
		Subject:  ident.Subject,
		UserID:   user.ID,
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// SignInWithOtp emails a magic link to email. The link points at redirectTo
// with type, email and code query parameters.
func (c *Client) SignInWithOtp(ctx context.Context, email, redirectTo string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return apperror.ValidationFailed("email", "a valid email address is required")
	}
	email = strings.ToLower(addr.Address)

	if !c.hub.allowOTP(email) {
		return ErrRateLimited
	}

	code := auth.NewCode()
	hash, err := c.hub.codes.Hash(code)
	if err != nil {
		return fmt.Errorf("backend: hashing code: %w", err)
	}
	if err := c.hub.sessions.CreateOTP(ctx, &model.OTPCode{
		Email:     email,
		CodeHash:  hash,
		ExpiresAt: time.Now().Add(c.hub.opts.OTPTTL),
	}); err != nil {
		return fmt.Errorf("backend: storing code: %w", err)
	}

	link := redirectTo + "?" + url.Values{
		"type":  {"magiclink"},
		"email": {email},
		"code":  {code},
	}.Encode()

	if err := c.hub.mailer.SendMagicLink(ctx, email, link, c.hub.opts.OTPTTL); err != nil {
		return fmt.Errorf("backend: sending magic link: %w", err)
	}
	return nil
}

// VerifyOtp consumes a magic-link code and signs the browser in as the
// account with that email, creating it on first use.
func (c *Client) VerifyOtp(ctx context.Context, email, code string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || code == "" {
		return nil, ErrInvalidOTP
	}

	otp, err := c.hub.sessions.LatestOTP(ctx, email, time.Now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, fmt.Errorf("backend: loading code: %w", err)
	}
	if err := c.hub.codes.Verify(otp.CodeHash, code); err != nil {
		if errors.Is(err, auth.ErrCodeMismatch) {
			return nil, ErrInvalidOTP
		}
		return nil, fmt.Errorf("backend: checking code: %w", err)
	}
	if err := c.hub.sessions.DeleteOTPs(ctx, email); err != nil {
		return nil, fmt.Errorf("backend: consuming code: %w", err)
	}

	user, err := c.findOrCreateUser(ctx, &auth.ExternalIdentity{
		Provider: model.ProviderTagEmail,
		Subject:  email,
		Email:    email,
	})
	if err != nil {
		return nil, err
	}
	return c.startSession(ctx, user)
}

// =========================================================================
// SIGN OUT / UPDATE
// =========================================================================

// SignOut revokes the current session. The local token is only dropped once
// the revocation succeeded.
func (c *Client) SignOut(ctx context.Context) error {
	if token, ok := c.store.Get(KeyAccessToken); ok && token != "" {
		if claims, err := c.hub.tokens.Validate(token); err == nil {
			if err := c.hub.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
				return fmt.Errorf("backend: revoking session: %w", err)
			}
		}
	}

	c.store.Remove(KeyAccessToken)
	c.hub.bus.publish(c.device, AuthChange{Event: EventSignedOut})
	return nil
}

// UpdateUser merges metadata into the current user's profile.
func (c *Client) UpdateUser(ctx context.Context, metadata map[string]string) (*model.User, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}

	user, err := c.hub.users.UpdateMetadata(ctx, s.User.ID, metadata)
	if err != nil {
		return nil, fmt.Errorf("backend: updating user: %w", err)
	}

	c.hub.bus.publish(c.device, AuthChange{
		Event:   EventUserUpdated,
		Session: &Session{AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt, User: user},
	})
	return user, nil
}

// =========================================================================
// DATA
// =========================================================================

// MigrateUserData moves an anonymous user's content to the signed-in user.
// Only the destination user may call it, and only anonymous users can be
// migrated away from.
func (c *Client) MigrateUserData(ctx context.Context, oldUserID, newUserID string) error {
	s, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrNoSession
	}
	if s.User.ID != newUserID {
		return apperror.Forbidden("can only migrate data into the signed-in account")
	}

	old, err := c.hub.users.GetUserByID(ctx, oldUserID)
	if err != nil {
		return fmt.Errorf("backend: loading source user: %w", err)
	}
	if !old.IsAnonymous {
		return apperror.Forbidden("can only migrate data from an anonymous account")
	}

	if err := c.hub.owners.MigrateUserData(ctx, oldUserID, newUserID); err != nil {
		return fmt.Errorf("backend: migrate_user_data: %w", err)
	}

	c.hub.logger.InfoContext(ctx, "user data migrated",
		slog.String("from", oldUserID),
		slog.String("to", newUserID),
	)
	return nil
}

// HasContent reports whether the signed-in user owns or tracks anything.
func (c *Client) HasContent(ctx context.Context, userID string) (bool, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, ErrNoSession
	}
	if s.User.ID != userID {
		return false, apperror.Forbidden("can only check the signed-in account")
	}
	return c.hub.owners.HasContent(ctx, userID)
}
