// Package session is the browser-side auth façade: it signs users in and
// out through the backend, finalizes each login (detecting whether an
// anonymous user's data should follow them into their account) and keeps
// the two values that must survive a login round trip, the migration source
// id and the post-login target.
//
// A Service holds no state of its own. Everything it remembers lives in the
// kv.Store it was built with.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/kv"
	"github.com/akruel/list-flix/internal/model"
)

// Store keys.
const (
	KeyMigrationOldUserID = "migration_old_user_id"
	KeyPostLoginTarget    = "auth_post_login_target"
)

// Migrator moves an anonymous user's data to another user. Implementations
// report failures to the user themselves and never fail the caller.
type Migrator interface {
	MigrateAnonymousUserData(ctx context.Context, oldUserID, newUserID string)
}

// FinalizeResult is computed once per completed login.
type FinalizeResult struct {
	UserID            string `json:"userId"`
	IsAnonymous       bool   `json:"isAnonymous"`
	MigrationConflict bool   `json:"migrationConflict"`
}

// Choice is how the user resolved a migration conflict.
type Choice string

const (
	// ChoiceKeepLocal moves the anonymous data into the account.
	ChoiceKeepLocal Choice = "keep_local"
	// ChoiceUseAccount discards the anonymous data.
	ChoiceUseAccount Choice = "use_account"
)

// ErrUnknownChoice is returned by ResolveMigrationConflict.
var ErrUnknownChoice = errors.New("session: unknown migration choice")

type Service struct {
	auth        backend.Auth
	data        backend.Data
	store       kv.Store
	migrator    Migrator
	callbackURL string
	logger      *slog.Logger
}

// NewService wires a Service. callbackURL is where OAuth and magic-link
// sign-ins return to, normally {BaseURL}/auth/callback.
func NewService(
	authAPI backend.Auth,
	data backend.Data,
	store kv.Store,
	migrator Migrator,
	callbackURL string,
	logger *slog.Logger,
) *Service {
	return &Service{
		auth:        authAPI,
		data:        data,
		store:       store,
		migrator:    migrator,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// =========================================================================
// SIGN IN / OUT
// =========================================================================

// SignInWithGoogle returns the URL of Google's account chooser.
func (s *Service) SignInWithGoogle(ctx context.Context) (string, error) {
	s.StoreMigrationSourceIfAnonymous(ctx)
	return s.auth.SignInWithOAuth(ctx, backend.ProviderGoogle, s.callbackURL)
}

// SignInWithOtp sends a magic link to email.
func (s *Service) SignInWithOtp(ctx context.Context, email string) error {
	s.StoreMigrationSourceIfAnonymous(ctx)
	return s.auth.SignInWithOtp(ctx, email, s.callbackURL)
}

// SignInAnonymously returns the current anonymous user's id, or creates a
// new anonymous session. It returns "" when the backend created a session
// without a user.
func (s *Service) SignInAnonymously(ctx context.Context) (string, error) {
	current, err := s.auth.GetUser(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "could not read session before guest sign-in", slog.String("error", err.Error()))
	} else if current != nil && current.IsAnonymous {
		return current.ID, nil
	}

	sess, err := s.auth.SignInAnonymously(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil || sess.User == nil {
		return "", nil
	}
	return sess.User.ID, nil
}

// SignOutFully ends the session. The migration source is forgotten even
// when the backend call fails.
func (s *Service) SignOutFully(ctx context.Context) error {
	err := s.auth.SignOut(ctx)
	s.ClearMigrationOldUserID()
	return err
}

// SignOutToGuest signs out and continues as a fresh anonymous visitor.
func (s *Service) SignOutToGuest(ctx context.Context) (string, error) {
	if err := s.SignOutFully(ctx); err != nil {
		return "", err
	}
	return s.SignInAnonymously(ctx)
}

// =========================================================================
// POST-LOGIN
// =========================================================================

// FinalizePostLogin runs once after every completed login.
//
// For an authenticated user with a stored migration source that is a
// different user, the destination account is checked for content: if it has
// none the anonymous data is migrated right away, otherwise the result
// reports a conflict and nothing is migrated until the user chooses. A
// failing content check counts as a conflict.
func (s *Service) FinalizePostLogin(ctx context.Context) (FinalizeResult, error) {
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("session: reading session: %w", err)
	}
	if sess == nil || sess.User == nil {
		return FinalizeResult{}, nil
	}

	user := sess.User
	result := FinalizeResult{UserID: user.ID, IsAnonymous: user.IsAnonymous}
	if user.IsAnonymous {
		return result, nil
	}

	if oldID := s.MigrationOldUserID(); oldID != "" && oldID != user.ID {
		hasData, err := s.data.HasContent(ctx, user.ID)
		switch {
		case err != nil:
			s.logger.ErrorContext(ctx, "content check failed, deferring migration",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
			result.MigrationConflict = true
		case hasData:
			result.MigrationConflict = true
		default:
			s.MigrateAnonymousData(ctx, oldID, user.ID)
			s.ClearMigrationOldUserID()
		}
	}

	s.EnsureDisplayName(ctx)
	return result, nil
}

// ResolveMigrationConflict applies the user's answer to a conflict reported
// by FinalizePostLogin. Keeping local data migrates it first; either way the
// migration source is cleared.
func (s *Service) ResolveMigrationConflict(ctx context.Context, choice Choice) error {
	switch choice {
	case ChoiceKeepLocal:
		oldID := s.MigrationOldUserID()
		newID, err := s.GetUserID(ctx)
		if err != nil {
			return err
		}
		if oldID != "" && newID != "" {
			s.MigrateAnonymousData(ctx, oldID, newID)
		}
	case ChoiceUseAccount:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
	}

	s.ClearMigrationOldUserID()
	return nil
}

// MigrateAnonymousData hands off to the data migration service.
func (s *Service) MigrateAnonymousData(ctx context.Context, oldUserID, newUserID string) {
	s.migrator.MigrateAnonymousUserData(ctx, oldUserID, newUserID)
}

// EnsureDisplayName gives a signed-in user without any name metadata a
// display name taken from their email. Failures are logged and ignored.
func (s *Service) EnsureDisplayName(ctx context.Context) {
	user, err := s.auth.GetUser(ctx)
	if err != nil || user == nil || user.IsAnonymous {
		return
	}
	if user.Meta(model.MetaDisplayName) != "" || user.Meta(model.MetaFullName) != "" ||
		user.Meta(model.MetaName) != "" || user.Email == "" {
		return
	}

	name := emailLocalPart(user.Email)
	if _, err := s.auth.UpdateUser(ctx, map[string]string{model.MetaDisplayName: name}); err != nil {
		s.logger.WarnContext(ctx, "could not set display name",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// =========================================================================
// READ-ONLY PROJECTIONS
// =========================================================================

// GetUserID returns the current user's id, or "" when signed out.
func (s *Service) GetUserID(ctx context.Context) (string, error) {
	user, err := s.auth.GetUser(ctx)
	if err != nil || user == nil {
		return "", err
	}
	return user.ID, nil
}

func (s *Service) IsAnonymous(ctx context.Context) (bool, error) {
	user, err := s.auth.GetUser(ctx)
	if err != nil || user == nil {
		return false, err
	}
	return user.IsAnonymous, nil
}

// GetUserProfile returns nil when signed out.
func (s *Service) GetUserProfile(ctx context.Context) (*model.UserProfile, error) {
	user, err := s.auth.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	return ProfileFromUser(user), nil
}

// Auth exposes the backend so callers can subscribe to auth state changes.
func (s *Service) Auth() backend.Auth {
	return s.auth
}
