package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/authstate"
	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/middleware"
	"github.com/akruel/list-flix/internal/session"
)

// Callback errors shown to the user.
const (
	msgCallbackNoUser   = "Invalid session after the sign-in callback."
	msgCallbackFailed   = "Could not finish signing in. Please try again."
	msgCallbackRejected = "The sign-in was cancelled or the link has expired."
)

// AuthHandler serves the login pages and the auth actions.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLoginPage   → sign-in options (Google, magic link, guest)
//   - HandleGoogle      → redirect to Google's account chooser
//   - HandleOtp         → email a magic link
//   - HandleGuest       → continue as an anonymous user
//   - HandleCallback    → finish an OAuth or magic-link sign-in
//   - HandleMigration   → answer the "keep guest data?" question
//   - HandleLogout      → sign out fully or back to a fresh guest
//   - HandleMe          → current auth status as JSON
//
// Everything per-browser comes from the request Scope; the handler itself
// only holds server-wide collaborators.
type AuthHandler struct {
	pages  *Pages
	google func() bool
	wait   time.Duration
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. googleEnabled reports whether the
// Google button should be offered.
func NewAuthHandler(pages *Pages, googleEnabled func() bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		pages:  pages,
		google: googleEnabled,
		wait:   3 * time.Second,
		logger: logger,
	}
}

// scope returns the request Scope or writes a 500.
func scope(w http.ResponseWriter, r *http.Request) (*middleware.Scope, bool) {
	sc, ok := middleware.ScopeFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: authstate.ErrOutsideProvider.Error(),
		})
	}
	return sc, ok
}

func (h *AuthHandler) state(ctx context.Context, sc *middleware.Scope) authstate.State {
	ctx, cancel := context.WithTimeout(ctx, h.wait)
	defer cancel()
	st, _ := sc.Auth.Wait(ctx)
	return st
}

// HandleLoginPage shows the sign-in options.
//
// HTTP: GET /auth
//
// Guests see the page too, since signing in is how they upgrade. Signed-in
// users are sent home.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	if h.state(r.Context(), sc).Status == authstate.StatusAuthenticated {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.pages.Login(w, r, http.StatusOK, loginPage{GoogleEnabled: h.google()})
}

// HandleGoogle starts the Google OAuth flow.
//
// HTTP: POST /auth/google
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}

	url, err := sc.Auth.SignInWithGoogle(r.Context())
	if err != nil {
		h.logger.Warn("google sign-in could not start", slog.String("error", err.Error()))
		h.loginError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// HandleOtp sends a magic link to the submitted email address.
//
// HTTP: POST /auth/otp  (form: email)
func (h *AuthHandler) HandleOtp(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		h.loginError(w, r, apperror.ValidationFailed("email", "Enter your email address."))
		return
	}

	if err := sc.Auth.SignInWithOtp(r.Context(), email); err != nil {
		h.logger.Warn("magic link not sent", slog.String("error", err.Error()))
		h.loginError(w, r, err)
		return
	}
	h.pages.Login(w, r, http.StatusOK, loginPage{GoogleEnabled: h.google(), OTPSentTo: email})
}

// HandleGuest signs in anonymously (or keeps the current guest) and goes
// to the saved invite, if any.
//
// HTTP: POST /auth/guest
func (h *AuthHandler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}

	if err := sc.Auth.ContinueAsGuest(r.Context()); err != nil {
		h.logger.Error("anonymous sign-in failed", slog.String("error", err.Error()))
		h.loginError(w, r, err)
		return
	}
	http.Redirect(w, r, sc.Session.ConsumePostLoginDestination().Href(), http.StatusSeeOther)
}

// HandleCallback finishes a sign-in started by HandleGoogle or HandleOtp.
//
// HTTP: GET /auth/callback
//
//	?code=..&state=..                      Google
//	?type=magiclink&email=..&code=..       magic link
//	?error=access_denied                   the user backed out at Google
//
// After the code exchange the post-login steps run right here, so a
// migration conflict is asked about before the user lands anywhere.
// Without a code the current session is finalized (e.g. on reload); with
// no session at all the browser goes back to /auth.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		h.logger.Info("provider returned an error", slog.String("error", reason))
		h.pages.Error(w, r, http.StatusBadRequest, msgCallbackRejected)
		return
	}

	if code := q.Get("code"); code != "" {
		var err error
		if q.Get("type") == "magiclink" {
			_, err = sc.Client.VerifyOtp(ctx, q.Get("email"), code)
		} else {
			_, err = sc.Client.ExchangeCodeForSession(ctx, code, q.Get("state"))
		}
		if err != nil {
			h.logger.Warn("sign-in callback rejected", slog.String("error", err.Error()))
			status := http.StatusBadRequest
			if !errors.Is(err, backend.ErrInvalidState) && !errors.Is(err, backend.ErrInvalidOTP) &&
				!errors.Is(err, apperror.ErrValidation) {
				status = http.StatusBadGateway
			}
			h.pages.Error(w, r, status, msgCallbackRejected)
			return
		}
	} else if h.state(ctx, sc).Status == authstate.StatusNone {
		http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
		return
	}

	result, err := sc.Session.FinalizePostLogin(ctx)
	if err != nil {
		h.logger.Error("auth callback finalization failed", slog.String("error", err.Error()))
		h.pages.Error(w, r, http.StatusInternalServerError, msgCallbackFailed)
		return
	}
	if result.UserID == "" {
		h.pages.Error(w, r, http.StatusUnauthorized, msgCallbackNoUser)
		return
	}
	if result.MigrationConflict {
		h.pages.MigrationChoice(w, r, "")
		return
	}

	middleware.MarkHandled(sc.Store, result.UserID)
	http.Redirect(w, r, sc.Session.ConsumePostLoginDestination().Href(), http.StatusSeeOther)
}

// HandleMigration applies the answer to the migration question.
//
// HTTP: POST /auth/migration  (form: choice=keep_local|use_account, next)
//
// next is set when the question interrupted a protected page; otherwise the
// saved post-login target decides where to go.
func (h *AuthHandler) HandleMigration(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	choice := session.Choice(r.FormValue("choice"))
	if err := sc.Session.ResolveMigrationConflict(ctx, choice); err != nil {
		if errors.Is(err, session.ErrUnknownChoice) {
			h.pages.Error(w, r, http.StatusBadRequest, "Please choose which data to keep.")
			return
		}
		h.logger.Error("resolving migration conflict failed", slog.String("error", err.Error()))
		h.pages.Error(w, r, http.StatusInternalServerError, msgCallbackFailed)
		return
	}

	if userID, err := sc.Session.GetUserID(ctx); err == nil {
		middleware.MarkHandled(sc.Store, userID)
	}

	dest := sc.Session.ConsumePostLoginDestination().Href()
	if next := r.FormValue("next"); isLocalPath(next) {
		dest = next
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// HandleLogout signs out.
//
// HTTP: POST /auth/logout  (form: mode=guest|full, default full)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if r.FormValue("mode") == "guest" {
		if err := sc.Auth.SignOutToGuest(ctx); err != nil {
			h.logger.Error("sign out to guest failed", slog.String("error", err.Error()))
			h.pages.Error(w, r, http.StatusInternalServerError, "Could not sign out. Please try again.")
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := sc.Auth.SignOutFully(ctx); err != nil {
		// The session was not revoked and the browser keeps its token.
		h.logger.Error("sign out failed", slog.String("error", err.Error()))
		h.pages.Error(w, r, http.StatusInternalServerError, "Could not sign out. Please try again.")
		return
	}
	sc.Store.Remove(middleware.KeyLastHandledUser)
	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}

// HandleMe returns the auth status and profile.
//
// HTTP: GET /api/me
//
// RESPONSE: {"status":"anonymous","user":{"id":"...","provider":"anonymous",...}}
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.state(r.Context(), sc))
}

// loginError re-renders the login page with a user-facing message.
func (h *AuthHandler) loginError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "Something went wrong. Please try again."

	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr) && errors.Is(err, apperror.ErrValidation):
		status, message = http.StatusBadRequest, appErr.Message
	default:
		if s, resp, ok := backendStatus(err); ok {
			status, message = s, resp.Message
		}
	}

	h.pages.Login(w, r, status, loginPage{GoogleEnabled: h.google(), Error: message})
}

// isLocalPath accepts "/x" but not "//host" or "/\host", which browsers
// treat as another origin.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}
