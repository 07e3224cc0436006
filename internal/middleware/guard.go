package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/akruel/list-flix/internal/auth"
	"github.com/akruel/list-flix/internal/authstate"
	"github.com/akruel/list-flix/internal/kv"
)

// KeyLastHandledUser remembers which user the post-login steps already ran
// for, so they run once per login and not once per page.
const KeyLastHandledUser = "guard_last_user_id"

// LoginPath is where signed-out visitors are sent.
const LoginPath = "/auth"

// Pages renders the two screens the guard may show instead of the page.
type Pages interface {
	// Loader is shown while the auth status is still unknown.
	Loader(w http.ResponseWriter, r *http.Request)
	// MigrationChoice asks whether to keep the guest data. next is where
	// to go once the user has answered.
	MigrationChoice(w http.ResponseWriter, r *http.Request, next string)
}

// Guard protects routes that need a user, guest or signed in.
//
// STATE MACHINE:
//
//	loading        → loader page (503), the browser retries
//	none           → remember an invite link, redirect to /auth (API: 401)
//	anonymous/auth → FinalizePostLogin once per user id, then the page
//	                 (a migration conflict shows the choice page instead)
type Guard struct {
	pages  Pages
	wait   time.Duration
	logger *slog.Logger
}

// NewGuard returns a Guard. wait bounds how long a request blocks for the
// first session check before the loader is shown.
func NewGuard(pages Pages, wait time.Duration, logger *slog.Logger) *Guard {
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &Guard{pages: pages, wait: wait, logger: logger}
}

// MarkHandled records that the post-login steps are done for userID.
func MarkHandled(store kv.Store, userID string) {
	if userID == "" {
		return
	}
	store.Set(KeyLastHandledUser, userID)
}

// Protect is the chi middleware.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sc, ok := ScopeFrom(ctx)
		if !ok {
			g.logger.ErrorContext(ctx, "guard used without a request scope", slog.String("path", r.URL.Path))
			http.Error(w, authstate.ErrOutsideProvider.Error(), http.StatusInternalServerError)
			return
		}

		waitCtx, cancel := context.WithTimeout(ctx, g.wait)
		st, err := sc.Auth.Wait(waitCtx)
		cancel()
		if err != nil || st.Status == authstate.StatusLoading {
			g.loading(w, r)
			return
		}

		switch st.Status {
		case authstate.StatusNone:
			sc.Store.Remove(KeyLastHandledUser)
			if isAPI(r) {
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "sign in or continue as guest")
				return
			}
			sc.Session.SavePostLoginTarget(r.URL.RequestURI())
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return

		case authstate.StatusAnonymous, authstate.StatusAuthenticated:
			userID := ""
			if st.User != nil {
				userID = st.User.ID
			}
			if userID == "" {
				g.loading(w, r)
				return
			}

			if last, _ := sc.Store.Get(KeyLastHandledUser); last != userID {
				result, err := sc.Session.FinalizePostLogin(ctx)
				switch {
				case err != nil:
					// Not marked as handled; the next request tries again.
					g.logger.ErrorContext(ctx, "session initialization failed",
						slog.String("userID", userID),
						slog.String("error", err.Error()),
					)
				case result.MigrationConflict:
					if isAPI(r) {
						writeStatus(w, http.StatusConflict, "migration_conflict", "choose which data to keep")
						return
					}
					g.pages.MigrationChoice(w, r, r.URL.RequestURI())
					return
				default:
					MarkHandled(sc.Store, userID)
				}
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserID(ctx, userID)))
		}
	})
}

func (g *Guard) loading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	if isAPI(r) {
		writeStatus(w, http.StatusServiceUnavailable, "loading", "session is still loading")
		return
	}
	g.pages.Loader(w, r)
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// writeStatus writes the same {"error","message"} shape the handlers use.
func writeStatus(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
