package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akruel/list-flix/internal/auth"
	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/kv"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/notify"
	"github.com/akruel/list-flix/internal/repository/sqlite"
	"github.com/akruel/list-flix/internal/session"
)

type fakePages struct {
	loader   int
	choice   int
	nextSeen string
}

func (p *fakePages) Loader(w http.ResponseWriter, _ *http.Request) {
	p.loader++
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (p *fakePages) MigrationChoice(w http.ResponseWriter, _ *http.Request, next string) {
	p.choice++
	p.nextSeen = next
	w.WriteHeader(http.StatusOK)
}

type fakeGoogle struct{}

func (fakeGoogle) AuthURL(state, _, _ string) string { return "https://accounts.example/?state=" + state }

func (fakeGoogle) Exchange(context.Context, string, string, string) (*auth.ExternalIdentity, error) {
	return &auth.ExternalIdentity{Provider: model.ProviderTagGoogle, Subject: "g-1", Email: "ana@example.com"}, nil
}

type guardEnv struct {
	db      *sqlite.DB
	factory *ScopeFactory
	pages   *fakePages
	guard   *Guard
}

func newGuardEnv(t *testing.T) *guardEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := backend.NewHub(backend.Deps{
		Users:    db,
		Sessions: db,
		Owners:   db,
		Tokens:   tokens,
		Codes:    auth.NewCodeHasherForTest(),
		Google:   fakeGoogle{},
		Logger:   logger,
	}, backend.Options{})

	pages := &fakePages{}
	return &guardEnv{
		db:      db,
		factory: &ScopeFactory{Hub: hub, CallbackURL: "http://test/auth/callback", Logger: logger},
		pages:   pages,
		guard:   NewGuard(pages, 200*time.Millisecond, logger),
	}
}

// scope builds a Scope over store. mount=false leaves the auth state loading.
func (e *guardEnv) scope(t *testing.T, store kv.Store, mount bool) *Scope {
	t.Helper()
	sc := e.factory.Build(store, notify.LogNotifier{Logger: e.factory.Logger})
	if mount {
		sc.Auth.Mount(context.Background())
		t.Cleanup(sc.Auth.Unmount)
	}
	return sc
}

// serve runs one request through the guard and reports the user id the
// protected handler saw ("" when it did not run).
func (e *guardEnv) serve(sc *Scope, target string) (*httptest.ResponseRecorder, string) {
	var seen string
	h := e.guard.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(WithScope(req.Context(), sc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestGuard_WithoutScope(t *testing.T) {
	env := newGuardEnv(t)
	h := env.guard.Protect(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGuard_Loading(t *testing.T) {
	env := newGuardEnv(t)
	sc := env.scope(t, kv.NewMemoryStore(nil), false)

	rec, seen := env.serve(sc, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, env.pages.loader)
	assert.Empty(t, seen)

	rec, _ = env.serve(sc, "/api/lists")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"loading","message":"session is still loading"}`, rec.Body.String())
	assert.Equal(t, 1, env.pages.loader, "API requests get JSON")
}

func TestGuard_SignedOut(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantSaved  string
	}{
		{"invite page", "/lists/abc/join?role=editor", http.StatusFound, "/lists/abc/join?role=editor"},
		{"other page", "/", http.StatusFound, ""},
		{"api", "/api/lists", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newGuardEnv(t)
			store := kv.NewMemoryStore(map[string]string{KeyLastHandledUser: "someone"})
			sc := env.scope(t, store, true)

			rec, seen := env.serve(sc, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, seen)
			if tt.wantStatus == http.StatusFound {
				assert.Equal(t, LoginPath, rec.Header().Get("Location"))
			}

			saved, _ := store.Get(session.KeyPostLoginTarget)
			assert.Equal(t, tt.wantSaved, saved)
			_, ok := store.Get(KeyLastHandledUser)
			assert.False(t, ok, "signing out forgets the handled user")
		})
	}
}

func TestGuard_Anonymous(t *testing.T) {
	env := newGuardEnv(t)
	ctx := context.Background()
	store := kv.NewMemoryStore(nil)

	guest, err := env.factory.Hub.Client(store).SignInAnonymously(ctx)
	require.NoError(t, err)

	sc := env.scope(t, store, true)
	rec, seen := env.serve(sc, "/")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, guest.User.ID, seen)

	handled, _ := store.Get(KeyLastHandledUser)
	assert.Equal(t, guest.User.ID, handled)
}

// signInWithGoogle completes the OAuth round trip on store.
func (e *guardEnv) signInWithGoogle(t *testing.T, store kv.Store) *backend.Session {
	t.Helper()
	ctx := context.Background()
	c := e.factory.Hub.Client(store)

	_, err := c.SignInWithOAuth(ctx, backend.ProviderGoogle, e.factory.CallbackURL)
	require.NoError(t, err)
	state, _ := store.Get(backend.KeyOAuthState)

	s, err := c.ExchangeCodeForSession(ctx, "code", state)
	require.NoError(t, err)
	return s
}

func TestGuard_MigrationConflict(t *testing.T) {
	env := newGuardEnv(t)
	ctx := context.Background()

	// The account already owns a list.
	account := env.signInWithGoogle(t, kv.NewMemoryStore(nil))
	require.NoError(t, env.db.CreateList(ctx, &model.List{Name: "Account", OwnerID: account.User.ID}))

	// A guest with its own list signs in to it.
	store := kv.NewMemoryStore(nil)
	guest, err := env.factory.Hub.Client(store).SignInAnonymously(ctx)
	require.NoError(t, err)
	require.NoError(t, env.db.CreateList(ctx, &model.List{Name: "Guest", OwnerID: guest.User.ID}))
	store.Set(session.KeyMigrationOldUserID, guest.User.ID)
	env.signInWithGoogle(t, store)

	sc := env.scope(t, store, true)

	rec, seen := env.serve(sc, "/api/lists")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, seen)

	rec, seen = env.serve(sc, "/lists/x/join")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen)
	assert.Equal(t, 1, env.pages.choice)
	assert.Equal(t, "/lists/x/join", env.pages.nextSeen)

	_, ok := store.Get(KeyLastHandledUser)
	assert.False(t, ok, "a pending conflict is not marked as handled")

	// Once answered, the page is served.
	require.NoError(t, sc.Session.ResolveMigrationConflict(ctx, session.ChoiceUseAccount))
	rec, seen = env.serve(sc, "/")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, account.User.ID, seen)
}

func TestGuard_SkipsFinalizeForHandledUser(t *testing.T) {
	env := newGuardEnv(t)
	ctx := context.Background()

	account := env.signInWithGoogle(t, kv.NewMemoryStore(nil))
	require.NoError(t, env.db.CreateList(ctx, &model.List{Name: "Account", OwnerID: account.User.ID}))

	store := kv.NewMemoryStore(nil)
	env.signInWithGoogle(t, store)
	// A stale migration source would cause a conflict if finalize ran again.
	store.Set(session.KeyMigrationOldUserID, "old-guest")
	MarkHandled(store, account.User.ID)

	sc := env.scope(t, store, true)
	rec, seen := env.serve(sc, "/")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, account.User.ID, seen)
	assert.Zero(t, env.pages.choice)
}

func TestMarkHandled_IgnoresEmptyID(t *testing.T) {
	store := kv.NewMemoryStore(nil)
	MarkHandled(store, "")
	_, ok := store.Get(KeyLastHandledUser)
	assert.False(t, ok)
}
