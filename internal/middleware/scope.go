package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/akruel/list-flix/internal/authstate"
	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/kv"
	"github.com/akruel/list-flix/internal/migration"
	"github.com/akruel/list-flix/internal/notify"
	"github.com/akruel/list-flix/internal/session"
)

// Scope is everything one browser needs for the lifetime of a request (or a
// websocket connection): its store, its backend client and the auth core
// built on top of them.
//
// WIRING ORDER:
//
//	kv.Store → backend.Client → migration.Service → session.Service → authstate.Provider
//
// Each layer only sees the interfaces it needs; the Provider is the only
// piece with goroutines and is mounted/unmounted by the Scope middleware.
type Scope struct {
	Store    kv.Store
	Client   *backend.Client
	Session  *session.Service
	Auth     *authstate.Provider
	Notifier notify.Notifier
}

// ScopeFactory builds Scopes. It holds the server-wide pieces.
type ScopeFactory struct {
	Hub         *backend.Hub
	Cookies     kv.CookieOptions
	CallbackURL string
	Logger      *slog.Logger
}

// Build wires a Scope around store. Flash messages go to the store unless
// notifier is given.
func (f *ScopeFactory) Build(store kv.Store, notifier notify.Notifier) *Scope {
	return f.build(store, f.Hub.Client(store), notifier)
}

// BuildFollower wires a Scope for a long-lived connection. Its client takes
// over sessions started by the browser's other requests.
func (f *ScopeFactory) BuildFollower(store *kv.MemoryStore, notifier notify.Notifier) *Scope {
	return f.build(store, f.Hub.Follower(store), notifier)
}

func (f *ScopeFactory) build(store kv.Store, client *backend.Client, notifier notify.Notifier) *Scope {
	if notifier == nil {
		notifier = notify.NewFlashNotifier(store)
	}

	migrator := migration.NewService(client, notifier, f.Logger)
	svc := session.NewService(client, client, store, migrator, f.CallbackURL, f.Logger)

	return &Scope{
		Store:    store,
		Client:   client,
		Session:  svc,
		Auth:     authstate.New(svc, client, f.Logger),
		Notifier: notifier,
	}
}

// Middleware attaches a cookie-backed Scope to every request. The auth
// provider is mounted before the handler runs and unmounted (waiting for
// its in-flight work) before the response is finished. Cookie writes reach
// the response only from this goroutine.
func (f *ScopeFactory) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, cw := kv.NewCookieStore(w, r, f.Cookies)
		sc := f.Build(store, nil)

		ctx := WithScope(r.Context(), sc)
		sc.Auth.Mount(ctx)

		func() {
			defer sc.Auth.Unmount()
			next.ServeHTTP(cw, r.WithContext(ctx))
		}()
		store.Commit(w)
	})
}

type scopeKey struct{}

// WithScope returns a copy of ctx carrying sc. The store and the auth
// provider are attached too, so kv.FromContext and authstate.Use work.
func WithScope(ctx context.Context, sc *Scope) context.Context {
	ctx = context.WithValue(ctx, scopeKey{}, sc)
	ctx = kv.WithStore(ctx, sc.Store)
	return authstate.WithProvider(ctx, sc.Auth)
}

// ScopeFrom returns the Scope set by WithScope.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(*Scope)
	return sc, ok && sc != nil
}
