// Package server wires list-flix together: storage, the auth backend, the
// per-request auth Scope, services, handlers and routes.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB → backend.Hub → middleware.ScopeFactory
//	                          → ListService / ContentService → handlers → chi router
//
// Everything is assembled in New; Start runs the HTTP server and the session
// janitor until the context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/akruel/list-flix/internal/auth"
	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/config"
	"github.com/akruel/list-flix/internal/handler"
	"github.com/akruel/list-flix/internal/kv"
	"github.com/akruel/list-flix/internal/middleware"
	sqliteRepo "github.com/akruel/list-flix/internal/repository/sqlite"
	"github.com/akruel/list-flix/internal/service"
)

// Options carry what New cannot build from the config alone. Tests use
// them to swap in fakes.
type Options struct {
	Google backend.OAuthProvider // overrides the configured Google client
	Mailer backend.Mailer        // default: log the magic links
}

// Server owns the database and the router.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	hub    *backend.Hub
}

// New opens the database (applying migrations) and builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		db.Close()
		return nil, err
	}

	google := opts.Google
	if google == nil && cfg.GoogleEnabled() {
		// Discovery talks to Google; failing here leaves the button hidden
		// instead of keeping the server down.
		p, err := auth.NewGoogleProvider(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.CallbackURL())
		if err != nil {
			logger.Warn("google sign-in disabled", slog.String("error", err.Error()))
		} else {
			google = p
		}
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.hub = backend.NewHub(backend.Deps{
		Users:    db,
		Sessions: db,
		Owners:   db,
		Tokens:   tokens,
		Codes:    auth.NewCodeHasher(),
		Google:   google,
		Mailer:   opts.Mailer,
		Logger:   logger,
	}, backend.Options{
		SessionTTL: cfg.Auth.SessionTTL.Duration,
		OTPTTL:     cfg.Auth.OTPTTL.Duration,
	})

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes
//
// ROUTES:
//
//	GET  /health
//	GET  /auth                          login page
//	POST /auth/google | /auth/otp | /auth/guest | /auth/migration | /auth/logout
//	GET  /auth/callback
//	GET  /api/me                        auth state (no guard)
//	GET  /api/auth/events               auth state stream (websocket)
//
//	guarded (anonymous or signed in):
//	GET  /                              home
//	GET  /lists/{id}/join, POST same    invites
//	/api/lists/...                      shared lists
//	/api/content/...                    watchlist and watched history
func (s *Server) setupRoutes() error {
	pages, err := handler.NewPages(s.logger)
	if err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}

	scopes := &middleware.ScopeFactory{
		Hub: s.hub,
		Cookies: kv.CookieOptions{
			Prefix: s.config.Server.CookiePrefix,
			MaxAge: s.config.Auth.SessionTTL.Duration,
			Secure: s.config.Server.SecureCookies,
		},
		CallbackURL: s.config.CallbackURL(),
		Logger:      s.logger,
	}
	guard := middleware.NewGuard(pages, 3*time.Second, s.logger)

	lists := service.NewListService(s.db, s.config.Server.BaseURL, s.logger)
	content := service.NewContentService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(pages, s.hub.GoogleEnabled, s.logger)
	listHandler := handler.NewListHandler(lists, pages, s.logger)
	contentHandler := handler.NewContentHandler(content, s.logger)
	eventsHandler := handler.NewEventsHandler(scopes, s.checkOrigin, s.logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	if len(s.config.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(scopes.Middleware)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/", authHandler.HandleLoginPage)
			r.Get("/callback", authHandler.HandleCallback)
			r.Post("/google", authHandler.HandleGoogle)
			r.Post("/otp", authHandler.HandleOtp)
			r.Post("/guest", authHandler.HandleGuest)
			r.Post("/migration", authHandler.HandleMigration)
			r.Post("/logout", authHandler.HandleLogout)
		})
		r.Get("/api/me", authHandler.HandleMe)
		r.Get("/api/auth/events", eventsHandler.HandleEvents)

		r.Group(func(r chi.Router) {
			r.Use(guard.Protect)

			r.Get("/", listHandler.HandleHome)
			r.Get("/lists/{id}/join", listHandler.HandleJoinPage)
			r.Post("/lists/{id}/join", listHandler.HandleJoin)

			r.Route("/api/lists", func(r chi.Router) {
				r.Get("/", listHandler.HandleList)
				r.Post("/", listHandler.HandleCreate)
				r.Get("/{id}", listHandler.HandleGet)
				r.Get("/{id}/share", listHandler.HandleShare)
				r.Post("/{id}/items", listHandler.HandleAddItem)
				r.Delete("/{id}/items/{itemID}", listHandler.HandleRemoveItem)
				r.Put("/{id}/members/{userID}", listHandler.HandleUpdateRole)
			})

			r.Route("/api/content", func(r chi.Router) {
				r.Get("/", contentHandler.HandleGet)
				r.Post("/watchlist", contentHandler.HandleAddToWatchlist)
				r.Delete("/watchlist/{contentID}", contentHandler.HandleRemoveFromWatchlist)
				r.Post("/watched", contentHandler.HandleMarkWatched)
				r.Delete("/watched/{contentID}", contentHandler.HandleMarkUnwatched)
				r.Post("/episodes", contentHandler.HandleMarkEpisodes)
				r.Delete("/episodes", contentHandler.HandleUnmarkEpisodes)
				r.Post("/sync", contentHandler.HandleSync)
			})
		})
	})

	return nil
}

// checkOrigin accepts websocket connections from the server's own origin
// and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.config.Server.CORSOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// Start serves HTTP and runs the janitor until ctx is cancelled, then shuts
// down gracefully and closes the database.
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut the auth event websockets.
		IdleTimeout: 60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Server.BaseURL),
			slog.String("database", s.config.Database.Path),
			slog.Bool("google", s.hub.GoogleEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.hub.RunJanitor(ctx, s.config.Auth.JanitorInterval.Duration)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
