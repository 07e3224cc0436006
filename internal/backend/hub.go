package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/akruel/list-flix/internal/auth"
	"github.com/akruel/list-flix/internal/kv"
	"github.com/akruel/list-flix/internal/repository"
)

// OAuthProvider is satisfied by *auth.GoogleProvider.
type OAuthProvider interface {
	AuthURL(state, nonce, redirectTo string) string
	Exchange(ctx context.Context, code, nonce, redirectTo string) (*auth.ExternalIdentity, error)
}

// Mailer delivers magic links.
type Mailer interface {
	SendMagicLink(ctx context.Context, to, link string, expiresIn time.Duration) error
}

// LogMailer writes magic links to the log instead of sending mail. It is
// what development and tests run with.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendMagicLink(ctx context.Context, to, link string, expiresIn time.Duration) error {
	m.Logger.InfoContext(ctx, "magic link issued",
		slog.String("email", to),
		slog.String("link", link),
		slog.Duration("expiresIn", expiresIn),
	)
	return nil
}

// Options tune a Hub. Zero values fall back to the defaults below.
type Options struct {
	SessionTTL time.Duration // default 7 days
	OTPTTL     time.Duration // default 15 minutes
	// OTPInterval and OTPBurst bound how often one email address may
	// request a code: OTPBurst at once, then one per OTPInterval.
	OTPInterval time.Duration // default 1 minute
	OTPBurst    int           // default 3
}

func (o *Options) withDefaults() {
	if o.SessionTTL <= 0 {
		o.SessionTTL = 7 * 24 * time.Hour
	}
	if o.OTPTTL <= 0 {
		o.OTPTTL = 15 * time.Minute
	}
	if o.OTPInterval <= 0 {
		o.OTPInterval = time.Minute
	}
	if o.OTPBurst <= 0 {
		o.OTPBurst = 3
	}
}

// Deps are the collaborators a Hub needs. Google may be nil, which disables
// Google sign-in.
type Deps struct {
	Users    repository.UserRepository
	Sessions repository.SessionRepository
	Owners   repository.OwnershipRepository
	Tokens   *auth.TokenService
	Codes    *auth.CodeHasher
	Google   OAuthProvider
	Mailer   Mailer
	Logger   *slog.Logger
}

// Hub is the server-wide half of the backend.
type Hub struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	owners   repository.OwnershipRepository
	tokens   *auth.TokenService
	codes    *auth.CodeHasher
	google   OAuthProvider
	mailer   Mailer
	logger   *slog.Logger
	opts     Options

	bus *bus

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHub(deps Deps, opts Options) *Hub {
	opts.withDefaults()
	if deps.Mailer == nil {
		deps.Mailer = LogMailer{Logger: deps.Logger}
	}
	return &Hub{
		users:    deps.Users,
		sessions: deps.Sessions,
		owners:   deps.Owners,
		tokens:   deps.Tokens,
		codes:    deps.Codes,
		google:   deps.Google,
		mailer:   deps.Mailer,
		logger:   deps.Logger,
		opts:     opts,
		bus:      newBus(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Client binds a browser's store to the hub. A signed device id is created
// in the store on first use.
func (h *Hub) Client(store kv.Store) *Client {
	return newClient(h, store, false)
}

// Follower is a Client that adopts every session announced on its device,
// so it tracks sign-ins made by the browser's other requests. Events are
// applied on the publisher's goroutine, which is why the store must be a
// MemoryStore owned by a long-lived connection.
func (h *Hub) Follower(store *kv.MemoryStore) *Client {
	return newClient(h, store, true)
}

// GoogleEnabled reports whether Google sign-in is configured.
func (h *Hub) GoogleEnabled() bool {
	return h.google != nil
}

// allowOTP spends one token from the email's limiter.
func (h *Hub) allowOTP(email string) bool {
	h.limitMu.Lock()
	defer h.limitMu.Unlock()

	l, ok := h.limiters[email]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.opts.OTPInterval), h.opts.OTPBurst)
		h.limiters[email] = l
	}
	return l.Allow()
}

// Purge deletes expired sessions and codes and forgets idle rate limiters.
func (h *Hub) Purge(ctx context.Context) error {
	n, err := h.sessions.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("backend: purging sessions: %w", err)
	}

	h.limitMu.Lock()
	for email, l := range h.limiters {
		if l.Tokens() >= float64(h.opts.OTPBurst) {
			delete(h.limiters, email)
		}
	}
	h.limitMu.Unlock()

	if n > 0 {
		h.logger.InfoContext(ctx, "expired sessions purged", slog.Int64("count", n))
	}
	return nil
}

// RunJanitor calls Purge every interval until ctx is done.
func (h *Hub) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Purge(ctx); err != nil {
				h.logger.ErrorContext(ctx, "janitor run failed", slog.String("error", err.Error()))
			}
		}
	}
}
