// Package authstate keeps the current auth status and user profile for one
// browser and re-derives them whenever the backend reports a change.
//
// Status starts as loading. Once the first session check completes it is
// always exactly one of none, anonymous or authenticated, and it reflects
// the most recently started session application, not the one that happened
// to finish last.
package authstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/latest"
	"github.com/akruel/list-flix/internal/model"
)

// Status is the coarse auth state routes react to.
type Status string

const (
	StatusLoading       Status = "loading"
	StatusNone          Status = "none"
	StatusAnonymous     Status = "anonymous"
	StatusAuthenticated Status = "authenticated"
)

// State is a snapshot of the provider.
type State struct {
	Status Status             `json:"status"`
	User   *model.UserProfile `json:"user"`
}

// Sessions is the part of session.Service the provider uses.
type Sessions interface {
	GetUserProfile(ctx context.Context) (*model.UserProfile, error)
	SignInWithGoogle(ctx context.Context) (string, error)
	SignInWithOtp(ctx context.Context, email string) error
	SignInAnonymously(ctx context.Context) (string, error)
	SignOutToGuest(ctx context.Context) (string, error)
	SignOutFully(ctx context.Context) error
}

// Events is the part of backend.Auth the provider uses.
type Events interface {
	GetSession(ctx context.Context) (*backend.Session, error)
	OnAuthStateChange(fn func(backend.AuthChange)) (unsubscribe func())
}

type Provider struct {
	sessions Sessions
	events   Events
	logger   *slog.Logger

	seq latest.Coordinator

	mu          sync.Mutex
	state       State
	mounted     bool
	active      bool
	unsubscribe func()
	listeners   map[uint64]func(State)
	nextID      uint64
	version     uint64
	ready       chan struct{}
	inflight    sync.WaitGroup

	notifyMu  sync.Mutex
	delivered uint64 // guarded by notifyMu
}

func New(sessions Sessions, events Events, logger *slog.Logger) *Provider {
	return &Provider{
		sessions:  sessions,
		events:    events,
		logger:    logger,
		state:     State{Status: StatusLoading},
		listeners: make(map[uint64]func(State)),
		ready:     make(chan struct{}),
	}
}

// =========================================================================
// LIFECYCLE
// =========================================================================

// Mount fetches the current session once and subscribes to auth changes.
// Both run in the background; use Wait to block until the status is known.
// Mounting twice, or after Unmount, does nothing.
func (p *Provider) Mount(ctx context.Context) {
	p.mu.Lock()
	if p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = true
	p.active = true
	p.mu.Unlock()

	p.spawn(func() {
		sess, err := p.events.GetSession(ctx)
		if !p.isActive() {
			return
		}
		if err != nil {
			p.logger.WarnContext(ctx, "initial session check failed", slog.String("error", err.Error()))
			sess = nil
		}
		p.applySession(ctx, sess)
	})

	unsubscribe := p.events.OnAuthStateChange(func(change backend.AuthChange) {
		p.spawn(func() { p.applySession(ctx, change.Session) })
	})

	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		unsubscribe()
		return
	}
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
}

// Unmount stops listening for auth changes and waits for work already in
// flight. A session fetch still outstanding at this point is discarded when
// it returns.
func (p *Provider) Unmount() {
	p.mu.Lock()
	p.active = false
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	p.inflight.Wait()
}

// Wait blocks until the status has left loading or ctx is done.
func (p *Provider) Wait(ctx context.Context) (State, error) {
	select {
	case <-p.ready:
		return p.State(), nil
	case <-ctx.Done():
		return p.State(), ctx.Err()
	}
}

// spawn runs fn on a goroutine tracked by Unmount. Nothing is started once
// the provider is inactive.
func (p *Provider) spawn(fn func()) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.inflight.Done()
		fn()
	}()
}

func (p *Provider) isActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// =========================================================================
// STATE
// =========================================================================

// State returns the current snapshot.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe calls fn after every state change until unsubscribe is called.
// Listeners are called one at a time and never see an older state after a
// newer one; fn must not call back into the provider's actions.
func (p *Provider) Subscribe(fn func(State)) (unsubscribe func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// applySession derives the state from sess. The result is dropped when
// another application started after this one, even if that one finished
// first.
func (p *Provider) applySession(ctx context.Context, sess *backend.Session) {
	p.mu.Lock()
	ticket := p.seq.Begin()
	p.mu.Unlock()

	if sess == nil {
		p.commit(ticket, nil)
		return
	}

	profile, err := p.sessions.GetUserProfile(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "profile fetch failed", slog.String("error", err.Error()))
		profile = nil
	}
	p.commit(ticket, profile)
}

func (p *Provider) commit(ticket latest.Ticket, profile *model.UserProfile) {
	p.mu.Lock()
	if !p.seq.IsLatest(ticket) {
		p.mu.Unlock()
		return
	}
	p.setLocked(profile)
}

// RefreshProfile re-reads the profile and applies it unconditionally. Call
// it after an action that is known to have changed the session.
func (p *Provider) RefreshProfile(ctx context.Context) error {
	profile, err := p.sessions.GetUserProfile(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.setLocked(profile)
	return nil
}

// setLocked stores the state derived from profile, releases p.mu and then
// notifies listeners.
func (p *Provider) setLocked(profile *model.UserProfile) {
	next := State{Status: StatusNone}
	if profile != nil {
		next.User = profile
		next.Status = StatusAuthenticated
		if profile.IsAnonymous {
			next.Status = StatusAnonymous
		}
	}
	p.state = next
	p.version++

	select {
	case <-p.ready:
	default:
		close(p.ready)
	}
	p.mu.Unlock()

	p.notify()
}

// notify delivers the current state. A caller that lost the race to a newer
// commit finds that version already delivered and returns.
func (p *Provider) notify() {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	st, version := p.state, p.version
	fns := make([]func(State), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	if version <= p.delivered {
		return
	}
	p.delivered = version

	for _, fn := range fns {
		fn(st)
	}
}

// =========================================================================
// ACTIONS
// =========================================================================

// SignInWithGoogle returns the URL to send the browser to.
func (p *Provider) SignInWithGoogle(ctx context.Context) (string, error) {
	return p.sessions.SignInWithGoogle(ctx)
}

func (p *Provider) SignInWithOtp(ctx context.Context, email string) error {
	return p.sessions.SignInWithOtp(ctx, email)
}

// ContinueAsGuest signs in anonymously, reusing an existing anonymous
// session.
func (p *Provider) ContinueAsGuest(ctx context.Context) error {
	_, err := p.sessions.SignInAnonymously(ctx)
	return err
}

func (p *Provider) SignOutToGuest(ctx context.Context) error {
	_, err := p.sessions.SignOutToGuest(ctx)
	return err
}

func (p *Provider) SignOutFully(ctx context.Context) error {
	return p.sessions.SignOutFully(ctx)
}
