// Package handler contains the HTTP handlers of list-flix.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (query params, form, JSON body)
//  2. Call the auth core or a service
//  3. Write the HTTP response (status code, headers, body)
//
// Handlers should NOT contain business logic. They are the glue between HTTP
// and the request Scope (see internal/middleware).
package handler

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/akruel/list-flix/internal/authstate"
	"github.com/akruel/list-flix/internal/middleware"
	"github.com/akruel/list-flix/internal/model"
	"github.com/akruel/list-flix/internal/notify"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names. Each one is parsed together with base.html.
const (
	pageLogin     = "login.html"
	pageLoader    = "loader.html"
	pageMigration = "migration.html"
	pageError     = "error.html"
	pageHome      = "home.html"
	pageJoin      = "join.html"
)

// Pages renders the server-side HTML pages.
//
// Templates are parsed once at startup. Every page shares base.html, which
// defines the layout with a {{template "content" .}} placeholder, so each
// page gets its own template set (two pages defining "content" cannot live
// in one set).
type Pages struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

var _ middleware.Pages = (*Pages)(nil)

// NewPages parses the embedded templates.
func NewPages(logger *slog.Logger) (*Pages, error) {
	names := []string{pageLogin, pageLoader, pageMigration, pageError, pageHome, pageJoin}

	p := &Pages{templates: make(map[string]*template.Template, len(names)), logger: logger}
	for _, name := range names {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

// pageData is what every template receives. Data holds the page-specific part.
type pageData struct {
	Title  string
	Flash  *notify.Message
	Status authstate.Status
	User   *model.UserProfile
	Data   any
}

// render executes the "base" template of page. The pending flash message,
// if any, is shown and cleared.
func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	tmpl, ok := p.templates[page]
	if !ok {
		p.logger.Error("unknown page", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	pd := pageData{Title: title + " · list-flix", Data: data}
	if sc, ok := middleware.ScopeFrom(r.Context()); ok {
		if msg, ok := notify.NewFlashNotifier(sc.Store).Pop(); ok {
			pd.Flash = &msg
		}
		st := sc.Auth.State()
		pd.Status, pd.User = st.Status, st.User
	}

	// Cookies (the popped flash) must be set before the status line goes out.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", pd); err != nil {
		p.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}

// Loader is the blocking screen shown while the session is still loading.
// It reloads itself.
func (p *Pages) Loader(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusServiceUnavailable, pageLoader, "Loading", nil)
}

// MigrationChoice asks the user whether to bring their guest data along.
func (p *Pages) MigrationChoice(w http.ResponseWriter, r *http.Request, next string) {
	p.render(w, r, http.StatusOK, pageMigration, "Keep your data?", map[string]string{"Next": next})
}

// Error shows a message with a link back to the login page.
func (p *Pages) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	p.render(w, r, status, pageError, "Something went wrong", map[string]string{"Message": message})
}

type loginPage struct {
	GoogleEnabled bool
	OTPSentTo     string
	Error         string
}

func (p *Pages) Login(w http.ResponseWriter, r *http.Request, status int, data loginPage) {
	p.render(w, r, status, pageLogin, "Sign in", data)
}

type homePage struct {
	Lists []model.List
}

func (p *Pages) Home(w http.ResponseWriter, r *http.Request, data homePage) {
	p.render(w, r, http.StatusOK, pageHome, "Your lists", data)
}

type joinPage struct {
	ListID string
	Role   model.Role
	Joined bool
}

func (p *Pages) Join(w http.ResponseWriter, r *http.Request, data joinPage) {
	p.render(w, r, http.StatusOK, pageJoin, "Join list", data)
}
