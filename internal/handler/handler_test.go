package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/authstate"
	"github.com/akruel/list-flix/internal/backend"
	"github.com/akruel/list-flix/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", apperror.ValidationFailed("name", "list name is required"), http.StatusBadRequest, "validation_error"},
		{"wrapped not found", fmt.Errorf("loading: %w", apperror.NotFound("list", "x")), http.StatusNotFound, "not_found"},
		{"forbidden", apperror.Forbidden("viewers cannot edit"), http.StatusForbidden, "forbidden"},
		{"unauthorized", apperror.Unauthorized("sign in"), http.StatusUnauthorized, "unauthorized"},
		{"rate limited", fmt.Errorf("otp: %w", backend.ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{"provider disabled", backend.ErrProviderDisabled, http.StatusNotImplemented, "provider_disabled"},
		{"invalid otp", backend.ErrInvalidOTP, http.StatusBadRequest, "invalid_login"},
		{"unknown", fmt.Errorf("sqlite: disk I/O error at /var/db"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Error)
			assert.NotContains(t, resp.Message, "/var/db", "internal details never leak")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"Movie night"}`, false},
		{"unknown field", `{"name":"x","owner":"me"}`, true},
		{"malformed", `{"name":`, true},
		{"too large", `{"name":"` + strings.Repeat("a", 1<<20) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/lists", strings.NewReader(tt.body))
			var dst createListRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Movie night", dst.Name)
		})
	}
}

func TestIsLocalPath(t *testing.T) {
	tests := map[string]bool{
		"/":                  true,
		"/lists/abc/join":    true,
		"":                   false,
		"//evil.example":     false,
		`/\evil.example`:     false,
		"https://evil.test/": false,
		"lists/abc":          false,
	}
	for in, want := range tests {
		assert.Equal(t, want, isLocalPath(in), in)
	}
}

func TestPagesRender(t *testing.T) {
	pages, err := NewPages(testLogger())
	require.NoError(t, err)

	tests := []struct {
		name       string
		render     func(w http.ResponseWriter, r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{"loader", pages.Loader, http.StatusServiceUnavailable, `http-equiv="refresh"`},
		{"migration", func(w http.ResponseWriter, r *http.Request) {
			pages.MigrationChoice(w, r, "/lists/abc/join")
		}, http.StatusOK, `value="/lists/abc/join"`},
		{"error", func(w http.ResponseWriter, r *http.Request) {
			pages.Error(w, r, http.StatusBadRequest, "The link has expired.")
		}, http.StatusBadRequest, "The link has expired."},
		{"login with otp sent", func(w http.ResponseWriter, r *http.Request) {
			pages.Login(w, r, http.StatusOK, loginPage{OTPSentTo: "ana@example.com"})
		}, http.StatusOK, "ana@example.com"},
		{"home", func(w http.ResponseWriter, r *http.Request) {
			pages.Home(w, r, homePage{Lists: []model.List{{ID: "l1", Name: "<b>Movie night</b>", Role: model.RoleOwner}}})
		}, http.StatusOK, "&lt;b&gt;Movie night&lt;/b&gt;"},
		{"join", func(w http.ResponseWriter, r *http.Request) {
			pages.Join(w, r, joinPage{ListID: "l1", Role: model.RoleEditor})
		}, http.StatusOK, "/lists/l1/join?role=editor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.render(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestGoogleButtonFollowsConfiguration(t *testing.T) {
	pages, err := NewPages(testLogger())
	require.NoError(t, err)

	for _, enabled := range []bool{true, false} {
		rec := httptest.NewRecorder()
		pages.Login(rec, httptest.NewRequest(http.MethodGet, "/auth", nil), http.StatusOK, loginPage{GoogleEnabled: enabled})
		assert.Equal(t, enabled, strings.Contains(rec.Body.String(), "/auth/google"))
	}
}

func TestSameState(t *testing.T) {
	ana := &model.UserProfile{ID: "u1", DisplayName: "Ana", Provider: model.AuthProviderEmail}
	anaCopy := *ana
	renamed := *ana
	renamed.DisplayName = "Ana S."

	assert.True(t, sameState(authstate.State{Status: authstate.StatusNone}, authstate.State{Status: authstate.StatusNone}))
	assert.True(t, sameState(
		authstate.State{Status: authstate.StatusAuthenticated, User: ana},
		authstate.State{Status: authstate.StatusAuthenticated, User: &anaCopy},
	))
	assert.False(t, sameState(
		authstate.State{Status: authstate.StatusAuthenticated, User: ana},
		authstate.State{Status: authstate.StatusAuthenticated, User: &renamed},
	))
	assert.False(t, sameState(
		authstate.State{Status: authstate.StatusLoading},
		authstate.State{Status: authstate.StatusNone},
	))
}

func TestStateFeedKeepsNewest(t *testing.T) {
	feed := newStateFeed()
	feed.push(authstate.State{Status: authstate.StatusLoading})
	feed.push(authstate.State{Status: authstate.StatusAnonymous})

	<-feed.ready
	assert.Equal(t, authstate.StatusAnonymous, feed.take().Status)

	select {
	case <-feed.ready:
		t.Fatal("two pushes signal once")
	default:
	}
}
