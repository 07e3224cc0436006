package kv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(map[string]string{"seeded": "yes"})

	v, ok := s.Get("seeded")
	assert.True(t, ok)
	assert.Equal(t, "yes", v)

	s.Set("migration_old_user_id", "anon-1")
	v, ok = s.Get("migration_old_user_id")
	assert.True(t, ok)
	assert.Equal(t, "anon-1", v)

	s.Remove("migration_old_user_id")
	_, ok = s.Get("migration_old_user_id")
	assert.False(t, ok)
}

func TestCookieStore_ReadsRequestCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "lf_auth_post_login_target", Value: "%2Flists%2Fabc%2Fjoin%3Frole%3Deditor"})
	w := httptest.NewRecorder()

	s, _ := NewCookieStore(w, r, CookieOptions{Prefix: "lf_"})

	v, ok := s.Get("auth_post_login_target")
	require.True(t, ok)
	assert.Equal(t, "/lists/abc/join?role=editor", v)
}

func TestCookieStore_OverlayShadowsRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "lf_access_token", Value: "old"})
	w := httptest.NewRecorder()

	s, cw := NewCookieStore(w, r, CookieOptions{Prefix: "lf_"})

	s.Set("flash", "hi")
	s.Set("access_token", "new")
	v, _ := s.Get("access_token")
	assert.Equal(t, "new", v)

	s.Remove("access_token")
	_, ok := s.Get("access_token")
	assert.False(t, ok, "removed key must not fall back to the request cookie")

	assert.Empty(t, w.Header().Values("Set-Cookie"), "nothing is written before the response starts")
	cw.WriteHeader(http.StatusNoContent)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2, "one cookie per key, with its final value")
	assert.Equal(t, "lf_flash", cookies[0].Name)
	assert.Equal(t, "hi", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, "lf_access_token", cookies[1].Name)
	assert.Equal(t, -1, cookies[1].MaxAge)
}

func TestCookieStore_CommitWithoutWrite(t *testing.T) {
	w := httptest.NewRecorder()
	s, _ := NewCookieStore(w, httptest.NewRequest(http.MethodGet, "/", nil), CookieOptions{Prefix: "lf_"})

	s.Set("device_id", "dev-1")
	s.Commit(w)
	s.Commit(w)
	assert.Len(t, w.Header().Values("Set-Cookie"), 1)
}

func TestCookieStore_WritesFromOtherGoroutines(t *testing.T) {
	w := httptest.NewRecorder()
	s, cw := NewCookieStore(w, httptest.NewRequest(http.MethodGet, "/", nil), CookieOptions{Prefix: "lf_"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set("access_token", "tok")
				s.Remove("access_token")
			}
		}()
	}
	for j := 0; j < 100; j++ {
		cw.Header().Set("X-Step", "handler")
	}
	cw.WriteHeader(http.StatusOK)
	wg.Wait()

	// Changes after the response started are not written.
	s.Set("late", "x")
	for _, c := range w.Result().Cookies() {
		assert.NotEqual(t, "lf_late", c.Name)
	}
}

func TestCookieStore_Snapshot(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "lf_device_id", Value: "dev-1"})
	r.AddCookie(&http.Cookie{Name: "lf_access_token", Value: "tok"})
	r.AddCookie(&http.Cookie{Name: "unrelated", Value: "x"})
	w := httptest.NewRecorder()

	s, _ := NewCookieStore(w, r, CookieOptions{Prefix: "lf_"})
	s.Remove("access_token")
	s.Set("flash", "hi")

	snap := s.Snapshot()
	v, ok := snap.Get("device_id")
	assert.True(t, ok)
	assert.Equal(t, "dev-1", v)
	_, ok = snap.Get("access_token")
	assert.False(t, ok)
	_, ok = snap.Get("unrelated")
	assert.False(t, ok)
	v, _ = snap.Get("flash")
	assert.Equal(t, "hi", v)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := NewMemoryStore(nil)
	got, ok := FromContext(WithStore(context.Background(), s))
	assert.True(t, ok)
	assert.Same(t, s, got)
}
