package auth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func newTestGoogleProvider() *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:    "client-id",
			RedirectURL: "http://localhost:8080/auth/callback",
			Endpoint:    google.Endpoint,
			Scopes:      []string{"openid", "profile", "email"},
		},
	}
}

func TestGoogleAuthURL(t *testing.T) {
	p := newTestGoogleProvider()

	u, err := url.Parse(p.AuthURL("state-1", "nonce-1", ""))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "nonce-1", q.Get("nonce"))
	assert.Equal(t, "select_account", q.Get("prompt"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/auth/callback", q.Get("redirect_uri"))
}

func TestGoogleAuthURL_RedirectOverride(t *testing.T) {
	p := newTestGoogleProvider()

	u, err := url.Parse(p.AuthURL("s", "n", "https://flix.example/auth/callback"))
	require.NoError(t, err)
	assert.Equal(t, "https://flix.example/auth/callback", u.Query().Get("redirect_uri"))
}
