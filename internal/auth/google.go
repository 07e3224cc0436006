package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleIssuer = "https://accounts.google.com"

// ExternalIdentity is what an OAuth provider tells us about the person who
// just signed in.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// GoogleProvider runs the OpenID Connect authorization code flow against
// Google and verifies the returned ID token.
type GoogleProvider struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleProvider discovers Google's OIDC endpoints, so it makes a network
// call and should run once at startup.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, callbackURL string) (*GoogleProvider, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("auth: discovering google oidc provider: %w", err)
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthURL is where the browser goes to pick a Google account. state and
// nonce are echoed back and checked in Exchange. A non-empty redirectTo
// replaces the configured callback URL and must be passed to Exchange too.
func (p *GoogleProvider) AuthURL(state, nonce, redirectTo string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oidc.Nonce(nonce),
	}
	if redirectTo != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectTo))
	}
	return p.config.AuthCodeURL(state, opts...)
}

// Exchange trades the authorization code for tokens and returns the verified
// identity from the ID token.
func (p *GoogleProvider) Exchange(ctx context.Context, code, nonce, redirectTo string) (*ExternalIdentity, error) {
	var opts []oauth2.AuthCodeOption
	if redirectTo != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectTo))
	}

	token, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("auth: no id_token in google response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("auth: verifying id_token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("auth: id_token nonce mismatch")
	}

	var c struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("auth: decoding id_token claims: %w", err)
	}
	if c.Email != "" && !c.EmailVerified {
		return nil, errors.New("auth: google email is not verified")
	}

	return &ExternalIdentity{
		Provider: "google",
		Subject:  idToken.Subject,
		Email:    c.Email,
		Name:     c.Name,
		Picture:  c.Picture,
	}, nil
}
