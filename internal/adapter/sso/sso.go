// Package sso verifies credentials against an OpenID Connect provider using
// the resource owner password grant, and maps the verified email to a local
// user.
package sso

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"liveauth/internal/app"
	"liveauth/internal/domain"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Config configures the provider.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Verifier implements domain.CredentialVerifier against an OIDC provider.
type Verifier struct {
	oauth    *oauth2.Config
	provider *oidc.Provider
	idTokens *oidc.IDTokenVerifier
	users    domain.UserRepository
	log      *zap.Logger
}

var _ domain.CredentialVerifier = (*Verifier)(nil)

// New discovers the provider at cfg.Issuer.
func New(ctx context.Context, cfg Config, users domain.UserRepository, log *zap.Logger) (*Verifier, error) {
	if log == nil {
		log = zap.NewNop()
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", cfg.Issuer, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	return &Verifier{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		provider: provider,
		idTokens: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		users:    users,
		log:      log,
	}, nil
}

type claims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Sub           string `json:"sub"`
}

// Verify exchanges the credentials for an ID token and returns the local
// user id for its email. Users unknown locally are created without a
// password, so they can only sign in through the provider.
func (v *Verifier) Verify(ctx context.Context, email, password string) (int64, error) {
	token, err := v.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			v.log.Info("provider rejected credentials", zap.String("error_code", re.ErrorCode))
			return 0, app.ErrInvalidCredentials
		}
		return 0, fmt.Errorf("password grant: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return 0, errors.New("password grant: no id_token")
	}
	idToken, err := v.idTokens.Verify(ctx, rawIDToken)
	if err != nil {
		return 0, fmt.Errorf("verify id token: %w", err)
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		return 0, fmt.Errorf("parse claims: %w", err)
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Email == "" || (c.EmailVerified != nil && !*c.EmailVerified) {
		return 0, app.ErrInvalidCredentials
	}

	user, err := v.users.GetByEmail(ctx, c.Email)
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		user, err = v.users.Create(ctx, c.Email, "", c.Name)
		if err != nil {
			return 0, fmt.Errorf("provision user: %w", err)
		}
		v.log.Info("provisioned user", zap.String("email", c.Email), zap.String("sub", c.Sub))
	}
	if !user.Active {
		return 0, app.ErrInvalidCredentials
	}
	return user.ID, nil
}
