package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/bcnelson/hackathon-manager/internal/validation"
)

// OIDCProvider wraps the OIDC provider and OAuth2 config.
type OIDCProvider struct {
	provider       *oidc.Provider
	oauth2Config   *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	allowedDomains []string
}

// OIDCClaims represents the claims from an ID token.
type OIDCClaims struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name"`
	Groups        []string `json:"groups"`
}

// NewOIDCProvider creates a new OIDC provider with discovery.
func NewOIDCProvider(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string, scopes, allowedDomains []string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	return &OIDCProvider{
		provider:       provider,
		oauth2Config:   oauth2Config,
		verifier:       verifier,
		allowedDomains: allowedDomains,
	}, nil
}

// AuthCodeURL generates an authorization URL with state and nonce.
func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	return p.oauth2Config.AuthCodeURL(
		state,
		oidc.Nonce(nonce),
	)
}

// Exchange trades an authorization code for an ID token and returns its
// verified claims.
func (p *OIDCProvider) Exchange(ctx context.Context, code, nonce string) (*OIDCClaims, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	// Verify nonce
	if idToken.Nonce != nonce {
		return nil, fmt.Errorf("nonce mismatch")
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return &claims, nil
}

// ValidateClaims checks that the claims carry a usable e-mail address from
// an allowed domain.
func (p *OIDCProvider) ValidateClaims(claims *OIDCClaims) error {
	return ValidateEmail(claims.Email, p.allowedDomains)
}

// ValidateEmail checks an e-mail address against an optional domain allow list.
func ValidateEmail(email string, allowedDomains []string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}
	if len(allowedDomains) == 0 {
		return nil
	}

	domain := validation.EmailDomain(email)
	allowed := slices.ContainsFunc(allowedDomains, func(d string) bool {
		return strings.EqualFold(strings.TrimSpace(d), domain)
	})
	if !allowed {
		return fmt.Errorf("email domain %s is not allowed", domain)
	}
	return nil
}

// GenerateSecureString generates a cryptographically secure random string.
func GenerateSecureString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
