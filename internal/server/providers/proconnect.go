package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/gristips/gristips/internal/logging"
)

const oidcProviderRequestTimeout = time.Second * 10

// DefaultScopes are the scopes requested from ProConnect.
var DefaultScopes = []string{
	oidc.ScopeOpenID,
	"email",
	"given_name",
	"usual_name",
	"siret",
	"idp_id",
	"uid",
	"belonging_population",
}

var (
	ErrInvalidClaims = errors.New("invalid identity claims")
	ErrNonceMismatch = errors.New("id token nonce does not match")
)

type ProConnectOptions struct {
	// Issuer is the URL of the ProConnect instance, used for discovery.
	Issuer       string
	ClientID     string
	ClientSecret string
	// RedirectURL is the callback registered with ProConnect.
	RedirectURL           string
	PostLogoutRedirectURL string
	// Scopes defaults to DefaultScopes.
	Scopes []string
	// PublicIdentityProviders are the idp_id of identity providers whose
	// users are all public agents.
	PublicIdentityProviders []string

	HTTPClient *http.Client
}

// Identity is the result of a successful login.
type Identity struct {
	Claims
	// IDToken is the raw ID token, kept as a hint for the end session
	// request.
	IDToken string
	// PublicAgent is the result of Claims.IsPublicAgent with the configured
	// public identity providers.
	PublicAgent bool
}

// ProConnect is an OpenID Connect client for ProConnect. Discovery happens on
// first use and is cached for the life of the client. Signing keys are
// fetched from the JWKS endpoint, and fetched again when a token is signed by
// an unknown key.
type ProConnect struct {
	options ProConnectOptions

	mu        sync.Mutex
	discovery *discovery
}

type discovery struct {
	provider           *oidc.Provider
	config             *oauth2.Config
	verifier           *oidc.IDTokenVerifier
	endSessionEndpoint string
}

func NewProConnect(options ProConnectOptions) *ProConnect {
	if len(options.Scopes) == 0 {
		options.Scopes = DefaultScopes
	}
	return &ProConnect{options: options}
}

func (p *ProConnect) clientContext(ctx context.Context) context.Context {
	if p.options.HTTPClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.options.HTTPClient)
}

// discover fetches the provider metadata. A failed discovery is not cached,
// so the next call tries again.
func (p *ProConnect) discover(ctx context.Context) (*discovery, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discovery != nil {
		return p.discovery, nil
	}

	ctx, cancel := context.WithTimeout(p.clientContext(ctx), oidcProviderRequestTimeout)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, p.options.Issuer)
	if err != nil {
		return nil, fmt.Errorf("get provider openid info: %w", err)
	}

	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("could not parse provider claims: %w", err)
	}

	p.discovery = &discovery{
		provider: provider,
		config: &oauth2.Config{
			ClientID:     p.options.ClientID,
			ClientSecret: p.options.ClientSecret,
			RedirectURL:  p.options.RedirectURL,
			Scopes:       p.options.Scopes,
			Endpoint:     provider.Endpoint(),
		},
		verifier:           provider.Verifier(&oidc.Config{ClientID: p.options.ClientID}),
		endSessionEndpoint: claims.EndSessionEndpoint,
	}

	logging.Debugf("discovered openid provider %s", p.options.Issuer)
	return p.discovery, nil
}

// AuthCodeURL returns the URL of the ProConnect login page. state and nonce
// must be random values kept by the caller until the callback.
func (p *ProConnect) AuthCodeURL(ctx context.Context, state, nonce string) (string, error) {
	d, err := p.discover(ctx)
	if err != nil {
		return "", err
	}

	return d.config.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("acr_values", "eidas1"),
	), nil
}

// Exchange trades the authorization code received on the callback for the
// identity of the user. The ID token is verified against the provider keys
// and nonce, and the claims from the userinfo endpoint are validated before
// they are returned.
func (p *ProConnect) Exchange(ctx context.Context, code, nonce string) (*Identity, error) {
	d, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(p.clientContext(ctx), oidcProviderRequestTimeout)
	defer cancel()

	token, err := d.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("could not extract id_token from oauth2 token")
	}

	idToken, err := d.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("validate id token: %w", err)
	}

	if idToken.Nonce != nonce {
		return nil, ErrNonceMismatch
	}

	// userinfo responses may be signed JWTs, which go-oidc verifies with
	// the same key set as the ID token
	info, err := d.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("get user info: %w", err)
	}

	var raw json.RawMessage
	if err := info.Claims(&raw); err != nil {
		return nil, fmt.Errorf("user info claims: %w", err)
	}

	claims, err := ParseClaims(raw)
	if err != nil {
		logging.Warnf("rejected user info from %s: %s", p.options.Issuer, err)
		return nil, err
	}

	if claims.Subject != idToken.Subject {
		return nil, fmt.Errorf("%w: user info subject does not match the id token", ErrInvalidClaims)
	}

	return &Identity{
		Claims:      *claims,
		IDToken:     rawIDToken,
		PublicAgent: claims.IsPublicAgent(p.options.PublicIdentityProviders),
	}, nil
}

// EndSessionURL returns the URL that ends the session at ProConnect, or an
// empty string when the provider does not advertise an end session endpoint.
func (p *ProConnect) EndSessionURL(ctx context.Context, idTokenHint, state string) (string, error) {
	d, err := p.discover(ctx)
	if err != nil {
		return "", err
	}

	if d.endSessionEndpoint == "" {
		return "", nil
	}

	u, err := url.Parse(d.endSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid end session endpoint: %w", err)
	}

	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if state != "" {
		q.Set("state", state)
	}
	if p.options.PostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", p.options.PostLogoutRedirectURL)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
