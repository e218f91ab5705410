// Package svcauth signs outbound service-to-service requests.
package svcauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"notifications.app/engine/core/config"
)

type Authenticator interface {
	Apply(ctx context.Context, req *http.Request) error
}

// PSK sends a pre-shared key and the caller's client id as headers.
type PSK struct {
	KeyHeader      string
	ClientIDHeader string
	Key            string
	ClientID       string
}

func (p PSK) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set(p.KeyHeader, p.Key)
	if p.ClientIDHeader != "" && p.ClientID != "" {
		req.Header.Set(p.ClientIDHeader, p.ClientID)
	}
	return nil
}

// OIDC attaches a bearer token from the client-credentials flow. Tokens are
// cached and refreshed by the token source.
type OIDC struct {
	source oauth2.TokenSource
}

func NewOIDC(cfg config.OIDCConfig) *OIDC {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &OIDC{source: oauth2.ReuseTokenSource(nil, cc.TokenSource(context.Background()))}
}

func (o *OIDC) Apply(_ context.Context, req *http.Request) error {
	token, err := o.source.Token()
	if err != nil {
		return fmt.Errorf("fetching oidc token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

// None leaves requests untouched, for local development.
type None struct{}

func (None) Apply(context.Context, *http.Request) error { return nil }

// FromConfig prefers OIDC when it is configured, then the PSK.
func FromConfig(oidc config.OIDCConfig, psk PSK) Authenticator {
	if oidc.Enabled() {
		return NewOIDC(oidc)
	}
	if psk.Key != "" {
		return psk
	}
	return None{}
}
