package main

import (
	"fmt"
	"time"

	"github.com/torosent/courier/internal/auth"
	"github.com/torosent/courier/internal/config"
	"github.com/torosent/courier/internal/httpclient"
	"github.com/torosent/courier/internal/oauth"
)

const defaultAuthRefreshLeeway = 30 * time.Second

// buildAuthenticator returns the connector's authenticator, or nil when the
// config names none. OAuth tokens are fetched through conn itself.
func buildAuthenticator(authCfg config.AuthConfig, conn httpclient.Connector) (auth.Authenticator, error) {
	switch authCfg.Type {
	case config.AuthTypeNone:
		return nil, nil
	case config.AuthTypeToken:
		if authCfg.Prefix == "" {
			return auth.NewToken(authCfg.Token), nil
		}
		return auth.NewToken(authCfg.Token, authCfg.Prefix), nil
	case config.AuthTypeBasic:
		return auth.NewBasic(authCfg.Username, authCfg.Password), nil
	case config.AuthTypeDigest:
		return auth.NewDigest(authCfg.Username, authCfg.Password), nil
	case config.AuthTypeOAuth2ClientCredentials:
		return buildTokenSource(authCfg, conn), nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", authCfg.Type)
	}
}

func buildTokenSource(authCfg config.AuthConfig, conn httpclient.Connector) *oauth.TokenSource {
	oauthCfg := oauth.NewConfig().
		SetClientID(authCfg.ClientID).
		SetClientSecret(authCfg.ClientSecret)
	if authCfg.TokenURL != "" {
		oauthCfg.SetTokenEndpoint(authCfg.TokenURL)
	}

	grant := oauth.NewClientCredentials(conn, oauthCfg)
	grant.BasicAuth = authCfg.BasicAuth

	refreshWindow := authCfg.RefreshBeforeExpiry
	if refreshWindow <= 0 {
		refreshWindow = defaultAuthRefreshLeeway
	}

	var opts []oauth.Option
	if authCfg.ScopeSeparator != "" {
		opts = append(opts, oauth.WithScopeSeparator(authCfg.ScopeSeparator))
	}
	return oauth.NewTokenSource(grant, authCfg.Scopes, refreshWindow, opts...)
}
