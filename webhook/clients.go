/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

// ClientSource hands out a GitHub client scoped to the installation an
// event arrived from.
type ClientSource interface {
	For(installationID int64) (*github.Client, error)
}

// AppClientCache mints installation-scoped clients from GitHub App
// credentials and caches them per installation.
type AppClientCache struct {
	base *ghinstallation.AppsTransport

	mu      sync.Mutex
	clients map[int64]*github.Client
}

// NewAppClientCache builds a cache from an App id and its private key file.
func NewAppClientCache(appID int64, privateKeyPath string) (*AppClientCache, error) {
	base, err := ghinstallation.NewAppsTransportKeyFromFile(http.DefaultTransport, appID, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading GitHub App key: %w", err)
	}
	return &AppClientCache{
		base:    base,
		clients: map[int64]*github.Client{},
	}, nil
}

// For returns the client for an installation, creating it on first use.
func (c *AppClientCache) For(installationID int64) (*github.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gh, ok := c.clients[installationID]; ok {
		return gh, nil
	}
	transport := ghinstallation.NewFromAppsTransport(c.base, installationID)
	gh := github.NewClient(&http.Client{Transport: transport})
	c.clients[installationID] = gh
	return gh, nil
}

// tokenClients serves one token-authenticated client for every
// installation. Used for local development with a personal access token.
type tokenClients struct {
	gh *github.Client
}

// NewTokenClients builds a ClientSource around a static OAuth token.
func NewTokenClients(ctx context.Context, token string) ClientSource {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &tokenClients{gh: github.NewClient(oauth2.NewClient(ctx, src))}
}

func (t *tokenClients) For(int64) (*github.Client, error) {
	return t.gh, nil
}
