/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the pull request processor: a GitHub App that
// validates commit messages against Redmine and keeps tracker issues in
// sync with PR activity.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/ShimShtein/prprocessor/policy"
	"github.com/ShimShtein/prprocessor/prreconciler"
	"github.com/ShimShtein/prprocessor/tracker/redmine"
	"github.com/ShimShtein/prprocessor/webhook"
)

type config struct {
	Port        int `env:"PORT,default=8080"`
	MetricsPort int `env:"METRICS_PORT,default=2112"`

	// GitHub App credentials. For local development a personal access
	// token can be used instead.
	GitHubAppID   int64  `env:"GITHUB_APP_ID"`
	GitHubKeyPath string `env:"GITHUB_PRIVATE_KEY_PATH"`
	GitHubToken   string `env:"GITHUB_TOKEN"`
	WebhookSecret string `env:"GITHUB_WEBHOOK_SECRET,required"`

	RedmineURL    string `env:"REDMINE_URL,required"`
	RedmineAPIKey string `env:"REDMINE_API_KEY"`

	ReposPath string `env:"REPOS_PATH,default=config/repos.yaml"`
	UsersPath string `env:"USERS_PATH,default=config/users.yaml"`
	CheckName string `env:"CHECK_NAME"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	policies, err := policy.LoadStore(cfg.ReposPath)
	if err != nil {
		clog.FatalContextf(ctx, "loading repository policies: %v", err)
	}
	users, err := policy.LoadUsers(cfg.UsersPath)
	if err != nil {
		clog.FatalContextf(ctx, "loading user mapping: %v", err)
	}

	tracker, err := redmine.New(cfg.RedmineURL, cfg.RedmineAPIKey)
	if err != nil {
		clog.FatalContextf(ctx, "creating Redmine client: %v", err)
	}

	var opts []prreconciler.Option
	if cfg.CheckName != "" {
		opts = append(opts, prreconciler.WithCheckName(cfg.CheckName))
	}
	reconciler := prreconciler.New(policies, tracker, users, opts...)

	clients, err := newClients(ctx, cfg)
	if err != nil {
		clog.FatalContextf(ctx, "configuring GitHub authentication: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /webhook", webhook.NewHandler([]byte(cfg.WebhookSecret), clients, reconciler))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(serve(ctx, &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}))
	eg.Go(serve(ctx, &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}))

	clog.InfoContextf(ctx, "Listening on port %d (metrics on %d) as check %q",
		cfg.Port, cfg.MetricsPort, reconciler.CheckName())
	if err := eg.Wait(); err != nil {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

// newClients picks the GitHub authentication mode: App credentials in
// production, a static token for local development.
func newClients(ctx context.Context, cfg config) (webhook.ClientSource, error) {
	if cfg.GitHubToken != "" {
		clog.InfoContext(ctx, "Using token authentication")
		return webhook.NewTokenClients(ctx, cfg.GitHubToken), nil
	}
	if cfg.GitHubAppID == 0 || cfg.GitHubKeyPath == "" {
		return nil, errors.New("either GITHUB_TOKEN or GITHUB_APP_ID and GITHUB_PRIVATE_KEY_PATH must be set")
	}
	clog.InfoContextf(ctx, "Using GitHub App authentication (app %d)", cfg.GitHubAppID)
	return webhook.NewAppClientCache(cfg.GitHubAppID, cfg.GitHubKeyPath)
}

// serve runs one HTTP server and shuts it down when ctx ends.
func serve(ctx context.Context, srv *http.Server) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	}
}
