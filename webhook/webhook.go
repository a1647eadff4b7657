/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package webhook receives GitHub webhook deliveries and dispatches them
// to the pull request reconciler.
package webhook

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prprocessor_webhook_events_total",
		Help: "Webhook deliveries received, by event type and action.",
	}, []string{"event", "action"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prprocessor_webhook_failures_total",
		Help: "Webhook deliveries whose processing failed.",
	}, []string{"event"})
)

// Reconciler is the event-handling surface the webhook dispatches to.
type Reconciler interface {
	ReconcilePullRequest(ctx context.Context, gh *github.Client, owner, repo string, pr *github.PullRequest, existing *github.CheckRun) error
	ReconcileMerged(ctx context.Context, gh *github.Client, owner, repo string, pr *github.PullRequest) error
	ReconcileCheckRun(ctx context.Context, gh *github.Client, event *github.CheckRunEvent) error
	ReconcileCheckSuite(ctx context.Context, gh *github.Client, event *github.CheckSuiteEvent) error
}

// validatedActions are the pull_request actions that (re)run validation.
var validatedActions = map[string]bool{
	"opened":           true,
	"reopened":         true,
	"ready_for_review": true,
	"synchronize":      true,
}

// Handler verifies webhook signatures and dispatches deliveries
// asynchronously. GitHub expects a fast response; processing can involve
// several round trips to GitHub and Redmine.
type Handler struct {
	secret     []byte
	clients    ClientSource
	reconciler Reconciler
	timeout    time.Duration

	inflight sync.WaitGroup
}

// NewHandler constructs a Handler. secret is the webhook shared secret
// GitHub signs deliveries with.
func NewHandler(secret []byte, clients ClientSource, reconciler Reconciler) *Handler {
	return &Handler{
		secret:     secret,
		clients:    clients,
		reconciler: reconciler,
		timeout:    10 * time.Minute,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(r.Context())

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		log.Infof("Rejecting delivery with bad signature: %v", err)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	eventType := github.WebHookType(r)
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		log.Infof("Rejecting unparseable %s delivery: %v", eventType, err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	work := h.route(eventType, event)
	if work == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Detach from the request context so the response does not cancel the
	// processing.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer cancel()
		if err := work(ctx); err != nil {
			failuresTotal.WithLabelValues(eventType).Inc()
			clog.FromContext(ctx).Errorf("Processing %s delivery failed: %v", eventType, err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// route selects the reconciliation for one delivery, or nil when the
// event is not one this service acts on.
func (h *Handler) route(eventType string, event any) func(context.Context) error {
	switch e := event.(type) {
	case *github.PullRequestEvent:
		eventsTotal.WithLabelValues(eventType, e.GetAction()).Inc()
		owner := e.GetRepo().GetOwner().GetLogin()
		repo := e.GetRepo().GetName()

		switch {
		case validatedActions[e.GetAction()]:
			return func(ctx context.Context) error {
				gh, err := h.clients.For(e.GetInstallation().GetID())
				if err != nil {
					return err
				}
				return h.reconciler.ReconcilePullRequest(ctx, gh, owner, repo, e.GetPullRequest(), nil)
			}
		case e.GetAction() == "closed":
			return func(ctx context.Context) error {
				gh, err := h.clients.For(e.GetInstallation().GetID())
				if err != nil {
					return err
				}
				return h.reconciler.ReconcileMerged(ctx, gh, owner, repo, e.GetPullRequest())
			}
		}

	case *github.CheckRunEvent:
		eventsTotal.WithLabelValues(eventType, e.GetAction()).Inc()
		if e.GetAction() == "rerequested" {
			return func(ctx context.Context) error {
				gh, err := h.clients.For(e.GetInstallation().GetID())
				if err != nil {
					return err
				}
				return h.reconciler.ReconcileCheckRun(ctx, gh, e)
			}
		}

	case *github.CheckSuiteEvent:
		eventsTotal.WithLabelValues(eventType, e.GetAction()).Inc()
		if action := e.GetAction(); action == "requested" || action == "rerequested" {
			return func(ctx context.Context) error {
				gh, err := h.clients.For(e.GetInstallation().GetID())
				if err != nil {
					return err
				}
				return h.reconciler.ReconcileCheckSuite(ctx, gh, e)
			}
		}

	default:
		eventsTotal.WithLabelValues(eventType, "").Inc()
	}
	return nil
}
