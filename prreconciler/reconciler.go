/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prreconciler binds commit parsing, policy lookup, issue
// verification, check reporting and tracker sync into the event-driven
// validation flows.
package prreconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"github.com/ShimShtein/prprocessor/checks"
	"github.com/ShimShtein/prprocessor/commitmsg"
	"github.com/ShimShtein/prprocessor/policy"
	"github.com/ShimShtein/prprocessor/retry"
	"github.com/ShimShtein/prprocessor/tracker/redmine"
	"github.com/ShimShtein/prprocessor/trackersync"
	"github.com/ShimShtein/prprocessor/verify"
)

// Tracker is the full Redmine surface the reconciler consumes.
type Tracker interface {
	verify.Tracker
	Versions(ctx context.Context, projectID int) ([]redmine.Version, error)
	UpdateIssue(ctx context.Context, id int, update *redmine.IssueUpdate) error
}

// Reconciler orchestrates one validation or fix-version flow per incoming
// event. It holds no mutable state; concurrent events stay correct through
// idempotent check-run and tracker writes.
type Reconciler struct {
	policies *policy.Store
	tracker  Tracker
	verifier *verify.Verifier
	reporter *checks.Reporter
	syncer   *trackersync.Syncer
	retryCfg retry.Config
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCheckName overrides the check run name.
func WithCheckName(name string) Option {
	return func(r *Reconciler) {
		r.reporter = checks.NewReporter(name)
	}
}

// WithRetryConfig overrides the validation retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(r *Reconciler) {
		r.retryCfg = cfg
	}
}

// New constructs a Reconciler. users maps GitHub logins to Redmine user
// ids for assignee sync.
func New(policies *policy.Store, tracker Tracker, users map[string]int, opts ...Option) *Reconciler {
	r := &Reconciler{
		policies: policies,
		tracker:  tracker,
		verifier: verify.New(tracker),
		reporter: checks.NewReporter(""),
		syncer:   trackersync.New(tracker, users),
		retryCfg: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckName returns the name of the check run this reconciler drives.
func (r *Reconciler) CheckName() string {
	return r.reporter.CheckName()
}

// validation is the outcome of one successful validation body run.
type validation struct {
	// result is nil when verification was skipped because the policy has
	// no tracker project.
	result         *verify.Result
	invalidCommits []commitmsg.Commit
}

// ReconcilePullRequest validates a PR's commits and drives the check run
// to completion. existing, when non-nil, is a prior run to reuse so
// rerequests do not spawn duplicate checks.
func (r *Reconciler) ReconcilePullRequest(ctx context.Context, gh *github.Client, owner, repo string, pr *github.PullRequest, existing *github.CheckRun) error {
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).
		With("repository", owner+"/"+repo).
		With("pr", pr.GetNumber()))
	log := clog.FromContext(ctx)

	session := r.reporter.NewSession(gh, owner, repo, pr, existing)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("starting check run: %w", err)
	}

	v, err := retry.Do(ctx, r.retryCfg, "pull request validation",
		func(err error) bool { return !errors.Is(err, policy.ErrUnconfiguredRepository) },
		func(ctx context.Context) (validation, error) {
			return r.validate(ctx, gh, owner, repo, pr)
		})

	// The check is completed on every path, never left in_progress.
	switch {
	case errors.Is(err, policy.ErrUnconfiguredRepository):
		log.Info("Repository is not configured and not allowlisted")
		return session.Complete(ctx, "failure", checks.UnknownRepositoryOutput())
	case err != nil:
		log.Errorf("Validation failed after retries: %v", err)
		return session.Complete(ctx, "failure", checks.InternalErrorOutput())
	}

	// Tracker sync is a best-effort side channel; its failures must not
	// turn a valid PR red.
	if v.result != nil && len(v.result.Valid) > 0 {
		if err := r.syncer.Sync(ctx, pr, v.result.Valid); err != nil {
			log.Errorf("Failed to sync tracker issues: %v", err)
		}
	}

	report := &checks.Report{InvalidCommits: v.invalidCommits}
	if v.result != nil {
		report.InvalidProject = v.result.InvalidProject
		report.Missing = v.result.Missing
		report.Valid = v.result.Valid
		report.Project = v.result.Project
	}

	return session.Complete(ctx, report.Conclusion(), report.Output())
}

// validate is the retried body: policy lookup, commit fetch and parse,
// then issue verification. Verification is skipped when the policy names
// no tracker project; only invalid-commit findings can arise then.
func (r *Reconciler) validate(ctx context.Context, gh *github.Client, owner, repo string, pr *github.PullRequest) (validation, error) {
	pol, err := r.policies.Lookup(owner + "/" + repo)
	if err != nil {
		return validation{}, err
	}

	commits, err := fetchCommits(ctx, gh, owner, repo, pr.GetNumber())
	if err != nil {
		return validation{}, err
	}

	ids := map[int]struct{}{}
	var invalid []commitmsg.Commit
	for _, c := range commits {
		for id := range c.References() {
			ids[id] = struct{}{}
		}
		if pol.Required && !c.HasReferences() {
			invalid = append(invalid, c)
		}
	}

	if pol.TrackerProject == "" {
		return validation{invalidCommits: invalid}, nil
	}

	result, err := r.verifier.Verify(ctx, pol, sortedIDs(ids))
	if err != nil {
		return validation{}, err
	}
	return validation{result: result, invalidCommits: invalid}, nil
}

// fetchCommits lists and parses every commit of a pull request.
func fetchCommits(ctx context.Context, gh *github.Client, owner, repo string, number int) ([]commitmsg.Commit, error) {
	var commits []commitmsg.Commit
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := gh.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits of PR %d: %w", number, err)
		}
		for _, rc := range page {
			commits = append(commits, commitmsg.Parse(rc.GetSHA(), rc.GetCommit().GetMessage()))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return commits, nil
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
