/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prreconciler

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

// ReconcileCheckRun re-validates every pull request attached to a
// rerequested check run, reusing the run instead of creating a new one.
func (r *Reconciler) ReconcileCheckRun(ctx context.Context, gh *github.Client, event *github.CheckRunEvent) error {
	run := event.GetCheckRun()
	owner := event.GetRepo().GetOwner().GetLogin()
	repo := event.GetRepo().GetName()

	prs, err := r.resolvePullRequests(ctx, gh, owner, repo, run.GetHeadSHA(), run.PullRequests)
	if err != nil {
		return err
	}
	for _, pr := range prs {
		if err := r.ReconcilePullRequest(ctx, gh, owner, repo, pr, run); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileCheckSuite handles requested and rerequested suites. When the
// suite already carries a run of ours we reuse it so the rerun replaces
// the old verdict in place.
func (r *Reconciler) ReconcileCheckSuite(ctx context.Context, gh *github.Client, event *github.CheckSuiteEvent) error {
	suite := event.GetCheckSuite()
	owner := event.GetRepo().GetOwner().GetLogin()
	repo := event.GetRepo().GetName()

	existing, err := r.findSuiteRun(ctx, gh, owner, repo, suite.GetID())
	if err != nil {
		return err
	}

	prs, err := r.resolvePullRequests(ctx, gh, owner, repo, suite.GetHeadSHA(), suite.PullRequests)
	if err != nil {
		return err
	}
	for _, pr := range prs {
		if err := r.ReconcilePullRequest(ctx, gh, owner, repo, pr, existing); err != nil {
			return err
		}
	}
	return nil
}

// findSuiteRun locates this bot's check run within a suite, if any.
func (r *Reconciler) findSuiteRun(ctx context.Context, gh *github.Client, owner, repo string, suiteID int64) (*github.CheckRun, error) {
	opts := &github.ListCheckRunsOptions{
		CheckName:   github.Ptr(r.reporter.CheckName()),
		ListOptions: github.ListOptions{PerPage: 100},
	}
	runs, _, err := gh.Checks.ListCheckRunsCheckSuite(ctx, owner, repo, suiteID, opts)
	if err != nil {
		return nil, fmt.Errorf("listing check runs of suite %d: %w", suiteID, err)
	}
	for _, run := range runs.CheckRuns {
		if run.GetName() == r.reporter.CheckName() {
			return run, nil
		}
	}
	return nil, nil
}

// resolvePullRequests turns the PR stubs of a check event into full pull
// requests. Events from forks often carry an empty PR list; the commit's
// associated pull requests are then looked up via the GraphQL API.
func (r *Reconciler) resolvePullRequests(ctx context.Context, gh *github.Client, owner, repo, headSHA string, stubs []*github.PullRequest) ([]*github.PullRequest, error) {
	log := clog.FromContext(ctx)

	numbers := make([]int, 0, len(stubs))
	for _, stub := range stubs {
		numbers = append(numbers, stub.GetNumber())
	}
	if len(numbers) == 0 {
		log.Infof("No pull requests on event for %s, falling back to commit lookup", headSHA)
		var err error
		numbers, err = associatedPullRequests(ctx, gh, owner, repo, headSHA)
		if err != nil {
			return nil, err
		}
	}

	prs := make([]*github.PullRequest, 0, len(numbers))
	for _, number := range numbers {
		pr, _, err := gh.PullRequests.Get(ctx, owner, repo, number)
		if err != nil {
			return nil, fmt.Errorf("fetching PR %d: %w", number, err)
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

// associatedPullRequests returns the numbers of open PRs whose head is the
// given commit.
func associatedPullRequests(ctx context.Context, gh *github.Client, owner, repo, sha string) ([]int, error) {
	var query struct {
		Repository struct {
			Object struct {
				Commit struct {
					AssociatedPullRequests struct {
						Nodes []struct {
							Number githubv4.Int
							State  githubv4.String
						}
					} `graphql:"associatedPullRequests(first: 10)"`
				} `graphql:"... on Commit"`
			} `graphql:"object(expression: $sha)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	vars := map[string]any{
		"owner": githubv4.String(owner),
		"repo":  githubv4.String(repo),
		"sha":   githubv4.String(sha),
	}
	if err := githubv4.NewClient(gh.Client()).Query(ctx, &query, vars); err != nil {
		return nil, fmt.Errorf("querying pull requests for commit %s: %w", sha, err)
	}

	var numbers []int
	for _, node := range query.Repository.Object.Commit.AssociatedPullRequests.Nodes {
		if node.State == "OPEN" {
			numbers = append(numbers, int(node.Number))
		}
	}
	return numbers, nil
}
