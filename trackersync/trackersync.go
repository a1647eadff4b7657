/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package trackersync reconciles Redmine issue state with pull request
// activity: linked PR list, assignee and workflow status.
package trackersync

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"github.com/ShimShtein/prprocessor/tracker/redmine"
)

// cherryPickPrefixes mark PRs that replay commits onto another branch.
// Those PRs are exempt from linked-PR bookkeeping so the issue keeps
// pointing at the original change.
var cherryPickPrefixes = []string{"CP", "[CP]", "Cherry picks for "}

// Saver is the slice of the Redmine API the sync needs for writes.
type Saver interface {
	UpdateIssue(ctx context.Context, id int, update *redmine.IssueUpdate) error
}

// Syncer applies best-effort issue updates. Its errors must never fail the
// overall check; callers log and swallow them.
type Syncer struct {
	tracker Saver
	users   map[string]int // GitHub login -> Redmine user id
}

// New constructs a Syncer.
func New(tracker Saver, users map[string]int) *Syncer {
	return &Syncer{tracker: tracker, users: users}
}

// Sync brings every issue in line with the pull request. Updates are
// collected into one diff per issue and saved in a single call only when
// non-empty, so a fully synced issue triggers zero writes.
func (s *Syncer) Sync(ctx context.Context, pr *github.PullRequest, issues []*redmine.Issue) error {
	log := clog.FromContext(ctx)

	for _, issue := range issues {
		update := s.buildUpdate(pr, issue)
		if update.Empty() {
			log.With("issue", issue.ID).Debug("Issue already in sync")
			continue
		}

		log.With("issue", issue.ID).Infof("Updating issue: %+v", update)
		if err := s.tracker.UpdateIssue(ctx, issue.ID, update); err != nil {
			return fmt.Errorf("updating issue %d: %w", issue.ID, err)
		}
	}
	return nil
}

// buildUpdate computes the minimal diff for one issue. Rejected issues are
// never touched.
func (s *Syncer) buildUpdate(pr *github.PullRequest, issue *redmine.Issue) *redmine.IssueUpdate {
	update := &redmine.IssueUpdate{}

	status := redmine.Status(issue.Status.ID)
	if status.Rejected() {
		return update
	}

	if !isCherryPick(pr) {
		prURL := pr.GetHTMLURL()
		if linked := issue.PullRequestURLs(); !contains(linked, prURL) {
			update.CustomFields = append(update.CustomFields, redmine.CustomField{
				ID:    redmine.FieldPullRequest,
				Value: append(append([]string{}, linked...), prURL),
			})
		}
	}

	if userID, ok := s.users[pr.GetUser().GetLogin()]; ok && issue.AssignedTo == nil {
		update.AssignedToID = &userID
	}

	if !status.Closed() && status != redmine.StatusReadyForTesting {
		readyForTesting := int(redmine.StatusReadyForTesting)
		update.StatusID = &readyForTesting
	}

	return update
}

func isCherryPick(pr *github.PullRequest) bool {
	title := pr.GetTitle()
	for _, prefix := range cherryPickPrefixes {
		if strings.HasPrefix(title, prefix) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
