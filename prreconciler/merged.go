/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prreconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"github.com/ShimShtein/prprocessor/policy"
	"github.com/ShimShtein/prprocessor/tracker/redmine"
)

// developmentBranches merge into the next unreleased version, so their
// fix version carries no release prefix.
var developmentBranches = []string{"main", "master", "develop", "deb/develop", "rpm/develop"}

// versionPrefixForBranch maps a merge target branch to the prefix its fix
// versions must carry. ok is false for branches that never set versions.
func versionPrefixForBranch(branch string) (prefix string, ok bool) {
	if v, found := strings.CutSuffix(branch, "-stable"); found {
		return v + ".", true
	}
	if slices.Contains(developmentBranches, branch) {
		return "", true
	}
	return "", false
}

// ReconcileMerged sets the fix version on every issue a merged PR fixes.
// Refs-only issues are left alone: a reference is not a resolution.
func (r *Reconciler) ReconcileMerged(ctx context.Context, gh *github.Client, owner, repo string, pr *github.PullRequest) error {
	log := clog.FromContext(ctx).
		With("repository", owner+"/"+repo).
		With("pr", pr.GetNumber())

	if !pr.GetMerged() {
		log.Debug("PR closed without merging, nothing to version")
		return nil
	}

	branch := pr.GetBase().GetRef()
	branchPrefix, ok := versionPrefixForBranch(branch)
	if !ok {
		log.Infof("Branch %s does not set fix versions", branch)
		return nil
	}

	pol, err := r.policies.Lookup(owner + "/" + repo)
	if err != nil {
		if errors.Is(err, policy.ErrUnconfiguredRepository) {
			return nil
		}
		return err
	}
	if pol.TrackerProject == "" {
		return nil
	}
	prefix := pol.VersionPrefix + branchPrefix

	commits, err := fetchCommits(ctx, gh, owner, repo, pr.GetNumber())
	if err != nil {
		return err
	}
	fixed := map[int]struct{}{}
	for _, c := range commits {
		for id := range c.Fixes {
			fixed[id] = struct{}{}
		}
	}
	if len(fixed) == 0 {
		return nil
	}

	project, err := r.tracker.Project(ctx, pol.TrackerProject)
	if err != nil {
		return fmt.Errorf("resolving project %s: %w", pol.TrackerProject, err)
	}
	versions, err := r.tracker.Versions(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("listing versions of %s: %w", pol.TrackerProject, err)
	}
	version := redmine.LatestOpenVersion(versions, prefix)
	if version == nil {
		log.Infof("No open version with prefix %q in %s", prefix, pol.TrackerProject)
		return nil
	}

	issues, err := r.tracker.Issues(ctx, sortedIDs(fixed))
	if err != nil {
		return fmt.Errorf("fetching fixed issues: %w", err)
	}
	for _, issue := range issues {
		// Issues living in another project get their versions from that
		// project's own releases.
		if issue.Project.ID != project.ID {
			continue
		}
		log.With("issue", issue.ID).Infof("Setting fix version to %s", version.Name)
		if err := r.tracker.UpdateIssue(ctx, issue.ID, &redmine.IssueUpdate{
			FixedVersionID: &version.ID,
		}); err != nil {
			return fmt.Errorf("setting fix version on issue %d: %w", issue.ID, err)
		}
	}
	return nil
}
