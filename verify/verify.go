/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package verify classifies referenced issue ids against a repository's
// tracker policy.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ShimShtein/prprocessor/policy"
	"github.com/ShimShtein/prprocessor/tracker/redmine"
)

// ErrUnknownProject indicates the policy references a tracker project that
// does not exist or is unset. Callers must skip verification entirely when
// no project is configured.
var ErrUnknownProject = errors.New("unknown tracker project")

// Tracker is the slice of the Redmine API verification needs.
type Tracker interface {
	Issues(ctx context.Context, ids []int) ([]*redmine.Issue, error)
	Project(ctx context.Context, key string) (*redmine.Project, error)
}

// Result partitions the requested issue ids. Every input id lands in
// exactly one of Valid, InvalidProject or Missing; all three are sorted by
// id ascending so report text is deterministic.
type Result struct {
	Valid          []*redmine.Issue
	InvalidProject []*redmine.Issue
	Missing        []int
	Project        *redmine.Project
}

// Verifier verifies issue references against the tracker.
type Verifier struct {
	tracker Tracker
}

// New constructs a Verifier on top of the given tracker boundary.
func New(tracker Tracker) *Verifier {
	return &Verifier{tracker: tracker}
}

// Verify resolves the policy's tracker project and classifies every
// requested id. Transport errors propagate; they are the caller's retry
// signal.
func (v *Verifier) Verify(ctx context.Context, pol policy.Policy, ids []int) (*Result, error) {
	if pol.TrackerProject == "" {
		return nil, ErrUnknownProject
	}

	project, err := v.tracker.Project(ctx, pol.TrackerProject)
	if err != nil {
		if errors.Is(err, redmine.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProject, pol.TrackerProject)
		}
		return nil, err
	}

	accepted := map[int]bool{project.ID: true}
	for _, key := range pol.ExtraProjects {
		extra, err := v.tracker.Project(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("resolving accepted project %q: %w", key, err)
		}
		accepted[extra.ID] = true
	}

	issues, err := v.tracker.Issues(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &Result{Project: project}
	found := make(map[int]bool, len(issues))
	for _, issue := range issues {
		found[issue.ID] = true
		if accepted[issue.Project.ID] {
			result.Valid = append(result.Valid, issue)
		} else {
			result.InvalidProject = append(result.InvalidProject, issue)
		}
	}
	for _, id := range ids {
		if !found[id] {
			result.Missing = append(result.Missing, id)
		}
	}

	sort.Slice(result.Valid, func(i, j int) bool { return result.Valid[i].ID < result.Valid[j].ID })
	sort.Slice(result.InvalidProject, func(i, j int) bool { return result.InvalidProject[i].ID < result.InvalidProject[j].ID })
	sort.Ints(result.Missing)

	return result, nil
}
