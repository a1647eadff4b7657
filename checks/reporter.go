/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package checks drives the "Redmine issues" check run through its
// in_progress to completed lifecycle and formats the validation report.
package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// DefaultCheckName is the check run name GitHub displays.
const DefaultCheckName = "Redmine issues"

// Reporter creates report sessions for a named check.
type Reporter struct {
	checkName string
}

// NewReporter constructs a Reporter. An empty name selects
// DefaultCheckName.
func NewReporter(checkName string) *Reporter {
	if checkName == "" {
		checkName = DefaultCheckName
	}
	return &Reporter{checkName: checkName}
}

// CheckName returns the configured check run name.
func (r *Reporter) CheckName() string {
	return r.checkName
}

// Session drives exactly one check run through one validation attempt:
// Start once, then Complete exactly once, regardless of how validation
// ends. The run is never left in_progress.
type Session struct {
	gh        *github.Client
	owner     string
	repo      string
	checkName string
	headSHA   string

	run       *github.CheckRun
	completed bool
}

// NewSession binds a session to a PR head. existing, when non-nil, is a
// previously created run to reuse (rerequested checks) so the user-visible
// run identity and history are preserved.
func (r *Reporter) NewSession(gh *github.Client, owner, repo string, pr *github.PullRequest, existing *github.CheckRun) *Session {
	return &Session{
		gh:        gh,
		owner:     owner,
		repo:      repo,
		checkName: r.checkName,
		headSHA:   pr.GetHead().GetSHA(),
		run:       existing,
	}
}

// Start transitions the run to in_progress. A supplied run already
// in_progress is left untouched; otherwise it is updated in place. Without
// a supplied run a fresh one is created.
func (s *Session) Start(ctx context.Context) error {
	now := github.Timestamp{Time: time.Now().UTC()}

	if s.run != nil {
		if s.run.GetStatus() == "in_progress" {
			return nil
		}
		run, _, err := s.gh.Checks.UpdateCheckRun(ctx, s.owner, s.repo, s.run.GetID(), github.UpdateCheckRunOptions{
			Name:   s.checkName,
			Status: github.Ptr("in_progress"),
		})
		if err != nil {
			return fmt.Errorf("restarting check run %d: %w", s.run.GetID(), err)
		}
		// Keep the prior output so Complete can see pre-existing text.
		if run.Output == nil {
			run.Output = s.run.Output
		}
		s.run = run
		return nil
	}

	run, _, err := s.gh.Checks.CreateCheckRun(ctx, s.owner, s.repo, github.CreateCheckRunOptions{
		Name:      s.checkName,
		HeadSHA:   s.headSHA,
		Status:    github.Ptr("in_progress"),
		StartedAt: &now,
	})
	if err != nil {
		return fmt.Errorf("creating check run: %w", err)
	}
	s.run = run
	return nil
}

// Complete finishes the run with the given conclusion and output. It may
// be called only once per session, after Start.
//
// GitHub rejects an explicit empty text overwrite ("for 'properties/text',
// nil is not a string"), so an empty text is dropped from the payload
// entirely when the run had none before.
func (s *Session) Complete(ctx context.Context, conclusion string, output *github.CheckRunOutput) error {
	if s.run == nil {
		return errors.New("session not started")
	}
	if s.completed {
		return errors.New("session already completed")
	}

	if output.Text != nil && *output.Text == "" && s.run.GetOutput().GetText() == "" {
		output.Text = nil
	}

	now := github.Timestamp{Time: time.Now().UTC()}
	_, _, err := s.gh.Checks.UpdateCheckRun(ctx, s.owner, s.repo, s.run.GetID(), github.UpdateCheckRunOptions{
		Name:        s.checkName,
		Status:      github.Ptr("completed"),
		Conclusion:  github.Ptr(conclusion),
		CompletedAt: &now,
		Output:      output,
	})
	if err != nil {
		return fmt.Errorf("completing check run %d: %w", s.run.GetID(), err)
	}

	s.completed = true
	clog.FromContext(ctx).With("check_run", s.run.GetID()).
		With("conclusion", conclusion).
		Info("Check run completed")
	return nil
}
