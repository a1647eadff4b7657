/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package trackersync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v84/github"

	"github.com/ShimShtein/prprocessor/tracker/redmine"
)

type fakeSaver struct {
	updates map[int]*redmine.IssueUpdate
	err     error
}

func (f *fakeSaver) UpdateIssue(_ context.Context, id int, update *redmine.IssueUpdate) error {
	if f.err != nil {
		return f.err
	}
	if f.updates == nil {
		f.updates = map[int]*redmine.IssueUpdate{}
	}
	f.updates[id] = update
	return nil
}

func pr(title, author, url string) *github.PullRequest {
	return &github.PullRequest{
		Title:   github.Ptr(title),
		HTMLURL: github.Ptr(url),
		User:    &github.User{Login: github.Ptr(author)},
	}
}

func newIssue(id int, status redmine.Status, linked []string) *redmine.Issue {
	value := make([]any, 0, len(linked))
	for _, l := range linked {
		value = append(value, l)
	}
	return &redmine.Issue{
		ID:     id,
		Status: redmine.Ref{ID: int(status)},
		CustomFields: []redmine.CustomField{
			{ID: redmine.FieldPullRequest, Value: value},
		},
	}
}

const prURL = "https://github.com/theforeman/foreman/pull/100"

func TestSyncFreshIssue(t *testing.T) {
	saver := &fakeSaver{}
	syncer := New(saver, map[string]int{"alice": 7})

	issue := newIssue(123, redmine.StatusNew, nil)
	if err := syncer.Sync(context.Background(), pr("Fix the crash", "alice", prURL), []*redmine.Issue{issue}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	update, ok := saver.updates[123]
	if !ok {
		t.Fatal("no update saved for issue 123")
	}

	ready := int(redmine.StatusReadyForTesting)
	assignee := 7
	want := &redmine.IssueUpdate{
		StatusID:     &ready,
		AssignedToID: &assignee,
		CustomFields: []redmine.CustomField{
			{ID: redmine.FieldPullRequest, Value: []string{prURL}},
		},
	}
	if diff := cmp.Diff(want, update); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	saver := &fakeSaver{}
	syncer := New(saver, map[string]int{"alice": 7})

	// Issue already reflecting the PR: linked, assigned, ready for testing.
	issue := newIssue(123, redmine.StatusReadyForTesting, []string{prURL})
	issue.AssignedTo = &redmine.Ref{ID: 7, Name: "Alice"}

	if err := syncer.Sync(context.Background(), pr("Fix the crash", "alice", prURL), []*redmine.Issue{issue}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(saver.updates) != 0 {
		t.Errorf("synced issue triggered %d writes, want 0: %+v", len(saver.updates), saver.updates)
	}
}

func TestSyncCherryPickSkipsLinkedPRs(t *testing.T) {
	tests := []struct {
		title      string
		cherryPick bool
	}{
		{"CP fix for 3.0", true},
		{"[CP] fix for 3.0", true},
		{"Cherry picks for 3.0.1", true},
		{"Copy editing the docs", false},
		{"Fix the crash", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			saver := &fakeSaver{}
			syncer := New(saver, nil)

			issue := newIssue(5, redmine.StatusReadyForTesting, nil)
			if err := syncer.Sync(context.Background(), pr(tt.title, "bob", prURL), []*redmine.Issue{issue}); err != nil {
				t.Fatalf("Sync: %v", err)
			}

			update := saver.updates[5]
			gotLinkUpdate := update != nil && len(update.CustomFields) > 0
			if gotLinkUpdate == tt.cherryPick {
				t.Errorf("linked-PR update = %v for title %q, want %v", gotLinkUpdate, tt.title, !tt.cherryPick)
			}
		})
	}
}

func TestSyncAppendsToExistingLinks(t *testing.T) {
	saver := &fakeSaver{}
	syncer := New(saver, nil)

	other := "https://github.com/theforeman/foreman/pull/99"
	issue := newIssue(123, redmine.StatusReadyForTesting, []string{other})

	if err := syncer.Sync(context.Background(), pr("Fix", "bob", prURL), []*redmine.Issue{issue}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	update := saver.updates[123]
	if update == nil || len(update.CustomFields) != 1 {
		t.Fatalf("update = %+v, want one custom field change", update)
	}
	want := []string{other, prURL}
	if diff := cmp.Diff(want, update.CustomFields[0].Value); diff != "" {
		t.Errorf("linked PRs mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncLeavesRejectedIssuesAlone(t *testing.T) {
	for _, status := range []redmine.Status{redmine.StatusRejected, redmine.StatusDuplicate} {
		saver := &fakeSaver{}
		syncer := New(saver, map[string]int{"alice": 7})

		issue := newIssue(9, status, nil)
		if err := syncer.Sync(context.Background(), pr("Fix", "alice", prURL), []*redmine.Issue{issue}); err != nil {
			t.Fatalf("Sync: %v", err)
		}
		if len(saver.updates) != 0 {
			t.Errorf("rejected issue (status %d) was updated: %+v", status, saver.updates)
		}
	}
}

func TestSyncStatusTransitions(t *testing.T) {
	tests := []struct {
		status     redmine.Status
		wantStatus bool
	}{
		{redmine.StatusNew, true},
		{redmine.StatusAssigned, true},
		{redmine.StatusReadyForTesting, false},
		{redmine.StatusClosed, false},
	}

	for _, tt := range tests {
		saver := &fakeSaver{}
		syncer := New(saver, nil)

		issue := newIssue(1, tt.status, []string{prURL}) // link in place, only status can change
		if err := syncer.Sync(context.Background(), pr("Fix", "bob", prURL), []*redmine.Issue{issue}); err != nil {
			t.Fatalf("Sync: %v", err)
		}

		update := saver.updates[1]
		gotStatus := update != nil && update.StatusID != nil
		if gotStatus != tt.wantStatus {
			t.Errorf("status %d: status update = %v, want %v", tt.status, gotStatus, tt.wantStatus)
		}
		if gotStatus && *update.StatusID != int(redmine.StatusReadyForTesting) {
			t.Errorf("status %d: StatusID = %d, want ready for testing", tt.status, *update.StatusID)
		}
	}
}

func TestSyncKeepsExistingAssignee(t *testing.T) {
	saver := &fakeSaver{}
	syncer := New(saver, map[string]int{"alice": 7})

	issue := newIssue(1, redmine.StatusReadyForTesting, []string{prURL})
	issue.AssignedTo = &redmine.Ref{ID: 99, Name: "Someone Else"}

	if err := syncer.Sync(context.Background(), pr("Fix", "alice", prURL), []*redmine.Issue{issue}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(saver.updates) != 0 {
		t.Errorf("assignee overwritten: %+v", saver.updates)
	}
}

func TestSyncUnmappedAuthor(t *testing.T) {
	saver := &fakeSaver{}
	syncer := New(saver, map[string]int{"alice": 7})

	issue := newIssue(1, redmine.StatusReadyForTesting, []string{prURL})
	if err := syncer.Sync(context.Background(), pr("Fix", "stranger", prURL), []*redmine.Issue{issue}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(saver.updates) != 0 {
		t.Errorf("unmapped author caused an update: %+v", saver.updates)
	}
}

func TestSyncPropagatesSaveErrors(t *testing.T) {
	boom := errors.New("redmine down")
	syncer := New(&fakeSaver{err: boom}, nil)

	issue := newIssue(1, redmine.StatusNew, nil)
	if err := syncer.Sync(context.Background(), pr("Fix", "bob", prURL), []*redmine.Issue{issue}); !errors.Is(err, boom) {
		t.Errorf("Sync error = %v, want wrapped save error", err)
	}
}
