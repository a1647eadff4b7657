/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package checks

import (
	"strconv"
	"strings"
	"testing"

	"github.com/ShimShtein/prprocessor/commitmsg"
	"github.com/ShimShtein/prprocessor/tracker/redmine"
)

func validIssue(id int, subject string) *redmine.Issue {
	return &redmine.Issue{
		ID:      id,
		Subject: subject,
		Project: redmine.Ref{ID: 10, Name: "Foreman"},
		URL:     "https://projects.theforeman.org/issues/" + strconv.Itoa(id),
	}
}

func TestReportConclusion(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   string
	}{{
		name:   "empty report succeeds",
		report: Report{},
		want:   "success",
	}, {
		name:   "only valid issues succeeds",
		report: Report{Valid: []*redmine.Issue{validIssue(1, "ok")}},
		want:   "success",
	}, {
		name:   "invalid commit fails",
		report: Report{InvalidCommits: []commitmsg.Commit{commitmsg.Parse("abc123", "improve logging")}},
		want:   "failure",
	}, {
		name:   "missing issue fails",
		report: Report{Missing: []int{404}},
		want:   "failure",
	}, {
		name: "invalid project fails despite valid issues",
		report: Report{
			Valid:          []*redmine.Issue{validIssue(1, "ok")},
			InvalidProject: []*redmine.Issue{validIssue(2, "wrong home")},
		},
		want: "failure",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Conclusion(); got != tt.want {
				t.Errorf("Conclusion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReportTitle(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   string
	}{{
		name:   "single category uses its header",
		report: Report{Valid: []*redmine.Issue{validIssue(1, "ok")}},
		want:   "Valid issues",
	}, {
		name:   "single failure category uses its header",
		report: Report{Missing: []int{404}},
		want:   "Issues not found in redmine",
	}, {
		name: "multiple categories use generic title",
		report: Report{
			Valid:   []*redmine.Issue{validIssue(1, "ok")},
			Missing: []int{404},
		},
		want: "Redmine Issue Report",
	}, {
		name:   "empty report uses generic title",
		report: Report{},
		want:   "Redmine Issue Report",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Title(); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReportSummary(t *testing.T) {
	t.Run("single category has no headers", func(t *testing.T) {
		r := Report{Valid: []*redmine.Issue{validIssue(123, "fix crash")}}
		got := r.Summary()

		want := "* [#123: fix crash](https://projects.theforeman.org/issues/123)"
		if got != want {
			t.Errorf("Summary() = %q, want %q", got, want)
		}
	})

	t.Run("multiple categories get section headers", func(t *testing.T) {
		r := Report{
			Valid:   []*redmine.Issue{validIssue(1, "ok")},
			Missing: []int{404, 405},
		}
		got := r.Summary()

		for _, want := range []string{
			"### Issues not found in redmine",
			"* 404",
			"* 405",
			"### Valid issues",
			"* [#1: ok](https://projects.theforeman.org/issues/1)",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("Summary() missing %q:\n%s", want, got)
			}
		}

		// Category order is fixed: missing before valid.
		if strings.Index(got, "### Issues not found") > strings.Index(got, "### Valid issues") {
			t.Errorf("Summary() categories out of order:\n%s", got)
		}
	})

	t.Run("invalid commit line", func(t *testing.T) {
		r := Report{InvalidCommits: []commitmsg.Commit{commitmsg.Parse("abc123", "improve logging")}}
		want := "* abc123 must be in the format `fixes #redmine - brief description`"
		if got := r.Summary(); got != want {
			t.Errorf("Summary() = %q, want %q", got, want)
		}
	})
}

func TestReportText(t *testing.T) {
	project := &redmine.Project{ID: 10, Identifier: "foreman", Name: "Foreman", URL: "https://projects.theforeman.org/projects/foreman"}

	t.Run("empty without invalid project issues", func(t *testing.T) {
		r := Report{Valid: []*redmine.Issue{validIssue(1, "ok")}, Project: project}
		if got := r.Text(); got != "" {
			t.Errorf("Text() = %q, want empty", got)
		}
	})

	t.Run("remediation per invalid issue", func(t *testing.T) {
		wrong := validIssue(55, "misfiled")
		wrong.Project = redmine.Ref{ID: 30, Name: "Bar"}
		r := Report{InvalidProject: []*redmine.Issue{wrong}, Project: project}

		got := r.Text()
		for _, want := range []string{
			"### [#55: misfiled](https://projects.theforeman.org/issues/55)",
			"check [#55](https://projects.theforeman.org/issues/55) is the intended issue",
			"move [ticket #55](https://projects.theforeman.org/issues/55) from Bar to the Foreman project",
			"file a new ticket in the [Foreman project](https://projects.theforeman.org/projects/foreman/issues/new)",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("Text() missing %q:\n%s", want, got)
			}
		}
	})
}

func TestFixedOutputs(t *testing.T) {
	unknown := UnknownRepositoryOutput()
	if unknown.GetTitle() != "Unknown repository" {
		t.Errorf("UnknownRepositoryOutput title = %q", unknown.GetTitle())
	}
	if !strings.Contains(unknown.GetSummary(), "Discourse") {
		t.Errorf("UnknownRepositoryOutput summary = %q", unknown.GetSummary())
	}

	internal := InternalErrorOutput()
	if internal.GetTitle() != "Internal error while testing" {
		t.Errorf("InternalErrorOutput title = %q", internal.GetTitle())
	}
}
