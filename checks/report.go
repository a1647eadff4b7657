/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package checks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v84/github"

	"github.com/ShimShtein/prprocessor/commitmsg"
	"github.com/ShimShtein/prprocessor/tracker/redmine"
)

// Report category headers, in render order.
const (
	headerInvalidCommits = "Invalid commits"
	headerInvalidProject = "Invalid project"
	headerMissing        = "Issues not found in redmine"
	headerValid          = "Valid issues"
)

// genericTitle is used when zero or several finding categories are
// non-empty.
const genericTitle = "Redmine Issue Report"

// Report holds the finalized finding categories of one validation run.
// It is assembled once, after validation concludes, and rendered into the
// check run's conclusion and output as one immutable value.
type Report struct {
	// InvalidCommits are commits without the required issue reference.
	InvalidCommits []commitmsg.Commit
	// InvalidProject are referenced issues living in a project the policy
	// does not accept.
	InvalidProject []*redmine.Issue
	// Missing are referenced ids with no matching tracker issue.
	Missing []int
	// Valid are referenced issues that passed verification.
	Valid []*redmine.Issue
	// Project is the policy's tracker project, when one is configured.
	Project *redmine.Project
}

type category struct {
	header string
	lines  []string
}

func (r *Report) categories() []category {
	invalidCommits := make([]string, 0, len(r.InvalidCommits))
	for _, c := range r.InvalidCommits {
		invalidCommits = append(invalidCommits, fmt.Sprintf("%s must be in the format `fixes #redmine - brief description`", c.SHA))
	}

	missing := make([]string, 0, len(r.Missing))
	for _, id := range r.Missing {
		missing = append(missing, strconv.Itoa(id))
	}

	return []category{
		{headerInvalidCommits, invalidCommits},
		{headerInvalidProject, formatIssues(r.InvalidProject)},
		{headerMissing, missing},
		{headerValid, formatIssues(r.Valid)},
	}
}

func (r *Report) nonEmpty() []category {
	var out []category
	for _, c := range r.categories() {
		if len(c.lines) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Conclusion is success only when no finding category besides valid issues
// is non-empty.
func (r *Report) Conclusion() string {
	for _, c := range r.nonEmpty() {
		if c.header != headerValid {
			return "failure"
		}
	}
	return "success"
}

// Title is the single non-empty category header, or a generic title when
// zero or several categories have findings.
func (r *Report) Title() string {
	if nonEmpty := r.nonEmpty(); len(nonEmpty) == 1 {
		return nonEmpty[0].header
	}
	return genericTitle
}

// Summary renders one bullet per finding, with a section header per
// category when more than one category has findings.
func (r *Report) Summary() string {
	nonEmpty := r.nonEmpty()
	showHeaders := len(nonEmpty) != 1

	var sb strings.Builder
	for _, c := range nonEmpty {
		if showHeaders {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("### " + c.header + "\n")
		}
		for _, line := range c.lines {
			sb.WriteString("* " + line + "\n")
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Text renders per-issue remediation instructions for invalid-project
// findings. Empty when there are none.
func (r *Report) Text() string {
	if len(r.InvalidProject) == 0 || r.Project == nil {
		return ""
	}

	sections := make([]string, 0, len(r.InvalidProject))
	for _, issue := range r.InvalidProject {
		sections = append(sections, fmt.Sprintf(`### [#%d: %s](%s)

* check [#%d](%s) is the intended issue
* move [ticket #%d](%s) from %s to the %s project
* or file a new ticket in the [%s project](%s/issues/new)
`,
			issue.ID, issue.Subject, issue.URL,
			issue.ID, issue.URL,
			issue.ID, issue.URL, issue.Project.Name, r.Project.Name,
			r.Project.Name, r.Project.URL))
	}
	return strings.Join(sections, "\n")
}

// Output assembles the check run output block. The text field is set even
// when empty; Session.Complete decides whether it can be dropped from the
// payload.
func (r *Report) Output() *github.CheckRunOutput {
	return &github.CheckRunOutput{
		Title:   github.Ptr(r.Title()),
		Summary: github.Ptr(r.Summary()),
		Text:    github.Ptr(r.Text()),
	}
}

func formatIssues(issues []*redmine.Issue) []string {
	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		lines = append(lines, fmt.Sprintf("[#%d: %s](%s)", issue.ID, issue.Subject, issue.URL))
	}
	return lines
}

// UnknownRepositoryOutput is the fixed report for repositories outside the
// policy table and the organization allowlist. Never retried.
func UnknownRepositoryOutput() *github.CheckRunOutput {
	return &github.CheckRunOutput{
		Title:   github.Ptr("Unknown repository"),
		Summary: github.Ptr("Contact us via [Discourse](https://community.theforeman.org)"),
	}
}

// InternalErrorOutput is the fixed report after exhausted validation
// retries.
func InternalErrorOutput() *github.CheckRunOutput {
	return &github.CheckRunOutput{
		Title:   github.Ptr("Internal error while testing"),
		Summary: github.Ptr("Please retry later"),
	}
}
