/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package redmine

// Workflow status ids of the Foreman Redmine instance.
type Status int

const (
	StatusNew             Status = 1
	StatusAssigned        Status = 2
	StatusClosed          Status = 5
	StatusRejected        Status = 6
	StatusReadyForTesting Status = 7
	StatusDuplicate       Status = 10
)

// Rejected reports whether the status means the issue was discarded.
// Rejected issues are never touched by the PR sync.
func (s Status) Rejected() bool {
	return s == StatusRejected || s == StatusDuplicate
}

// Closed reports whether the status terminates the workflow.
func (s Status) Closed() bool {
	return s == StatusClosed || s.Rejected()
}

// Custom field ids of the Foreman Redmine instance.
const (
	// FieldTriaged is the boolean triage flag. Currently only read, kept
	// for the eventual un-triage-on-reopen behavior.
	FieldTriaged = 6

	// FieldPullRequest is the list of pull request URLs linked to an issue.
	FieldPullRequest = 7
)

// Ref is a Redmine association rendered as id plus display name.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// CustomField is one entry of an issue's custom_fields array. Value is
// field-dependent: a string, a bool, or a list of strings.
type CustomField struct {
	ID    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value"`
}

// Issue is a Redmine issue as returned by the issues API.
type Issue struct {
	ID           int           `json:"id"`
	Subject      string        `json:"subject"`
	Project      Ref           `json:"project"`
	Status       Ref           `json:"status"`
	AssignedTo   *Ref          `json:"assigned_to,omitempty"`
	FixedVersion *Ref          `json:"fixed_version,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`

	// URL is the issue's web address, derived from the client base URL.
	URL string `json:"-"`
}

// CustomField returns the custom field with the given id, or nil.
func (i *Issue) CustomField(id int) *CustomField {
	for idx := range i.CustomFields {
		if i.CustomFields[idx].ID == id {
			return &i.CustomFields[idx]
		}
	}
	return nil
}

// PullRequestURLs returns the linked pull request URLs, if any.
func (i *Issue) PullRequestURLs() []string {
	cf := i.CustomField(FieldPullRequest)
	if cf == nil {
		return nil
	}

	switch v := cf.Value.(type) {
	case []string:
		return v
	case []any:
		urls := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				urls = append(urls, s)
			}
		}
		return urls
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Project is a Redmine project as returned by the projects API.
type Project struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`

	// URL is the project's web address, derived from the client base URL.
	URL string `json:"-"`
}

// Version is one entry of a project's versions API response.
type Version struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"` // open, locked or closed
}

// Open reports whether the version still accepts issues.
func (v Version) Open() bool {
	return v.Status == "open"
}

// IssueUpdate is a partial issue save. Zero-valued fields are omitted from
// the payload so unrelated issue state is never clobbered.
type IssueUpdate struct {
	StatusID       *int          `json:"status_id,omitempty"`
	AssignedToID   *int          `json:"assigned_to_id,omitempty"`
	FixedVersionID *int          `json:"fixed_version_id,omitempty"`
	CustomFields   []CustomField `json:"custom_fields,omitempty"`
}

// Empty reports whether the update carries no changes. Empty updates must
// not be saved; that is what makes the PR sync idempotent.
func (u *IssueUpdate) Empty() bool {
	return u.StatusID == nil && u.AssignedToID == nil && u.FixedVersionID == nil && len(u.CustomFields) == 0
}
