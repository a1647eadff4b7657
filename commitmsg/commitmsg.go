/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package commitmsg parses commit messages into Redmine issue references.
package commitmsg

import (
	"regexp"
	"strconv"
	"strings"
)

// validSummaryRegex matches subjects like "Fixes #123, #456 - add feature"
// or "refs #99: cleanup". The action word and separator are fixed
// alternatives; no other punctuation is accepted between the reference list
// and the description.
var validSummaryRegex = regexp.MustCompile(`(?i)\A(?P<action>fixes|refs) (?P<issues>#(\d+)(, ?#(\d+))*)(:| -) .*\z`)

// issueRegex extracts the individual "#<digits>" tokens from a matched
// reference list.
var issueRegex = regexp.MustCompile(`#(\d+)`)

// Commit is a single commit's message parsed into issue references.
// It is immutable after Parse.
type Commit struct {
	SHA     string
	Message string

	// Fixes and Refs hold the issue ids from the subject's reference list,
	// keyed by the action word. Both are empty when the subject does not
	// match the required grammar; that is a policy signal, not an error.
	Fixes map[int]struct{}
	Refs  map[int]struct{}
}

// Parse extracts issue references from a commit message.
// A message whose first line does not match the grammar yields a Commit
// with empty Fixes and Refs.
func Parse(sha, message string) Commit {
	c := Commit{
		SHA:     sha,
		Message: message,
		Fixes:   map[int]struct{}{},
		Refs:    map[int]struct{}{},
	}

	m := validSummaryRegex.FindStringSubmatch(c.Subject())
	if m == nil {
		return c
	}

	action := c.Refs
	if strings.EqualFold(m[validSummaryRegex.SubexpIndex("action")], "fixes") {
		action = c.Fixes
	}

	for _, tok := range issueRegex.FindAllStringSubmatch(m[validSummaryRegex.SubexpIndex("issues")], -1) {
		// The grammar only admits digit runs, so this cannot fail.
		id, err := strconv.Atoi(tok[1])
		if err != nil {
			continue
		}
		action[id] = struct{}{}
	}

	return c
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return subject
}

// References returns the union of Fixes and Refs.
func (c Commit) References() map[int]struct{} {
	refs := make(map[int]struct{}, len(c.Fixes)+len(c.Refs))
	for id := range c.Fixes {
		refs[id] = struct{}{}
	}
	for id := range c.Refs {
		refs[id] = struct{}{}
	}
	return refs
}

// HasReferences reports whether the commit references any issue.
func (c Commit) HasReferences() bool {
	return len(c.Fixes) > 0 || len(c.Refs) > 0
}
