/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package policy maps repositories to their commit-validation policy.
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnconfiguredRepository indicates a repository with no policy entry
// whose owning organization is not allowlisted. It is never retried.
var ErrUnconfiguredRepository = errors.New("repository is unconfigured")

// allowlistedOrganizations may onboard new repositories without an explicit
// policy entry; they get a permissive zero-value Policy.
var allowlistedOrganizations = []string{"theforeman", "Katello"}

// Policy is the validation policy for a single repository.
// Loaded once at startup and read-only thereafter.
type Policy struct {
	// TrackerProject is the Redmine project key issues must belong to.
	// Empty means no project is enforced and verification is skipped.
	TrackerProject string

	// Required makes a commit without any issue reference a finding.
	Required bool

	// ExtraProjects lists additional Redmine project keys whose issues are
	// accepted alongside TrackerProject.
	ExtraProjects []string

	// VersionPrefix narrows fix-version selection on merge, e.g. "deb-".
	VersionPrefix string
}

// Store holds the repository policy table, keyed by "owner/repo".
type Store struct {
	policies map[string]Policy
}

// NewStore builds a Store from an explicit policy table.
func NewStore(policies map[string]Policy) *Store {
	return &Store{policies: policies}
}

// Lookup returns the policy for a repository identified as "owner/repo".
//
// Repositories without an entry are rejected with
// ErrUnconfiguredRepository unless their owner is an allowlisted
// organization, in which case a permissive default policy is returned.
// This lets trusted organizations onboard repositories without upfront
// configuration while rejecting arbitrary external repositories.
func (s *Store) Lookup(repo string) (Policy, error) {
	if p, ok := s.policies[repo]; ok {
		return p, nil
	}

	owner, _, _ := strings.Cut(repo, "/")
	for _, org := range allowlistedOrganizations {
		if owner == org {
			return Policy{}, nil
		}
	}

	return Policy{}, fmt.Errorf("%w: %s (owner %s not allowlisted)", ErrUnconfiguredRepository, repo, owner)
}

// repoEntry mirrors one entry of repos.yaml.
type repoEntry struct {
	Redmine              string   `yaml:"redmine"`
	RedmineRequired      bool     `yaml:"redmine_required"`
	Refs                 []string `yaml:"refs"`
	RedmineVersionPrefix string   `yaml:"redmine_version_prefix"`
}

// LoadStore reads the repository policy table from a YAML file.
func LoadStore(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return ParseStore(raw)
}

// ParseStore builds a Store from raw repos.yaml content.
func ParseStore(raw []byte) (*Store, error) {
	var entries map[string]repoEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshaling policy file: %w", err)
	}

	policies := make(map[string]Policy, len(entries))
	for repo, e := range entries {
		policies[repo] = Policy{
			TrackerProject: e.Redmine,
			Required:       e.RedmineRequired,
			ExtraProjects:  e.Refs,
			VersionPrefix:  e.RedmineVersionPrefix,
		}
	}
	return NewStore(policies), nil
}

// LoadUsers reads the GitHub login to Redmine user id table from a YAML
// file. The assignee sync consults it for PR authors.
func LoadUsers(path string) (map[string]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}

	var users map[string]int
	if err := yaml.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("unmarshaling users file: %w", err)
	}
	return users, nil
}
