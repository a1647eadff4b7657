/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package redmine is a thin client for the Redmine REST API, covering the
// operations the PR processor needs: issue queries, project lookup, version
// listing and partial issue updates.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"
)

// ErrNotFound indicates the requested resource does not exist in Redmine.
// It distinguishes a genuinely missing issue from a transport failure.
var ErrNotFound = errors.New("redmine resource not found")

// Client talks to a single Redmine instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the http.Client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New constructs a Client for the Redmine instance at baseURL.
// The API key may be empty for anonymous read access.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("redmine base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redmine base URL %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the instance address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Issues fetches the given issue ids. Ids with no matching issue are
// silently absent from the result; any transport failure is returned.
//
// The batched issue_id filter sometimes misses issues that do exist, so
// ids missing from the batch response are re-checked individually before
// being treated as absent.
func (c *Client) Issues(ctx context.Context, ids []int) ([]*Issue, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for _, id := range sorted {
		parts = append(parts, strconv.Itoa(id))
	}

	var batch struct {
		Issues []*Issue `json:"issues"`
	}
	query := url.Values{
		"issue_id":  {strings.Join(parts, ",")},
		"status_id": {"*"},
	}
	if err := c.get(ctx, "/issues.json?"+query.Encode(), &batch); err != nil {
		return nil, fmt.Errorf("querying issues %s: %w", query.Get("issue_id"), err)
	}

	found := make(map[int]bool, len(batch.Issues))
	issues := make([]*Issue, 0, len(ids))
	for _, issue := range batch.Issues {
		issue.URL = fmt.Sprintf("%s/issues/%d", c.baseURL, issue.ID)
		found[issue.ID] = true
		issues = append(issues, issue)
	}

	for _, id := range sorted {
		if found[id] {
			continue
		}
		issue, err := c.Issue(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		clog.FromContext(ctx).With("issue", id).Debug("Issue missed by the batched filter")
		issues = append(issues, issue)
	}

	return issues, nil
}

// Issue fetches a single issue by id, ErrNotFound when it does not exist.
func (c *Client) Issue(ctx context.Context, id int) (*Issue, error) {
	var resp struct {
		Issue *Issue `json:"issue"`
	}
	if err := c.get(ctx, fmt.Sprintf("/issues/%d.json", id), &resp); err != nil {
		return nil, fmt.Errorf("fetching issue %d: %w", id, err)
	}
	resp.Issue.URL = fmt.Sprintf("%s/issues/%d", c.baseURL, resp.Issue.ID)
	return resp.Issue, nil
}

// Project fetches a project by its identifier key.
func (c *Client) Project(ctx context.Context, key string) (*Project, error) {
	var resp struct {
		Project *Project `json:"project"`
	}
	if err := c.get(ctx, fmt.Sprintf("/projects/%s.json", url.PathEscape(key)), &resp); err != nil {
		return nil, fmt.Errorf("fetching project %q: %w", key, err)
	}
	resp.Project.URL = fmt.Sprintf("%s/projects/%s", c.baseURL, resp.Project.Identifier)
	return resp.Project, nil
}

// Versions lists all versions of a project, any status.
func (c *Client) Versions(ctx context.Context, projectID int) ([]Version, error) {
	var resp struct {
		Versions []Version `json:"versions"`
	}
	if err := c.get(ctx, fmt.Sprintf("/projects/%d/versions.json", projectID), &resp); err != nil {
		return nil, fmt.Errorf("listing versions of project %d: %w", projectID, err)
	}
	return resp.Versions, nil
}

// UpdateIssue applies a partial update to an issue. Callers must not pass
// an empty update; use IssueUpdate.Empty to guard.
func (c *Client) UpdateIssue(ctx context.Context, id int, update *IssueUpdate) error {
	body, err := json.Marshal(map[string]*IssueUpdate{"issue": update})
	if err != nil {
		return fmt.Errorf("marshaling issue update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/issues/%d.json", c.baseURL, id), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building issue update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("updating issue %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("updating issue %d: %w", id, statusError(resp))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.apiKey != "" {
		req.Header.Set("X-Redmine-API-Key", c.apiKey)
	}
	return c.httpClient.Do(req)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("redmine returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
