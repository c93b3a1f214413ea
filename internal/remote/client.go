// Package remote implements the REST client for the issue service. It
// satisfies the store's FetchClient and MutationService contracts; retry,
// backoff, and error classification live here so the collection layer only
// ever sees a settled success or failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trellishq/trellis/internal/filters"
	"github.com/trellishq/trellis/internal/telemetry"
	"github.com/trellishq/trellis/internal/types"
)

const (
	// DefaultTimeout bounds a single request attempt.
	DefaultTimeout = 30 * time.Second
	// retryMaxElapsed bounds the whole retry window for one call.
	retryMaxElapsed = 20 * time.Second
)

// ErrNotFound maps a 404 from any endpoint.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s (status %d)", e.Body, e.StatusCode)
}

// Client talks to the issue service REST API.
type Client struct {
	BaseURL     string
	Token       string
	WorkspaceID string
	HTTPClient  *http.Client
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithWorkspace returns a new client bound to a workspace.
func (c *Client) WithWorkspace(workspaceID string) *Client {
	return &Client{
		BaseURL:     c.BaseURL,
		Token:       c.Token,
		WorkspaceID: workspaceID,
		HTTPClient:  c.HTTPClient,
	}
}

func newRequestBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// retryableStatus reports whether a response status is worth retrying.
// Rate limits retry for every method; transient gateway failures retry only
// for GET, since a mutation may have been applied before the failure.
func retryableStatus(method string, status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if method != http.MethodGet {
		return false
	}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// request sends one API call, retrying transient failures with exponential
// backoff. The body is re-marshaled per attempt. Each call gets a client
// span covering all retry attempts.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	ctx, span := telemetry.Tracer("remote").Start(ctx, "remote."+method,
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	var respBody []byte
	attempt := func() error {
		var bodyReader io.Reader
		if body != nil {
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("marshal request body: %w", err))
			}
			bodyReader = bytes.NewReader(jsonBody)
		}

		fullURL := c.BaseURL + path
		if len(query) > 0 {
			fullURL += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			// Connection-level failures are ambiguous for mutations: the
			// server may have applied the change. Only reads retry.
			if method == http.MethodGet {
				return err
			}
			return backoff.Permanent(err)
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			respBody = data
			return nil
		}
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, ErrNotFound))
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if retryableStatus(method, resp.StatusCode) {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if err := backoff.Retry(attempt, backoff.WithContext(newRequestBackoff(), ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return respBody, nil
}

// scopePath returns the issue listing path for a scope.
func (c *Client) scopePath(scope types.Scope) (string, error) {
	ws := url.PathEscape(scope.WorkspaceID)
	switch scope.Kind {
	case types.ScopeProject:
		return fmt.Sprintf("/workspaces/%s/projects/%s/issues", ws, url.PathEscape(scope.ProjectID)), nil
	case types.ScopeSprint:
		return fmt.Sprintf("/workspaces/%s/sprints/%s/issues", ws, url.PathEscape(scope.SprintID)), nil
	case types.ScopeEpic:
		return fmt.Sprintf("/workspaces/%s/epics/%s/issues", ws, url.PathEscape(scope.EpicID)), nil
	case types.ScopeArchived:
		return fmt.Sprintf("/workspaces/%s/projects/%s/archived-issues", ws, url.PathEscape(scope.ProjectID)), nil
	case types.ScopeWorkspaceView:
		return fmt.Sprintf("/workspaces/%s/views/%s/issues", ws, url.PathEscape(scope.ViewID)), nil
	}
	return "", fmt.Errorf("unsupported scope kind %q", scope.Kind)
}

// FetchPage retrieves one page of issues for a scope. The compiled filter
// parameters go on the query string as-is; cursor is empty for the first
// page.
func (c *Client) FetchPage(ctx context.Context, scope types.Scope, params filters.Params, cursor string) (*types.Page, error) {
	path, err := c.scopePath(scope)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	if cursor != "" {
		query.Set(filters.ParamCursor, cursor)
	}

	resp, err := c.request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch issues for %s: %w", scope.Key(), err)
	}
	var page types.Page
	if err := json.Unmarshal(resp, &page); err != nil {
		return nil, fmt.Errorf("parse issue page: %w", err)
	}
	return &page, nil
}

func (c *Client) projectIssuesPath(projectID string) string {
	return fmt.Sprintf("/workspaces/%s/projects/%s/issues", url.PathEscape(c.WorkspaceID), url.PathEscape(projectID))
}

// Create creates an issue and returns the server record, including the
// assigned id.
func (c *Client) Create(ctx context.Context, projectID string, payload map[string]any) (*types.Issue, error) {
	resp, err := c.request(ctx, http.MethodPost, c.projectIssuesPath(projectID), nil, payload)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	var issue types.Issue
	if err := json.Unmarshal(resp, &issue); err != nil {
		return nil, fmt.Errorf("parse created issue: %w", err)
	}
	return &issue, nil
}

// Update patches scalar fields on an issue and returns the updated record.
func (c *Client) Update(ctx context.Context, projectID, issueID string, payload map[string]any) (*types.Issue, error) {
	path := c.projectIssuesPath(projectID) + "/" + url.PathEscape(issueID)
	resp, err := c.request(ctx, http.MethodPatch, path, nil, payload)
	if err != nil {
		return nil, fmt.Errorf("update issue %s: %w", issueID, err)
	}
	var issue types.Issue
	if err := json.Unmarshal(resp, &issue); err != nil {
		return nil, fmt.Errorf("parse updated issue: %w", err)
	}
	return &issue, nil
}

// Delete permanently removes an issue.
func (c *Client) Delete(ctx context.Context, projectID, issueID string) error {
	path := c.projectIssuesPath(projectID) + "/" + url.PathEscape(issueID)
	if _, err := c.request(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete issue %s: %w", issueID, err)
	}
	return nil
}

// Archive moves an issue into the project archive.
func (c *Client) Archive(ctx context.Context, projectID, issueID string) error {
	path := c.projectIssuesPath(projectID) + "/" + url.PathEscape(issueID) + "/archive"
	if _, err := c.request(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("archive issue %s: %w", issueID, err)
	}
	return nil
}

// Restore moves an archived issue back into the live set.
func (c *Client) Restore(ctx context.Context, projectID, issueID string) error {
	path := c.projectIssuesPath(projectID) + "/" + url.PathEscape(issueID) + "/unarchive"
	if _, err := c.request(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("restore issue %s: %w", issueID, err)
	}
	return nil
}

// AddToSprint adds issues to a sprint.
func (c *Client) AddToSprint(ctx context.Context, sprintID string, issueIDs []string) error {
	path := fmt.Sprintf("/workspaces/%s/sprints/%s/issues", url.PathEscape(c.WorkspaceID), url.PathEscape(sprintID))
	body := map[string]any{"issue_ids": issueIDs}
	if _, err := c.request(ctx, http.MethodPost, path, nil, body); err != nil {
		return fmt.Errorf("add issues to sprint %s: %w", sprintID, err)
	}
	return nil
}

// RemoveFromSprint removes one issue from a sprint.
func (c *Client) RemoveFromSprint(ctx context.Context, sprintID, issueID string) error {
	path := fmt.Sprintf("/workspaces/%s/sprints/%s/issues/%s",
		url.PathEscape(c.WorkspaceID), url.PathEscape(sprintID), url.PathEscape(issueID))
	if _, err := c.request(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove issue %s from sprint %s: %w", issueID, sprintID, err)
	}
	return nil
}

// ChangeEpics adjusts an issue's epic memberships in one call.
func (c *Client) ChangeEpics(ctx context.Context, issueID string, add, remove []string) error {
	path := fmt.Sprintf("/workspaces/%s/issues/%s/epics", url.PathEscape(c.WorkspaceID), url.PathEscape(issueID))
	body := map[string]any{}
	if len(add) > 0 {
		body["add"] = add
	}
	if len(remove) > 0 {
		body["remove"] = remove
	}
	if _, err := c.request(ctx, http.MethodPost, path, nil, body); err != nil {
		return fmt.Errorf("change epics for issue %s: %w", issueID, err)
	}
	return nil
}
