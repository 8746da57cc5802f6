// Package backend is the client for the platform's REST collaborator. It only
// fetches and acknowledges; all merging happens in the engine.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Shabbin/teaching-platform-sub001/pkg/logger"
	"github.com/Shabbin/teaching-platform-sub001/pkg/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	pageLimit      = 100
	maxRetries     = 3
)

// Client talks to the platform backend over HTTP with bearer-token auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL, token string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log,
	}
}

// statusError carries a non-2xx response status through the retry policy.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.code, e.body)
}

// ConversationsForUser fetches the full conversation snapshot, following the
// cursor until the backend reports no more pages. Payloads stay raw; the
// normalizer owns their shape.
func (c *Client) ConversationsForUser(ctx context.Context, userID, role string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	cursor := ""

	for {
		query := url.Values{
			"userId": {userID},
			"role":   {role},
			"limit":  {strconv.Itoa(pageLimit)},
		}
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page struct {
			Conversations []json.RawMessage `json:"conversations"`
			NextCursor    string            `json:"nextCursor"`
			HasMore       bool              `json:"hasMore"`
		}
		if err := c.do(ctx, "conversations_for_user", http.MethodGet, "/api/conversations", query, nil, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Conversations...)
		if !page.HasMore || page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// MessagesForThread fetches a thread's message history.
func (c *Client) MessagesForThread(ctx context.Context, threadID string) ([]json.RawMessage, error) {
	var resp struct {
		Messages []json.RawMessage `json:"messages"`
	}
	path := "/api/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, "messages_for_thread", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ApproveRequest acknowledges approval of a tuition request.
func (c *Client) ApproveRequest(ctx context.Context, requestID string) error {
	path := "/api/requests/" + url.PathEscape(requestID) + "/approve"
	return c.do(ctx, "approve_request", http.MethodPost, path, nil, struct{}{}, nil)
}

// RejectRequest acknowledges rejection of a tuition request.
func (c *Client) RejectRequest(ctx context.Context, requestID, reason string) error {
	path := "/api/requests/" + url.PathEscape(requestID) + "/reject"
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	return c.do(ctx, "reject_request", http.MethodPost, path, nil, body, nil)
}

// MarkThreadRead acknowledges a thread-read marker server-side.
func (c *Client) MarkThreadRead(ctx context.Context, threadID, userID string) error {
	path := "/api/threads/" + url.PathEscape(threadID) + "/read"
	return c.do(ctx, "mark_thread_read", http.MethodPost, path, nil, map[string]string{"userId": userID}, nil)
}

// do performs one request with retry. Transport failures and 5xx responses
// retry with exponential backoff; 4xx responses are permanent.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	attempt := func() error {
		start := time.Now()
		err := c.once(ctx, method, path, query, payload, out)
		status := "ok"
		if err != nil {
			status = "error"
			if se, ok := err.(*statusError); ok {
				status = strconv.Itoa(se.code)
			}
		}
		metrics.RecordUpstream(operation, status, time.Since(start).Seconds())
		if se, ok := err.(*statusError); ok && se.code >= 400 && se.code < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("backend request retrying",
			zap.String("operation", operation),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(snippet)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
