package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is the HTTP client for the comment repository. Reads work without
// credentials; writes require a bearer token issued by the identity service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PostCommentInput is one write attempt. CaptchaToken and CaptchaAnswer are
// set only when resubmitting after a challenge.
type PostCommentInput struct {
	Scope         Scope
	Content       string
	ParentID      *string
	CaptchaToken  string
	CaptchaAnswer string
}

// CommentsPage fetches one window of top-level comments for a scope. The
// aggregate scope is computed server-side; this method never merges the
// narrow scopes locally.
func (c *Client) CommentsPage(ctx context.Context, scope Scope, sort Sort, page, pageSize int) (PagedView, error) {
	query := url.Values{}
	query.Set("scope", scope.String())
	query.Set("sort", string(sort))
	query.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}

	var view PagedView
	if err := c.get(ctx, "/api/comments?"+query.Encode(), &view); err != nil {
		return PagedView{}, err
	}
	return view, nil
}

// LoadReplies fetches the full ordered reply list for one parent comment.
func (c *Client) LoadReplies(ctx context.Context, commentID string) ([]Reply, error) {
	var payload struct {
		Items []Reply `json:"items"`
	}
	if err := c.get(ctx, "/api/comments/"+url.PathEscape(commentID)+"/replies", &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// PostComment submits one write attempt. Unauthenticated and empty-content
// attempts are rejected here, before any network traffic.
func (c *Client) PostComment(ctx context.Context, input PostCommentInput) (Comment, error) {
	if c.token == "" {
		return Comment{}, &AuthRequiredError{}
	}
	if strings.TrimSpace(input.Content) == "" {
		return Comment{}, &ValidationError{Reason: "content must not be empty"}
	}

	body := map[string]any{
		"scope":   input.Scope.String(),
		"content": input.Content,
	}
	if input.ParentID != nil {
		body["parentId"] = *input.ParentID
	}
	if input.CaptchaToken != "" {
		body["captchaToken"] = input.CaptchaToken
		body["captchaAnswer"] = input.CaptchaAnswer
	}

	var payload struct {
		Comment Comment `json:"comment"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/comments", body, &payload); err != nil {
		return Comment{}, err
	}
	return payload.Comment, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, resp.Body)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// decodeError maps an error response onto the typed taxonomy.
func decodeError(status int, body io.Reader) error {
	var payload struct {
		Code              string    `json:"code"`
		Message           string    `json:"error"`
		ChallengeRequired bool      `json:"challengeRequired"`
		Challenge         Challenge `json:"challenge"`
	}
	_ = json.NewDecoder(body).Decode(&payload)

	if payload.ChallengeRequired {
		if payload.Code == "CHALLENGE_FAILED" {
			return &ChallengeFailedError{Challenge: payload.Challenge}
		}
		return &ChallengeRequiredError{Challenge: payload.Challenge}
	}

	switch status {
	case http.StatusUnauthorized:
		return &AuthRequiredError{}
	case http.StatusUnprocessableEntity:
		return &ValidationError{Reason: payload.Message}
	}
	return &ServerError{Status: status, Code: payload.Code, Message: payload.Message}
}
