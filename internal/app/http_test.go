package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"folio/comments/internal/auth"
	"folio/comments/internal/challenge"
	"folio/comments/internal/store"
)

func newTestServer(t *testing.T, dataStore *fakeStore, challenges *fakeChallenger) *httptest.Server {
	t.Helper()
	service := newTestService(dataStore, challenges)
	srv := httptest.NewServer(NewHTTPServer(service, "*").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func issueTestToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  "usr-1",
		Name: "casey",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func decodeResponse(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, &fakeChallenger{})

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if body["ok"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, &fakeChallenger{})

	resp, err := http.Get(srv.URL + "/api/ready")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		OK     bool           `json:"ok"`
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	decodeResponse(t, resp, &body)
	if !body.OK || body.Status != "ready" {
		t.Errorf("body = %+v", body)
	}
	if _, ok := body.Checks["database"]; !ok {
		t.Error("expected a database check")
	}
	if _, ok := body.Checks["redis"]; !ok {
		t.Error("expected a redis check")
	}
}

func TestGetCommentsEndpoint(t *testing.T) {
	dataStore := &fakeStore{
		commentPage: func(ctx context.Context, scope store.Scope, sort string, limit, offset, replyLimit int) (store.CommentPage, error) {
			return store.CommentPage{
				Items:      []store.Comment{{ID: "cm-1", Content: "hello", CommentableType: "chapter", CommentableID: scope.ID}},
				TotalCount: 1,
			}, nil
		},
	}
	srv := newTestServer(t, dataStore, &fakeChallenger{})

	resp, err := http.Get(srv.URL + "/api/comments?scope=chapter:chp-1&sort=asc&page=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body PageResult
	decodeResponse(t, resp, &body)
	if len(body.Items) != 1 || body.Items[0].ID != "cm-1" || body.Sort != "asc" {
		t.Errorf("body = %+v", body)
	}
}

func TestGetCommentsRejectsBadQuery(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, &fakeChallenger{})

	resp, err := http.Get(srv.URL + "/api/comments?scope=chapter:chp-1&page=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestRepliesEndpoint(t *testing.T) {
	parent := "cm-1"
	dataStore := &fakeStore{
		listReplies: func(ctx context.Context, parentID string) ([]store.Comment, error) {
			return []store.Comment{{ID: "cm-2", ParentID: &parent}}, nil
		},
	}
	srv := newTestServer(t, dataStore, &fakeChallenger{})

	resp, err := http.Get(srv.URL + "/api/comments/cm-1/replies")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Items []ReplyPayload `json:"items"`
	}
	decodeResponse(t, resp, &body)
	if len(body.Items) != 1 || body.Items[0].ParentID != "cm-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestPostCommentRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, &fakeChallenger{})

	resp, err := http.Post(srv.URL+"/api/comments", "application/json",
		strings.NewReader(`{"scope":"chapter:chp-1","content":"hello"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if body["code"] != CodeAuthRequired {
		t.Errorf("code = %v", body["code"])
	}
}

func TestPostCommentEndpoint(t *testing.T) {
	dataStore := &fakeStore{
		getComment: func(ctx context.Context, id string) (store.Comment, error) {
			return store.Comment{ID: id, Content: "hello", AuthorID: "usr-1", AuthorName: "casey"}, nil
		},
	}
	srv := newTestServer(t, dataStore, &fakeChallenger{})

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/comments",
		strings.NewReader(`{"scope":"chapter:chp-1","content":"hello"}`))
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Comment CommentPayload `json:"comment"`
	}
	decodeResponse(t, resp, &body)
	if body.Comment.Content != "hello" || body.Comment.Author.Name != "casey" {
		t.Errorf("comment = %+v", body.Comment)
	}
}

func TestPostCommentGatedResponseShape(t *testing.T) {
	challenges := &fakeChallenger{
		gated: func(ctx context.Context, authorID string) (bool, error) { return true, nil },
		issue: func(ctx context.Context) (challenge.Challenge, error) {
			return challenge.Challenge{Question: "7 + 3 = ?", Token: "ch-t1"}, nil
		},
	}
	srv := newTestServer(t, &fakeStore{}, challenges)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/comments",
		strings.NewReader(`{"scope":"chapter:chp-1","content":"hello"}`))
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	var body struct {
		Code              string `json:"code"`
		Error             string `json:"error"`
		ChallengeRequired bool   `json:"challengeRequired"`
		Challenge         struct {
			Question string `json:"question"`
			Token    string `json:"token"`
		} `json:"challenge"`
	}
	decodeResponse(t, resp, &body)
	if body.Code != CodeChallengeRequired || !body.ChallengeRequired {
		t.Errorf("body = %+v", body)
	}
	if body.Challenge.Question != "7 + 3 = ?" || body.Challenge.Token != "ch-t1" {
		t.Errorf("challenge = %+v", body.Challenge)
	}
}

func TestPostCommentWrongAnswerResponseShape(t *testing.T) {
	challenges := &fakeChallenger{
		verify: func(ctx context.Context, token, answer string) (bool, error) { return false, nil },
		issue: func(ctx context.Context) (challenge.Challenge, error) {
			return challenge.Challenge{Question: "1 + 8 = ?", Token: "ch-t2"}, nil
		},
	}
	srv := newTestServer(t, &fakeStore{}, challenges)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/comments",
		strings.NewReader(`{"scope":"chapter:chp-1","content":"hello","captchaToken":"ch-t1","captchaAnswer":"99"}`))
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	var body struct {
		Code              string `json:"code"`
		ChallengeRequired bool   `json:"challengeRequired"`
		Challenge         struct {
			Token string `json:"token"`
		} `json:"challenge"`
	}
	decodeResponse(t, resp, &body)
	if body.Code != CodeChallengeFailed || !body.ChallengeRequired || body.Challenge.Token != "ch-t2" {
		t.Errorf("body = %+v", body)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, &fakeChallenger{})
	resp, err := http.Get(srv.URL + "/api/unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, &fakeChallenger{})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/comments", nil)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS headers")
	}
}
