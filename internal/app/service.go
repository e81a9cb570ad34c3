package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"folio/comments/internal/auth"
	"folio/comments/internal/challenge"
	"folio/comments/internal/config"
	"folio/comments/internal/store"
	"folio/comments/internal/util"
)

const (
	maxCommentLength = 4000
	maxPageSize      = 100
)

type Session struct {
	UserID   string
	UserName string
}

// AuthorPayload, ReplyPayload and CommentPayload are the wire shapes for
// comments. A reply structurally has no replies list: depth past one level
// cannot be expressed, let alone returned.
type AuthorPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ReplyPayload struct {
	ID              string        `json:"id"`
	Content         string        `json:"content"`
	CommentableType string        `json:"commentableType"`
	CommentableID   string        `json:"commentableId"`
	ParentID        string        `json:"parentId"`
	Author          AuthorPayload `json:"author"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type ContextPayload struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Label string `json:"label"`
}

type CommentPayload struct {
	ID              string          `json:"id"`
	Content         string          `json:"content"`
	CommentableType string          `json:"commentableType"`
	CommentableID   string          `json:"commentableId"`
	Author          AuthorPayload   `json:"author"`
	CreatedAt       time.Time       `json:"createdAt"`
	Replies         []ReplyPayload  `json:"replies"`
	RepliesCount    int             `json:"repliesCount"`
	Context         *ContextPayload `json:"context,omitempty"`
}

type PageResult struct {
	Items       []CommentPayload `json:"items"`
	TotalCount  int              `json:"totalCount"`
	CurrentPage int              `json:"currentPage"`
	TotalPages  int              `json:"totalPages"`
	Sort        string           `json:"sort"`
}

type ChallengePayload struct {
	Question string `json:"question"`
	Token    string `json:"token"`
}

type PostCommentInput struct {
	Scope         string  `json:"scope"`
	Content       string  `json:"content"`
	ParentID      *string `json:"parentId"`
	CaptchaToken  string  `json:"captchaToken"`
	CaptchaAnswer string  `json:"captchaAnswer"`
}

type dataStore interface {
	EnsureUser(context.Context, string, string) (store.User, error)
	GetSeries(context.Context, string) (store.Series, error)
	GetChapter(context.Context, string) (store.Chapter, error)
	SeriesCount(context.Context) (int, error)
	InsertSeries(context.Context, store.Series) error
	InsertChapter(context.Context, store.Chapter) error
	CommentPage(context.Context, store.Scope, string, int, int, int) (store.CommentPage, error)
	ListReplies(context.Context, string) ([]store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	InsertComment(context.Context, store.Comment) error
	Ping(ctx context.Context) error
}

type challenger interface {
	RecordPost(context.Context, string) error
	Gated(context.Context, string) (bool, error)
	ClearGate(context.Context, string) error
	Issue(context.Context) (challenge.Challenge, error)
	Verify(context.Context, string, string) (bool, error)
	Ping(ctx context.Context) error
}

type Service struct {
	cfg        config.Config
	store      dataStore
	challenges challenger
}

func New(cfg config.Config, dataStore *store.PostgresStore, challenges *challenge.Service) *Service {
	return &Service{
		cfg:        cfg,
		store:      dataStore,
		challenges: challenges,
	}
}

// Bootstrap seeds a demo series with a few chapters on an empty database.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.SeriesCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if err := s.store.InsertSeries(ctx, store.Series{ID: "ser-ashes", Title: "City of Ashes"}); err != nil {
		return err
	}
	chapters := []store.Chapter{
		{ID: "chp-ashes-1", SeriesID: "ser-ashes", Title: "The Lamplighter", Number: 1},
		{ID: "chp-ashes-2", SeriesID: "ser-ashes", Title: "Smoke Over the River", Number: 2},
		{ID: "chp-ashes-3", SeriesID: "ser-ashes", Title: "The Long Stair", Number: 3},
	}
	for _, chapter := range chapters {
		if err := s.store.InsertChapter(ctx, chapter); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingChallenges(ctx context.Context) error {
	return s.challenges.Ping(ctx)
}

// SessionFromToken validates a bearer token issued by the identity service.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.Sub, UserName: claims.Name}, nil
}

// parseScope parses "chapter:<id>", "series:<id>" or "aggregate:<seriesId>".
func parseScope(raw string) (store.Scope, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return store.Scope{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
			fmt.Sprintf("invalid scope %q", raw), nil)
	}
	switch parts[0] {
	case "chapter", "series", "aggregate":
		return store.Scope{Type: parts[0], ID: parts[1]}, nil
	}
	return store.Scope{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
		fmt.Sprintf("invalid scope type %q", parts[0]), nil)
}

// checkScopeTarget verifies the commentable behind a scope exists.
func (s *Service) checkScopeTarget(ctx context.Context, scope store.Scope) error {
	switch scope.Type {
	case "chapter":
		_, err := s.store.GetChapter(ctx, scope.ID)
		return err
	default:
		_, err := s.store.GetSeries(ctx, scope.ID)
		return err
	}
}

// CommentsPage serves one page of top-level comments for a scope. The
// aggregate scope is resolved inside the store in a single query; this
// service never stitches pages together from the narrow scopes.
func (s *Service) CommentsPage(ctx context.Context, rawScope, sort string, page, pageSize int) (PageResult, error) {
	scope, err := parseScope(rawScope)
	if err != nil {
		return PageResult{}, err
	}
	if sort != "asc" && sort != "desc" {
		return PageResult{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
			fmt.Sprintf("invalid sort %q", sort), nil)
	}
	if page < 1 {
		return PageResult{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
			"page must be >= 1", nil)
	}
	if pageSize < 1 {
		pageSize = s.cfg.PageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if err := s.checkScopeTarget(ctx, scope); err != nil {
		return PageResult{}, err
	}

	offset := (page - 1) * pageSize
	result, err := s.store.CommentPage(ctx, scope, sort, pageSize, offset, s.cfg.ReplyPreviewLimit)
	if err != nil {
		return PageResult{}, err
	}

	totalPages := (result.TotalCount + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	items := make([]CommentPayload, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, commentPayload(item, scope.Type == "aggregate"))
	}

	return PageResult{
		Items:       items,
		TotalCount:  result.TotalCount,
		CurrentPage: page,
		TotalPages:  totalPages,
		Sort:        sort,
	}, nil
}

// Replies serves the full reply list for one top-level comment. This is the
// completion path for comments whose embedded reply preview was truncated.
func (s *Service) Replies(ctx context.Context, commentID string) ([]ReplyPayload, error) {
	parent, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if parent.ParentID != nil {
		return nil, domainError(http.StatusUnprocessableEntity, CodeValidation,
			"comment is a reply and has no replies of its own", nil)
	}

	replies, err := s.store.ListReplies(ctx, commentID)
	if err != nil {
		return nil, err
	}
	items := make([]ReplyPayload, 0, len(replies))
	for _, reply := range replies {
		items = append(items, replyPayload(reply))
	}
	return items, nil
}

// PostComment runs one write attempt through the challenge protocol:
// validate, consult the gate, verify or issue a challenge, then store the
// comment. Every challenge rejection carries a freshly issued token.
func (s *Service) PostComment(ctx context.Context, session Session, input PostCommentInput) (CommentPayload, error) {
	if session.UserID == "" {
		return CommentPayload{}, domainError(http.StatusUnauthorized, CodeAuthRequired,
			"authentication required to comment", nil)
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return CommentPayload{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
			"content must not be empty", nil)
	}
	if len(content) > maxCommentLength {
		return CommentPayload{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
			fmt.Sprintf("content exceeds %d characters", maxCommentLength), nil)
	}

	scope, err := parseScope(input.Scope)
	if err != nil {
		return CommentPayload{}, err
	}
	if scope.Type == "aggregate" {
		return CommentPayload{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
			"comments are written to a series or chapter, not the aggregate view", nil)
	}
	if err := s.checkScopeTarget(ctx, scope); err != nil {
		return CommentPayload{}, err
	}

	cleared := false
	if input.CaptchaToken != "" {
		ok, err := s.challenges.Verify(ctx, input.CaptchaToken, strings.TrimSpace(input.CaptchaAnswer))
		if err != nil {
			return CommentPayload{}, err
		}
		if !ok {
			return CommentPayload{}, s.challengeError(ctx, CodeChallengeFailed, "challenge answer rejected")
		}
		cleared = true
	} else {
		gated, err := s.challenges.Gated(ctx, session.UserID)
		if err != nil {
			return CommentPayload{}, err
		}
		if gated {
			return CommentPayload{}, s.challengeError(ctx, CodeChallengeRequired, "a challenge must be solved to post")
		}
	}

	author, err := s.store.EnsureUser(ctx, session.UserID, session.UserName)
	if err != nil {
		return CommentPayload{}, err
	}

	item := store.Comment{
		ID:              util.NewID("cm"),
		CommentableType: scope.Type,
		CommentableID:   scope.ID,
		ParentID:        input.ParentID,
		AuthorID:        author.ID,
		Content:         content,
	}
	if err := s.store.InsertComment(ctx, item); err != nil {
		switch err {
		case store.ErrParentIsReply:
			return CommentPayload{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
				"replies to replies are not supported", nil)
		case store.ErrScopeMismatch:
			return CommentPayload{}, domainError(http.StatusUnprocessableEntity, CodeValidation,
				"parent comment belongs to a different scope", nil)
		}
		return CommentPayload{}, err
	}

	if cleared {
		if err := s.challenges.ClearGate(ctx, session.UserID); err != nil {
			return CommentPayload{}, err
		}
	}
	if err := s.challenges.RecordPost(ctx, session.UserID); err != nil {
		return CommentPayload{}, err
	}

	created, err := s.store.GetComment(ctx, item.ID)
	if err != nil {
		return CommentPayload{}, err
	}
	return commentPayload(created, false), nil
}

// challengeError issues a fresh challenge and wraps it in a 429. Stale
// tokens are never reused: every rejection carries a new one.
func (s *Service) challengeError(ctx context.Context, code, message string) error {
	issued, err := s.challenges.Issue(ctx)
	if err != nil {
		return err
	}
	return domainError(http.StatusTooManyRequests, code, message, ChallengePayload{
		Question: issued.Question,
		Token:    issued.Token,
	})
}

func commentPayload(item store.Comment, withContext bool) CommentPayload {
	replies := make([]ReplyPayload, 0, len(item.Replies))
	for _, reply := range item.Replies {
		replies = append(replies, replyPayload(reply))
	}
	payload := CommentPayload{
		ID:              item.ID,
		Content:         item.Content,
		CommentableType: item.CommentableType,
		CommentableID:   item.CommentableID,
		Author:          AuthorPayload{ID: item.AuthorID, Name: item.AuthorName},
		CreatedAt:       item.CreatedAt,
		Replies:         replies,
		RepliesCount:    item.RepliesCount,
	}
	if withContext {
		payload.Context = &ContextPayload{
			Type:  item.CommentableType,
			ID:    item.CommentableID,
			Label: item.SourceLabel,
		}
	}
	return payload
}

func replyPayload(item store.Comment) ReplyPayload {
	parentID := ""
	if item.ParentID != nil {
		parentID = *item.ParentID
	}
	return ReplyPayload{
		ID:              item.ID,
		Content:         item.Content,
		CommentableType: item.CommentableType,
		CommentableID:   item.CommentableID,
		ParentID:        parentID,
		Author:          AuthorPayload{ID: item.AuthorID, Name: item.AuthorName},
		CreatedAt:       item.CreatedAt,
	}
}
