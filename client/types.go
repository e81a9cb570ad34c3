// Package client implements the reader-side comment engine: paginated scope
// views over the comment API, a depth-bounded reply tree, the anti-abuse
// challenge protocol for posting, and cross-view cache consistency after
// writes. One Engine is constructed per session and owns all cached state.
package client

import (
	"html"
	"time"
)

type Sort string

const (
	SortAsc  Sort = "asc"
	SortDesc Sort = "desc"
)

type ScopeKind string

const (
	ScopeChapter   ScopeKind = "chapter"
	ScopeSeries    ScopeKind = "series"
	ScopeAggregate ScopeKind = "aggregate"
)

// Scope identifies one comment timeline: a single chapter, the series
// itself, or the server-merged aggregate of both for a series.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func ChapterScope(chapterID string) Scope {
	return Scope{Kind: ScopeChapter, ID: chapterID}
}

func SeriesScope(seriesID string) Scope {
	return Scope{Kind: ScopeSeries, ID: seriesID}
}

func AggregateScope(seriesID string) Scope {
	return Scope{Kind: ScopeAggregate, ID: seriesID}
}

// String renders the wire form of the scope ("chapter:<id>" etc). It also
// serves as the cache key for scope-level state.
func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reply is a second-level comment. It deliberately has no Replies field:
// depth past one level cannot survive decoding, so a malformed payload with
// deeper nesting flattens to nothing rather than recursing.
type Reply struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	CommentableType string    `json:"commentableType"`
	CommentableID   string    `json:"commentableId"`
	ParentID        string    `json:"parentId"`
	Author          Author    `json:"author"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CommentContext is provenance shown only in the aggregate view: which
// chapter or series the comment came from, with a human label.
type CommentContext struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Comment is a top-level comment with an embedded reply preview.
// RepliesCount is authoritative and may exceed len(Replies) when the
// preview was truncated; LoadReplies completes the thread.
type Comment struct {
	ID              string          `json:"id"`
	Content         string          `json:"content"`
	CommentableType string          `json:"commentableType"`
	CommentableID   string          `json:"commentableId"`
	Author          Author          `json:"author"`
	CreatedAt       time.Time       `json:"createdAt"`
	Replies         []Reply         `json:"replies"`
	RepliesCount    int             `json:"repliesCount"`
	Context         *CommentContext `json:"context,omitempty"`
}

// DisplayContent returns the comment text escaped for rendering. Content is
// stored verbatim and sanitized on display only.
func (c Comment) DisplayContent() string {
	return html.EscapeString(c.Content)
}

// DisplayContent returns the reply text escaped for rendering.
func (r Reply) DisplayContent() string {
	return html.EscapeString(r.Content)
}

// Challenge is a single-use anti-abuse puzzle issued by the write endpoint.
// It lives only for the duration of one composition attempt.
type Challenge struct {
	Question string `json:"question"`
	Token    string `json:"token"`
}

// PagedView is one cached window of a scope's timeline, replaced wholesale
// on every fetch.
type PagedView struct {
	Items       []Comment `json:"items"`
	TotalCount  int       `json:"totalCount"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
	Sort        Sort      `json:"sort"`
}
