package store

import "time"

type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

type Series struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

type Chapter struct {
	ID        string
	SeriesID  string
	Title     string
	Number    int
	CreatedAt time.Time
}

// Scope selects which comments a read targets: one chapter, the series
// itself, or the server-merged aggregate of both for a series.
type Scope struct {
	Type string // "series", "chapter" or "aggregate"
	ID   string
}

// Comment is a stored comment row. Replies are Comment rows whose ParentID
// points at a top-level comment; the write path guarantees a parent is never
// itself a reply, so the tree is at most two levels deep.
type Comment struct {
	ID              string
	CommentableType string // "series" or "chapter"
	CommentableID   string
	ParentID        *string
	AuthorID        string
	AuthorName      string
	Content         string
	CreatedAt       time.Time
	// Populated on reads of top-level comments. RepliesCount is the
	// authoritative total; Replies may be a truncated preview.
	RepliesCount int
	Replies      []Comment
	// Provenance for the aggregate view: a human label for the chapter or
	// series the comment came from. Empty outside the aggregate scope.
	SourceLabel string
}

// CommentPage is one window of top-level comments for a scope, with the
// total computed over the full result set so callers can do page math.
type CommentPage struct {
	Items      []Comment
	TotalCount int
}
