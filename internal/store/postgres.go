package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParentIsReply is returned when a write names a parent comment that
	// is itself a reply. Replies to replies do not exist in this system.
	ErrParentIsReply = errors.New("parent comment is a reply")
	// ErrScopeMismatch is returned when a reply targets a parent attached to
	// a different commentable than the write's scope.
	ErrScopeMismatch = errors.New("parent comment belongs to a different scope")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUser(ctx context.Context, id, displayName string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id, display_name, created_at
	`, id, displayName).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetSeries(ctx context.Context, seriesID string) (Series, error) {
	var item Series
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at FROM series WHERE id=$1
	`, seriesID).Scan(&item.ID, &item.Title, &item.CreatedAt)
	if err != nil {
		return Series{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetChapter(ctx context.Context, chapterID string) (Chapter, error) {
	var item Chapter
	err := s.db.QueryRowContext(ctx, `
		SELECT id, series_id, title, number, created_at FROM chapters WHERE id=$1
	`, chapterID).Scan(&item.ID, &item.SeriesID, &item.Title, &item.Number, &item.CreatedAt)
	if err != nil {
		return Chapter{}, err
	}
	return item, nil
}

func (s *PostgresStore) SeriesCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM series`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count series: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertSeries(ctx context.Context, item Series) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO series (id, title) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Title)
	if err != nil {
		return fmt.Errorf("insert series: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertChapter(ctx context.Context, item Chapter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (id, series_id, title, number) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.SeriesID, item.Title, item.Number)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	return nil
}

// scopeFilter builds the WHERE fragment selecting comments visible to a
// scope. The aggregate scope is computed here, in one query over both
// sources, so totals and page boundaries are correct by construction.
func scopeFilter(scope Scope) (string, error) {
	switch scope.Type {
	case "chapter":
		return `c.commentable_type = 'chapter' AND c.commentable_id = $1`, nil
	case "series":
		return `c.commentable_type = 'series' AND c.commentable_id = $1`, nil
	case "aggregate":
		return `((c.commentable_type = 'series' AND c.commentable_id = $1)
			OR (c.commentable_type = 'chapter' AND c.commentable_id IN (
				SELECT id FROM chapters WHERE series_id = $1)))`, nil
	default:
		return "", fmt.Errorf("unknown scope type %q", scope.Type)
	}
}

// CommentPage returns one window of top-level comments for a scope together
// with the total count over the whole scope. Each item carries up to
// replyLimit embedded replies and the authoritative reply count. sort must
// be "asc" or "desc" (validated by the caller).
func (s *PostgresStore) CommentPage(ctx context.Context, scope Scope, sort string, limit, offset, replyLimit int) (CommentPage, error) {
	filter, err := scopeFilter(scope)
	if err != nil {
		return CommentPage{}, err
	}

	direction := "ASC"
	if sort == "desc" {
		direction = "DESC"
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM comments c WHERE ` + filter + ` AND c.parent_id IS NULL`
	if err := s.db.QueryRowContext(ctx, countQuery, scope.ID).Scan(&total); err != nil {
		return CommentPage{}, fmt.Errorf("count comments: %w", err)
	}

	pageQuery := `
		SELECT c.id, c.commentable_type, c.commentable_id, c.author_id, u.display_name,
			c.content, c.created_at,
			COALESCE(ch.title, ser.title, '')
		FROM comments c
		JOIN users u ON u.id = c.author_id
		LEFT JOIN chapters ch ON c.commentable_type = 'chapter' AND ch.id = c.commentable_id
		LEFT JOIN series ser ON c.commentable_type = 'series' AND ser.id = c.commentable_id
		WHERE ` + filter + ` AND c.parent_id IS NULL
		ORDER BY c.created_at ` + direction + `, c.id ` + direction + `
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, pageQuery, scope.ID, limit, offset)
	if err != nil {
		return CommentPage{}, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.CommentableType, &item.CommentableID,
			&item.AuthorID, &item.AuthorName, &item.Content, &item.CreatedAt,
			&item.SourceLabel); err != nil {
			return CommentPage{}, fmt.Errorf("scan comment: %w", err)
		}
		if scope.Type != "aggregate" {
			item.SourceLabel = ""
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return CommentPage{}, fmt.Errorf("iterate comments: %w", err)
	}

	if err := s.attachReplies(ctx, items, replyLimit); err != nil {
		return CommentPage{}, err
	}

	return CommentPage{Items: items, TotalCount: total}, nil
}

// attachReplies fills RepliesCount and a replyLimit-bounded reply preview for
// each top-level comment in items, oldest reply first.
func (s *PostgresStore) attachReplies(ctx context.Context, items []Comment, replyLimit int) error {
	if len(items) == 0 {
		return nil
	}

	placeholders := make([]string, len(items))
	args := make([]any, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = items[i].ID
		index[items[i].ID] = i
	}

	query := `
		SELECT c.id, c.commentable_type, c.commentable_id, c.parent_id,
			c.author_id, u.display_name, c.content, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.parent_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY c.created_at ASC, c.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reply Comment
		if err := rows.Scan(&reply.ID, &reply.CommentableType, &reply.CommentableID,
			&reply.ParentID, &reply.AuthorID, &reply.AuthorName, &reply.Content,
			&reply.CreatedAt); err != nil {
			return fmt.Errorf("scan reply: %w", err)
		}
		if reply.ParentID == nil {
			continue
		}
		i, ok := index[*reply.ParentID]
		if !ok {
			continue
		}
		items[i].RepliesCount++
		if replyLimit <= 0 || len(items[i].Replies) < replyLimit {
			items[i].Replies = append(items[i].Replies, reply)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate replies: %w", err)
	}
	return nil
}

// ListReplies returns the full ordered reply list for one parent comment.
func (s *PostgresStore) ListReplies(ctx context.Context, parentID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.commentable_type, c.commentable_id, c.parent_id,
			c.author_id, u.display_name, c.content, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.parent_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var reply Comment
		if err := rows.Scan(&reply.ID, &reply.CommentableType, &reply.CommentableID,
			&reply.ParentID, &reply.AuthorID, &reply.AuthorName, &reply.Content,
			&reply.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		items = append(items, reply)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.commentable_type, c.commentable_id, c.parent_id,
			c.author_id, u.display_name, c.content, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id = $1
	`, commentID).Scan(&item.ID, &item.CommentableType, &item.CommentableID,
		&item.ParentID, &item.AuthorID, &item.AuthorName, &item.Content, &item.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

// InsertComment stores a new comment. When the comment is a reply the parent
// must exist, be top-level, and be attached to the same commentable; the
// depth bound of the whole tree rests on this check.
func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if item.ParentID != nil {
		var parent Comment
		err := tx.QueryRowContext(ctx, `
			SELECT id, commentable_type, commentable_id, parent_id
			FROM comments WHERE id = $1
		`, *item.ParentID).Scan(&parent.ID, &parent.CommentableType,
			&parent.CommentableID, &parent.ParentID)
		if err != nil {
			return err
		}
		if parent.ParentID != nil {
			return ErrParentIsReply
		}
		if parent.CommentableType != item.CommentableType || parent.CommentableID != item.CommentableID {
			return ErrScopeMismatch
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, commentable_type, commentable_id, parent_id, author_id, content)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.CommentableType, item.CommentableID, item.ParentID,
		item.AuthorID, item.Content); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert comment: %w", err)
	}
	return nil
}
