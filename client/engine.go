package client

import "context"

// Engine owns the session's comment state: one HTTP client, one view cache,
// one tree builder, one synchronizer. Construct it when a session starts
// and drop it when the session ends; nothing in this package is global.
type Engine struct {
	Client     *Client
	Aggregator *Aggregator
	Trees      *TreeBuilder
	Sync       *Synchronizer
}

func NewEngine(baseURL, token string, pageSize int) *Engine {
	api := NewClient(baseURL, token)
	agg := NewAggregator(api, pageSize)
	return &Engine{
		Client:     api,
		Aggregator: agg,
		Trees:      NewTreeBuilder(),
		Sync:       NewSynchronizer(agg),
	}
}

// NewComposer starts a composition attempt targeting a scope. seriesID is
// the series the scope belongs to (the scope's own ID for series scopes);
// parentID is set when composing a reply. On success the synchronizer is
// notified so the written scope and the series aggregate stay consistent.
func (e *Engine) NewComposer(scope Scope, seriesID string, parentID *string) *Composer {
	return newComposer(e.Client, scope, seriesID, parentID, func(ctx context.Context, comment Comment) {
		// A failed eager refresh leaves the affected view stale with its
		// error recorded on the view; the successful post stands.
		_ = e.Sync.CommentPosted(ctx, WriteEvent{
			Scope:    scope,
			SeriesID: seriesID,
			Comment:  comment,
		})
	})
}
