package client

import (
	"context"
	"fmt"
	"sync"
)

// WriteEvent is published when a comment write succeeds. It names the scope
// that was written and the series it belongs to; the synchronizer derives
// the full invalidation fan-out from these two keys.
type WriteEvent struct {
	Scope    Scope
	SeriesID string
	Comment  Comment
}

// Synchronizer is the single subscriber to write events. It decides which
// cached views a write made stale and how eagerly each one refetches: the
// scope the user is looking at refreshes immediately, everything else waits
// for its next access.
type Synchronizer struct {
	mu      sync.Mutex
	agg     *Aggregator
	mounted map[string]bool
	pending map[string]bool
}

func NewSynchronizer(agg *Aggregator) *Synchronizer {
	return &Synchronizer{
		agg:     agg,
		mounted: make(map[string]bool),
		pending: make(map[string]bool),
	}
}

// Mount marks a scope as currently visible; Unmount reverses it. Mounted
// scopes are refreshed eagerly after a write.
func (s *Synchronizer) Mount(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted[scope.String()] = true
}

func (s *Synchronizer) Unmount(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mounted, scope.String())
	s.agg.Release(scope)
}

// CommentPosted handles one write event: the written scope and the series
// aggregate go stale; nothing belonging to another series is touched. The
// returned error reports only a failed eager refresh; the write itself has
// already succeeded and must not be re-reported as failed.
func (s *Synchronizer) CommentPosted(ctx context.Context, event WriteEvent) error {
	targets := []Scope{event.Scope}
	if event.SeriesID != "" {
		aggregate := AggregateScope(event.SeriesID)
		if aggregate.String() != event.Scope.String() {
			targets = append(targets, aggregate)
		}
	}

	var refreshErr error
	for _, target := range targets {
		s.agg.Invalidate(target)

		s.mu.Lock()
		key := target.String()
		eager := s.mounted[key] && !s.pending[key]
		if eager {
			s.pending[key] = true
		}
		s.mu.Unlock()

		if !eager {
			continue
		}

		_, err := s.agg.Refresh(ctx, target)

		s.mu.Lock()
		s.pending[key] = false
		s.mu.Unlock()

		if err != nil && err != ErrStaleResponse && refreshErr == nil {
			refreshErr = fmt.Errorf("refresh %s: %w", key, err)
		}
	}
	return refreshErr
}
