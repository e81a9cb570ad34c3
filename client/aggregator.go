package client

import (
	"context"
	"sync"
)

// repository is the read contract the aggregator drives. *Client satisfies
// it; tests substitute fakes.
type repository interface {
	CommentsPage(ctx context.Context, scope Scope, sort Sort, page, pageSize int) (PagedView, error)
}

// View is a snapshot of one scope's current state for the presentation
// layer. Items reflect the current (sort, page) selection.
type View struct {
	Scope        Scope
	Items        []Comment
	TotalCount   int
	CurrentPage  int
	TotalPages   int
	Sort         Sort
	IsLoading    bool
	IsRefreshing bool
	Stale        bool
	Err          error
}

// scopeState is everything the aggregator tracks per scope: the current
// selection, one cached PagedView per sort, and the request sequence used to
// drop superseded responses.
type scopeState struct {
	sort         Sort
	page         int
	cached       map[Sort]PagedView
	hasData      map[Sort]bool
	stale        bool
	isLoading    bool
	isRefreshing bool
	err          error
}

// Aggregator owns the per-scope PagedView cache and drives reads against
// the repository. Each scope's view is replaced atomically on response;
// responses that were superseded by a newer request for the same scope are
// discarded without touching the view.
type Aggregator struct {
	mu       sync.Mutex
	repo     repository
	pageSize int
	scopes   map[string]*scopeState
	seq      map[string]uint64
}

func NewAggregator(repo repository, pageSize int) *Aggregator {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Aggregator{
		repo:     repo,
		pageSize: pageSize,
		scopes:   make(map[string]*scopeState),
		seq:      make(map[string]uint64),
	}
}

func (a *Aggregator) stateLocked(scope Scope) *scopeState {
	key := scope.String()
	state, ok := a.scopes[key]
	if !ok {
		state = &scopeState{
			sort:    SortDesc,
			page:    1,
			cached:  make(map[Sort]PagedView),
			hasData: make(map[Sort]bool),
		}
		a.scopes[key] = state
	}
	return state
}

func (a *Aggregator) snapshotLocked(scope Scope) View {
	state := a.stateLocked(scope)
	view := View{
		Scope:        scope,
		Sort:         state.sort,
		CurrentPage:  state.page,
		IsLoading:    state.isLoading,
		IsRefreshing: state.isRefreshing,
		Stale:        state.stale,
		Err:          state.err,
	}
	if state.hasData[state.sort] {
		cached := state.cached[state.sort]
		view.Items = cached.Items
		view.TotalCount = cached.TotalCount
		view.CurrentPage = cached.CurrentPage
		view.TotalPages = cached.TotalPages
	}
	return view
}

// View returns the current snapshot without touching the network.
func (a *Aggregator) View(scope Scope) View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(scope)
}

// Load returns the scope's view, fetching it if nothing usable is cached or
// the scope has been marked stale. This is the lazy-refetch entry point.
func (a *Aggregator) Load(ctx context.Context, scope Scope) (View, error) {
	a.mu.Lock()
	state := a.stateLocked(scope)
	if state.hasData[state.sort] && !state.stale {
		view := a.snapshotLocked(scope)
		a.mu.Unlock()
		return view, nil
	}
	sort, page := state.sort, state.page
	a.mu.Unlock()

	return a.fetch(ctx, scope, sort, page, false)
}

// SetSort switches the scope's sort order. Any change resets the page to 1
// before the next request: page N of one ordering is meaningless in another.
func (a *Aggregator) SetSort(ctx context.Context, scope Scope, sort Sort) (View, error) {
	a.mu.Lock()
	state := a.stateLocked(scope)
	if state.sort == sort {
		view := a.snapshotLocked(scope)
		a.mu.Unlock()
		return view, nil
	}
	state.sort = sort
	state.page = 1
	delete(state.cached, sort)
	delete(state.hasData, sort)
	a.mu.Unlock()

	return a.fetch(ctx, scope, sort, 1, false)
}

// SetPage moves the scope to another page of the current ordering.
func (a *Aggregator) SetPage(ctx context.Context, scope Scope, page int) (View, error) {
	if page < 1 {
		page = 1
	}
	a.mu.Lock()
	state := a.stateLocked(scope)
	state.page = page
	sort := state.sort
	a.mu.Unlock()

	return a.fetch(ctx, scope, sort, page, false)
}

// Refresh refetches the scope's current selection, keeping the existing
// items visible while the request is in flight.
func (a *Aggregator) Refresh(ctx context.Context, scope Scope) (View, error) {
	a.mu.Lock()
	state := a.stateLocked(scope)
	sort, page := state.sort, state.page
	a.mu.Unlock()

	return a.fetch(ctx, scope, sort, page, true)
}

// Invalidate marks every cached view of the scope stale. Idempotent; the
// data stays visible until the next Load or Refresh replaces it.
func (a *Aggregator) Invalidate(scope Scope) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stateLocked(scope).stale = true
}

// Release drops all state for a scope when its content is unmounted. The
// sequence bump makes any in-flight response for the scope land stale.
func (a *Aggregator) Release(scope Scope) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := scope.String()
	a.seq[key]++
	delete(a.scopes, key)
}

// fetch issues one sequence-tagged request. Latest request wins: if a newer
// request for the same scope was issued while this one was in flight, the
// response is dropped and ErrStaleResponse returned.
func (a *Aggregator) fetch(ctx context.Context, scope Scope, sort Sort, page int, refreshing bool) (View, error) {
	key := scope.String()

	a.mu.Lock()
	a.seq[key]++
	ticket := a.seq[key]
	state := a.stateLocked(scope)
	if refreshing {
		state.isRefreshing = true
	} else {
		state.isLoading = true
	}
	a.mu.Unlock()

	paged, err := a.repo.CommentsPage(ctx, scope, sort, page, a.pageSize)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seq[key] != ticket {
		return a.snapshotLocked(scope), ErrStaleResponse
	}

	state = a.stateLocked(scope)
	state.isLoading = false
	state.isRefreshing = false

	if err != nil {
		// A failed read degrades this view only; cached data and every
		// other scope stay as they were.
		state.err = err
		return a.snapshotLocked(scope), err
	}

	state.err = nil
	state.stale = false
	state.sort = sort
	state.page = paged.CurrentPage
	state.cached[sort] = paged
	state.hasData[sort] = true
	return a.snapshotLocked(scope), nil
}
