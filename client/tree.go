package client

// autoExpandRepliesMax is the reply count at or below which a thread starts
// expanded. Presentation tuning, not a correctness requirement.
const autoExpandRepliesMax = 3

// Thread is one render-ready top-level comment. The depth bound is carried
// by the types: Replies are Reply values, which cannot hold replies of
// their own.
type Thread struct {
	Comment  Comment
	Expanded bool
	// HasMoreReplies is set when the authoritative count exceeds the
	// embedded preview; MissingReplies is how many are not loaded. The
	// "show N more replies" affordance is driven by these, never by
	// len(Replies).
	HasMoreReplies bool
	MissingReplies int
}

// TreeBuilder turns pages of comments into threads and remembers explicit
// expand/collapse choices across rebuilds. Toggling is a pure local state
// transition; it never issues a request.
type TreeBuilder struct {
	choices map[string]bool
}

func NewTreeBuilder() *TreeBuilder {
	return &TreeBuilder{choices: make(map[string]bool)}
}

// Build annotates one page of top-level comments. A comment the user has
// toggled keeps that choice; otherwise small threads start expanded and
// large ones collapsed.
func (b *TreeBuilder) Build(items []Comment) []Thread {
	threads := make([]Thread, 0, len(items))
	for _, item := range items {
		expanded, chosen := b.choices[item.ID]
		if !chosen {
			expanded = item.RepliesCount <= autoExpandRepliesMax
		}
		missing := item.RepliesCount - len(item.Replies)
		if missing < 0 {
			missing = 0
		}
		threads = append(threads, Thread{
			Comment:        item,
			Expanded:       expanded,
			HasMoreReplies: missing > 0,
			MissingReplies: missing,
		})
	}
	return threads
}

// Toggle flips the expand state for a comment and records the choice.
func (b *TreeBuilder) Toggle(threads []Thread, commentID string) []Thread {
	for i := range threads {
		if threads[i].Comment.ID == commentID {
			threads[i].Expanded = !threads[i].Expanded
			b.choices[commentID] = threads[i].Expanded
		}
	}
	return threads
}

// Complete replaces a thread's reply preview with the full list, clearing
// the more-replies state. Used after LoadReplies.
func Complete(thread Thread, replies []Reply) Thread {
	thread.Comment.Replies = replies
	if len(replies) > thread.Comment.RepliesCount {
		thread.Comment.RepliesCount = len(replies)
	}
	thread.HasMoreReplies = false
	thread.MissingReplies = 0
	return thread
}
