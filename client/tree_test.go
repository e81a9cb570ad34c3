package client

import (
	"encoding/json"
	"testing"
)

func comment(id string, repliesCount int, replies ...Reply) Comment {
	return Comment{
		ID:           id,
		Content:      "body of " + id,
		Replies:      replies,
		RepliesCount: repliesCount,
	}
}

func TestBuildExpandDefaults(t *testing.T) {
	builder := NewTreeBuilder()
	threads := builder.Build([]Comment{
		comment("c1", 2, Reply{ID: "r1"}, Reply{ID: "r2"}),
		comment("c2", 7, Reply{ID: "r3"}),
		comment("c3", 0),
	})

	if !threads[0].Expanded {
		t.Error("expected small thread c1 to start expanded")
	}
	if threads[1].Expanded {
		t.Error("expected large thread c2 to start collapsed")
	}
	if !threads[2].Expanded {
		t.Error("expected reply-less thread c3 to start expanded")
	}
}

func TestBuildMoreRepliesState(t *testing.T) {
	builder := NewTreeBuilder()
	threads := builder.Build([]Comment{
		comment("c1", 7, Reply{ID: "r1"}, Reply{ID: "r2"}),
		comment("c2", 2, Reply{ID: "r3"}, Reply{ID: "r4"}),
	})

	if !threads[0].HasMoreReplies || threads[0].MissingReplies != 5 {
		t.Errorf("c1: HasMoreReplies=%v MissingReplies=%d, want true 5",
			threads[0].HasMoreReplies, threads[0].MissingReplies)
	}
	if threads[1].HasMoreReplies || threads[1].MissingReplies != 0 {
		t.Errorf("c2: HasMoreReplies=%v MissingReplies=%d, want false 0",
			threads[1].HasMoreReplies, threads[1].MissingReplies)
	}
}

func TestToggleSurvivesRebuild(t *testing.T) {
	builder := NewTreeBuilder()
	page := []Comment{comment("c1", 8, Reply{ID: "r1"})}

	threads := builder.Build(page)
	if threads[0].Expanded {
		t.Fatal("expected c1 to start collapsed")
	}

	threads = builder.Toggle(threads, "c1")
	if !threads[0].Expanded {
		t.Fatal("expected toggle to expand c1")
	}

	// A refetch rebuilds the page; the user's choice wins over the default.
	threads = builder.Build(page)
	if !threads[0].Expanded {
		t.Error("expected explicit expand choice to survive rebuild")
	}
}

func TestToggleIsLocalOnly(t *testing.T) {
	builder := NewTreeBuilder()
	threads := builder.Build([]Comment{comment("c1", 1, Reply{ID: "r1"})})
	before := threads[0].Comment

	threads = builder.Toggle(threads, "c1")
	if threads[0].Comment.ID != before.ID || len(threads[0].Comment.Replies) != len(before.Replies) {
		t.Error("expected toggle to leave the comment data untouched")
	}
}

func TestComplete(t *testing.T) {
	thread := Thread{
		Comment:        comment("c1", 5, Reply{ID: "r1"}),
		HasMoreReplies: true,
		MissingReplies: 4,
	}
	full := []Reply{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}, {ID: "r4"}, {ID: "r5"}}

	thread = Complete(thread, full)
	if len(thread.Comment.Replies) != 5 {
		t.Fatalf("expected 5 replies, got %d", len(thread.Comment.Replies))
	}
	if thread.HasMoreReplies || thread.MissingReplies != 0 {
		t.Error("expected more-replies state to clear")
	}
}

// A payload that nests replies inside replies must flatten at decode time:
// the reply type has nowhere to put another level.
func TestDeepNestingCannotRoundTrip(t *testing.T) {
	payload := []byte(`{
		"id": "c1",
		"content": "top",
		"repliesCount": 1,
		"replies": [
			{"id": "r1", "content": "reply", "replies": [
				{"id": "rr1", "content": "reply to reply"}
			]}
		]
	}`)

	var item Comment
	if err := json.Unmarshal(payload, &item); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(item.Replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(item.Replies))
	}

	// Round-trip: the nested level is gone.
	encoded, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal round trip failed: %v", err)
	}
	replies := decoded["replies"].([]any)
	reply := replies[0].(map[string]any)
	if _, ok := reply["replies"]; ok {
		t.Error("expected no replies field on a reply after round trip")
	}
}
