package collab

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func newTestStore() *Store {
	return NewStore("sess-1", "me", fixedNow)
}

func TestStoreSessionState(t *testing.T) {
	store := newTestStore()
	if got := store.Snapshot().Status; got != StatusPreparing {
		t.Fatalf("initial status = %s, want %s", got, StatusPreparing)
	}

	store.Apply(&SessionState{
		Code:     strPtr("def twoSum(nums, target):\n    pass\n"),
		Language: "python",
		Users: []User{
			{UserID: "me", Username: "Me"},
			{UserID: "u2", Username: "Alice"},
		},
	})

	snap := store.Snapshot()
	if snap.Status != StatusReady {
		t.Fatalf("status = %s, want %s", snap.Status, StatusReady)
	}
	if snap.Code == "" || snap.Language != "python" {
		t.Fatalf("session state not absorbed: code=%q language=%q", snap.Code, snap.Language)
	}
	if len(snap.Participants) != 2 {
		t.Fatalf("got %d participants, want 2", len(snap.Participants))
	}
}

func TestStoreSessionStateAbsentCodeKeepsLocal(t *testing.T) {
	store := newTestStore()
	store.Apply(&CodeUpdate{Code: "local code"})

	// A snapshot without a code field must not clear what we have.
	store.Apply(&SessionState{Users: []User{{UserID: "me", Username: "Me"}}})
	if got := store.Snapshot().Code; got != "local code" {
		t.Fatalf("code = %q, want local code preserved", got)
	}

	// An explicitly empty code field does clear it.
	store.Apply(&SessionState{Code: strPtr(""), Users: []User{{UserID: "me", Username: "Me"}}})
	if got := store.Snapshot().Code; got != "" {
		t.Fatalf("code = %q, want cleared", got)
	}
}

func TestStoreCodeUpdateLastWriterWins(t *testing.T) {
	store := newTestStore()
	store.Apply(&CodeUpdate{Code: "v1"})
	store.Apply(&CodeUpdate{Code: "v2"})
	if got := store.Snapshot().Code; got != "v2" {
		t.Fatalf("code = %q, want v2", got)
	}
}

func TestStoreChatMessageResolvesName(t *testing.T) {
	store := newTestStore()
	store.Apply(&Introduce{UserID: "u2", Username: "Alice"})

	store.Apply(&ChatMessage{UserID: "u2", Text: "hello"})
	store.Apply(&ChatMessage{UserID: "ghost", Text: "boo"})

	snap := store.Snapshot()
	var chat []ChatEntry
	for _, e := range snap.Chat {
		if !e.System {
			chat = append(chat, e)
		}
	}
	if len(chat) != 2 {
		t.Fatalf("got %d chat entries, want 2", len(chat))
	}
	if chat[0].Username != "Alice" {
		t.Fatalf("known sender resolved to %q, want Alice", chat[0].Username)
	}
	if chat[1].Username != "Someone" {
		t.Fatalf("unknown sender resolved to %q, want Someone", chat[1].Username)
	}
	if chat[0].Timestamp.IsZero() {
		t.Fatalf("missing timestamp was not stamped locally")
	}
}

func TestStoreUserJoinedAndLeft(t *testing.T) {
	store := newTestStore()
	store.Apply(&SessionState{Users: []User{{UserID: "me", Username: "Me"}}})
	store.Apply(&UserJoined{UserID: "u2", Username: "Alice"})

	snap := store.Snapshot()
	if len(snap.Participants) != 2 {
		t.Fatalf("got %d participants after join, want 2", len(snap.Participants))
	}

	// A repeated join for the same user must not duplicate or re-announce.
	before := len(snap.Chat)
	store.Apply(&UserJoined{UserID: "u2", Username: "Alice"})
	snap = store.Snapshot()
	if len(snap.Participants) != 2 {
		t.Fatalf("duplicate join changed participant count to %d", len(snap.Participants))
	}
	if len(snap.Chat) != before {
		t.Fatalf("duplicate join produced chat lines")
	}

	store.Apply(&UserLeft{UserID: "u2"})
	snap = store.Snapshot()
	if len(snap.Participants) != 1 {
		t.Fatalf("got %d participants after leave, want 1", len(snap.Participants))
	}
	if snap.PartnerLeft {
		t.Fatalf("plain leave set the partner-left flag")
	}
}

func TestStorePartnerLeftReleasesLocks(t *testing.T) {
	store := newTestStore()
	store.Apply(&SessionState{Users: []User{
		{UserID: "me", Username: "Me"},
		{UserID: "u2", Username: "Alice"},
	}})
	store.Apply(&LineLockGranted{Line: 3, UserID: "u2"})
	store.Apply(&LineLockGranted{Line: 7, UserID: "me"})

	store.Apply(&PartnerLeft{UserID: "u2"})

	snap := store.Snapshot()
	if !snap.PartnerLeft {
		t.Fatalf("partner-left flag not set")
	}
	if _, held := snap.LineLocks[3]; held {
		t.Fatalf("departed partner's lock on line 3 survived")
	}
	if holder := snap.LineLocks[7]; holder != "me" {
		t.Fatalf("own lock on line 7 lost, holder=%q", holder)
	}
}

func TestStoreLineLockLifecycle(t *testing.T) {
	store := newTestStore()
	store.Apply(&LineLockGranted{Line: 5, UserID: "u2"})
	if holder := store.Snapshot().LineLocks[5]; holder != "u2" {
		t.Fatalf("lock holder = %q, want u2", holder)
	}
	store.Apply(&LineLockReleased{Line: 5})
	if _, held := store.Snapshot().LineLocks[5]; held {
		t.Fatalf("released lock still held")
	}
}

func TestStoreEndSession(t *testing.T) {
	store := newTestStore()
	store.Apply(&EndSession{})
	if !store.Snapshot().Ended {
		t.Fatalf("end_session did not mark the session ended")
	}
}

func TestStoreIgnoresUnknownEnvelope(t *testing.T) {
	store := newTestStore()
	store.Apply(&SessionState{Users: []User{{UserID: "me", Username: "Me"}}})
	before := store.Snapshot()

	store.Apply(&Unknown{Type: "future_thing"})

	after := store.Snapshot()
	if after.Status != before.Status || len(after.Participants) != len(before.Participants) {
		t.Fatalf("unknown envelope mutated the session")
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	store := newTestStore()
	store.Apply(&SessionState{Users: []User{{UserID: "me", Username: "Me"}}})

	snap := store.Snapshot()
	snap.Participants[0].Username = "mutated"
	snap.LineLocks[99] = "mutated"
	snap.Chat = append(snap.Chat, ChatEntry{Text: "mutated", Timestamp: time.Now()})

	fresh := store.Snapshot()
	if fresh.Participants[0].Username == "mutated" {
		t.Fatalf("snapshot shares participant backing array with the store")
	}
	if _, ok := fresh.LineLocks[99]; ok {
		t.Fatalf("snapshot shares lock map with the store")
	}
}

func TestApplyReturnsAppendedChat(t *testing.T) {
	store := newTestStore()

	added := store.Apply(&ChatMessage{UserID: "u2", Username: "Alice", Text: "hi"})
	if len(added) != 1 || added[0].Text != "hi" || added[0].Username != "Alice" {
		t.Fatalf("appended entries = %#v", added)
	}

	if added := store.Apply(&CodeUpdate{Code: "x = 1"}); len(added) != 0 {
		t.Fatalf("code update reported chat entries: %#v", added)
	}
}

func TestApplyTranscriptReplacementReportsNothing(t *testing.T) {
	store := newTestStore()
	store.Apply(&ChatMessage{UserID: "u2", Username: "Alice", Text: "one"})
	store.Apply(&ChatMessage{UserID: "u2", Username: "Alice", Text: "two"})

	// A server replay may carry a transcript shorter than local history.
	added := store.Apply(&SessionState{Chat: []ChatEntry{}})
	if len(added) != 0 {
		t.Fatalf("shrunk transcript reported entries: %#v", added)
	}
	if got := len(store.Snapshot().Chat); got != 0 {
		t.Fatalf("transcript length = %d, want 0", got)
	}

	// The store keeps reducing normally afterwards.
	added = store.Apply(&ChatMessage{UserID: "u2", Username: "Alice", Text: "three"})
	if len(added) != 1 || added[0].Text != "three" {
		t.Fatalf("appended entries after replacement = %#v", added)
	}
}
