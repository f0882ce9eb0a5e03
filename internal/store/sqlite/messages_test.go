package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat-server/internal/store"
)

func seedConversation(t *testing.T, s *Store) (*store.Conversation, *store.User, *store.User) {
	t.Helper()

	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	conv, err := s.GetOrCreateConversation(context.Background(), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv, alice, bob
}

func createText(t *testing.T, s *Store, conv *store.Conversation, sender *store.User, text string) *store.Message {
	t.Helper()

	msg, err := s.CreateMessage(context.Background(), conv.ID, sender.ID, &text, nil)
	if err != nil {
		t.Fatalf("create message %q: %v", text, err)
	}
	return msg
}

// walk pages through the conversation with the given page size until
// exhaustion, returning visited message IDs in order.
func walk(t *testing.T, s *Store, convID uuid.UUID, pageSize int) []uuid.UUID {
	t.Helper()

	var visited []uuid.UUID
	var cursor *store.Cursor
	for {
		page, err := s.ListMessages(context.Background(), convID, pageSize, cursor)
		if err != nil {
			t.Fatalf("list messages: %v", err)
		}
		if len(page) == 0 {
			return visited
		}
		for _, msg := range page {
			visited = append(visited, msg.ID)
		}
		parsed, err := store.ParseCursor(store.CursorFor(page[len(page)-1]))
		if err != nil {
			t.Fatalf("parse continuation cursor: %v", err)
		}
		cursor = parsed
	}
}

func TestListMessagesReverseChronological(t *testing.T) {
	s := newTestStore(t)
	conv, alice, bob := seedConversation(t, s)

	m1 := createText(t, s, conv, alice, "one")
	m2 := createText(t, s, conv, bob, "two")
	m3 := createText(t, s, conv, alice, "three")

	page, err := s.ListMessages(context.Background(), conv.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page))
	}
	for i, want := range []uuid.UUID{m3.ID, m2.ID, m1.ID} {
		if page[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, page[i].ID)
		}
	}
}

func TestPaginationVisitsEveryMessageExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	conv, alice, _ := seedConversation(t, s)

	const total = 7
	want := make(map[uuid.UUID]struct{}, total)
	for i := 0; i < total; i++ {
		msg := createText(t, s, conv, alice, "m")
		want[msg.ID] = struct{}{}
	}

	visited := walk(t, s, conv.ID, 1)
	if len(visited) != total {
		t.Fatalf("expected %d visits, got %d", total, len(visited))
	}
	seen := make(map[uuid.UUID]struct{}, total)
	for _, id := range visited {
		if _, dup := seen[id]; dup {
			t.Fatalf("message %s visited twice", id)
		}
		seen[id] = struct{}{}
		if _, ok := want[id]; !ok {
			t.Fatalf("unexpected message %s", id)
		}
	}
}

func TestPaginationTieBreakOnEqualTimestamps(t *testing.T) {
	s := newTestStore(t)
	conv, alice, _ := seedConversation(t, s)

	a := createText(t, s, conv, alice, "a")
	b := createText(t, s, conv, alice, "b")
	c := createText(t, s, conv, alice, "c")

	// Force all three onto the same creation instant; only the id
	// tie-break separates them.
	shared := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.db.Exec(`UPDATE messages SET created_at = ?`, shared); err != nil {
		t.Fatalf("collapse timestamps: %v", err)
	}

	visited := walk(t, s, conv.ID, 1)
	if len(visited) != 3 {
		t.Fatalf("tie-broken walk missed messages: visited %d of 3", len(visited))
	}

	seen := map[uuid.UUID]struct{}{}
	for _, id := range visited {
		seen[id] = struct{}{}
	}
	for _, msg := range []*store.Message{a, b, c} {
		if _, ok := seen[msg.ID]; !ok {
			t.Fatalf("message %s skipped under equal timestamps", msg.ID)
		}
	}
}

func TestPaginationIgnoresNewerInsertsMidWalk(t *testing.T) {
	s := newTestStore(t)
	conv, alice, _ := seedConversation(t, s)

	old := make([]uuid.UUID, 0, 4)
	for i := 0; i < 4; i++ {
		old = append(old, createText(t, s, conv, alice, "old").ID)
	}

	// First page.
	page, err := s.ListMessages(context.Background(), conv.ID, 2, nil)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}

	// A message committed mid-walk is newer than the cursor and must not
	// disturb the unvisited tail.
	createText(t, s, conv, alice, "new")

	cursor, err := store.ParseCursor(store.CursorFor(page[len(page)-1]))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	tail, err := s.ListMessages(context.Background(), conv.ID, 10, cursor)
	if err != nil {
		t.Fatalf("tail page: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("expected the 2 remaining old messages, got %d", len(tail))
	}
	if tail[0].ID != old[1] || tail[1].ID != old[0] {
		t.Fatalf("tail out of order: %s, %s", tail[0].ID, tail[1].ID)
	}
}

func TestUpdateMessageKeepsOrderKey(t *testing.T) {
	s := newTestStore(t)
	conv, alice, _ := seedConversation(t, s)

	m1 := createText(t, s, conv, alice, "one")
	m2 := createText(t, s, conv, alice, "two")

	updated, err := s.UpdateMessage(context.Background(), m1.ID, "edited")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.EditedAt == nil || updated.Content == nil || *updated.Content != "edited" {
		t.Fatalf("edit not applied: %+v", updated)
	}

	page, err := s.ListMessages(context.Background(), conv.ID, 10, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page[0].ID != m2.ID || page[1].ID != m1.ID {
		t.Fatal("edit moved the message in the ordering")
	}
}

func TestUpdateDeletedMessageRejected(t *testing.T) {
	s := newTestStore(t)
	conv, alice, _ := seedConversation(t, s)

	msg := createText(t, s, conv, alice, "doomed")
	if _, _, err := s.DeleteMessage(context.Background(), msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := s.UpdateMessage(context.Background(), msg.ID, "too late")
	if !errors.Is(err, store.ErrMessageDeleted) {
		t.Fatalf("expected ErrMessageDeleted, got %v", err)
	}
}

func TestDeleteMessageIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	conv, alice, _ := seedConversation(t, s)

	msg := createText(t, s, conv, alice, "gone")

	first, performed, err := s.DeleteMessage(context.Background(), msg.ID)
	if err != nil || !performed {
		t.Fatalf("first delete: performed=%v err=%v", performed, err)
	}
	if first.DeletedAt == nil {
		t.Fatal("deleted_at not set")
	}

	second, performed, err := s.DeleteMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if performed {
		t.Fatal("repeat delete must be a no-op")
	}
	if !second.DeletedAt.Equal(*first.DeletedAt) {
		t.Fatalf("deleted_at changed on repeat delete: %v != %v", second.DeletedAt, first.DeletedAt)
	}

	// Deleted messages stay in the sequence at their position.
	page, err := s.ListMessages(context.Background(), conv.ID, 10, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].DeletedAt == nil {
		t.Fatalf("soft-deleted message missing from listing: %+v", page)
	}
}

func TestMessageAttachmentsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	conv, alice, _ := seedConversation(t, s)

	atts := []*store.Attachment{
		{Filename: "photo.png", Mime: "image/png", SizeBytes: 2048, StorageKey: "uploads/photo.png"},
		{Filename: "doc.pdf", Mime: "application/pdf", SizeBytes: 4096, StorageKey: "uploads/doc.pdf"},
	}

	msg, err := s.CreateMessage(context.Background(), conv.ID, alice.ID, nil, atts)
	if err != nil {
		t.Fatalf("create with attachments: %v", err)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("expected 2 stored attachments, got %d", len(msg.Attachments))
	}

	loaded, err := s.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if loaded.Content != nil {
		t.Fatal("attachment-only message should have no content")
	}
	if len(loaded.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(loaded.Attachments))
	}
	byName := map[string]*store.Attachment{}
	for _, att := range loaded.Attachments {
		byName[att.Filename] = att
	}
	pdf, ok := byName["doc.pdf"]
	if !ok || pdf.Mime != "application/pdf" || pdf.SizeBytes != 4096 || pdf.StorageKey != "uploads/doc.pdf" {
		t.Fatalf("attachment metadata mangled: %+v", pdf)
	}
}
