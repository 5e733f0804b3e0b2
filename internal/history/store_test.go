package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
)

func TestStoreRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	outcome := dispatch.Outcome{
		ID: "share-1",
		Results: map[string]dispatch.Result{
			"x":        {Platform: "x", Success: true, UnitCount: 2, Threaded: true, IDs: []string{"1", "2"}},
			"telegram": {Platform: "telegram", Error: "telegram http 400"},
		},
		Order: []string{"x", "telegram"},
	}
	if err := store.RecordShare(ctx, RecordFromOutcome("10:20", "Hello.", "Hola.", outcome, base)); err != nil {
		t.Fatalf("record: %v", err)
	}
	second := Record{ID: "share-2", ConversationID: "10:21", OriginalText: "Bye.", TranslatedText: "Adiós.", Succeeded: true, CreatedAt: base.Add(time.Minute)}
	if err := store.RecordShare(ctx, second); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	recent, err := store.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "share-2" {
		t.Fatalf("expected newest first, got %#v", recent)
	}
	first := recent[1]
	if first.Succeeded || len(first.Results) != 2 || first.Results[0].Platform != "x" || !first.Results[0].Threaded {
		t.Fatalf("unexpected decoded record: %#v", first)
	}
	if !first.CreatedAt.Equal(base) {
		t.Fatalf("unexpected timestamp %v", first.CreatedAt)
	}
}

func TestStoreRejectsEmptyID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.RecordShare(context.Background(), Record{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
	if _, err := s.Count(context.Background()); err == nil {
		t.Fatalf("expected error from nil store")
	}
}
