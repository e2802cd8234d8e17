package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, store DocumentStore, observer func(ChangeEvent)) *Cache {
	t.Helper()
	cache, err := NewCache(CacheConfig{
		Store:      store,
		Clock:      fixedClock(time.UnixMilli(1700000005000)),
		IDProvider: &sequenceIDProvider{ids: []string{"new-1", "new-2"}},
		Observer:   observer,
	})
	if err != nil {
		t.Fatalf("failed to construct cache: %v", err)
	}
	return cache
}

func TestCacheLoadSeedsWelcomeNote(t *testing.T) {
	store := newMemoryStore()
	cache := newTestCache(t, store, nil)

	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	listed := cache.List()
	if len(listed) != 1 || listed[0].ID != WelcomeNoteID {
		t.Fatalf("expected welcome note, got %#v", listed)
	}
	if _, ok := store.record(WelcomeNoteID); !ok {
		t.Fatalf("expected welcome note to be persisted")
	}
}

func TestCacheLoadRunsMigrationFirst(t *testing.T) {
	store := newMemoryStore()
	migrator, err := NewMigrator(MigratorConfig{Store: store, Source: StaticLegacySource(legacyBlob)})
	if err != nil {
		t.Fatalf("failed to construct migrator: %v", err)
	}
	cache, err := NewCache(CacheConfig{Store: store, Migrator: migrator, IDProvider: NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct cache: %v", err)
	}

	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	listed := cache.List()
	if len(listed) != 2 {
		t.Fatalf("expected migrated notes without welcome seed, got %#v", listed)
	}
	if listed[0].ID != "legacy-2" {
		t.Fatalf("expected most recently updated note first, got %s", listed[0].ID)
	}
}

func TestCacheCreatePrependsAndPersists(t *testing.T) {
	store := newMemoryStore(sampleNote("existing", "Existing"))
	var events []ChangeEvent
	cache := newTestCache(t, store, func(event ChangeEvent) { events = append(events, event) })
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	created, pending, err := cache.Create("")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := pending.Wait(context.Background()); err != nil {
		t.Fatalf("create write failed: %v", err)
	}

	if created.Title != DefaultTitle || created.Subject != DefaultSubject || created.Content != "" {
		t.Fatalf("unexpected defaults: %#v", created)
	}
	if created.CreatedAt != 1700000005000 || created.UpdatedAt != created.CreatedAt {
		t.Fatalf("unexpected timestamps: %#v", created)
	}
	listed := cache.List()
	if listed[0].ID != "new-1" {
		t.Fatalf("expected new note at the front, got %s", listed[0].ID)
	}
	if _, ok := store.record("new-1"); !ok {
		t.Fatalf("expected created note to be persisted")
	}
	if len(events) != 2 || events[1].Kind != ChangeCreated || events[1].NoteID != "new-1" {
		t.Fatalf("unexpected change events: %#v", events)
	}
}

func TestCacheUpdateIsVisibleBeforeWriteCompletes(t *testing.T) {
	note := sampleNote("note-1", "Draft")
	store := newMemoryStore(note)
	release := make(chan struct{})
	store.beforePut = func(Note) { <-release }
	cache := newTestCache(t, store, nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	updated := note
	updated.Title = "Final"
	pending := cache.Update(updated)

	current, ok := cache.Get("note-1")
	if !ok || current.Title != "Final" {
		t.Fatalf("expected optimistic update to be visible, got %#v", current)
	}
	select {
	case <-pending.Done():
		t.Fatalf("write should still be blocked")
	default:
	}
	if stored, _ := store.record("note-1"); stored.Title != "Draft" {
		t.Fatalf("store should lag the cache, got %q", stored.Title)
	}

	close(release)
	if err := pending.Wait(context.Background()); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if stored, _ := store.record("note-1"); stored.Title != "Final" {
		t.Fatalf("store should converge with cache, got %q", stored.Title)
	}
}

func TestCacheUpdateFailureDoesNotRollBack(t *testing.T) {
	note := sampleNote("note-1", "Draft")
	store := newMemoryStore(note)
	cache := newTestCache(t, store, nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	writeErr := errors.New("quota exceeded")
	store.mu.Lock()
	store.putErr = writeErr
	store.mu.Unlock()

	updated := note
	updated.Content = "new body"
	err := cache.Update(updated).Wait(context.Background())
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error on pending, got %v", err)
	}
	current, _ := cache.Get("note-1")
	if current.Content != "new body" {
		t.Fatalf("failed write must not roll back memory, got %q", current.Content)
	}
}

func TestCacheUpdateUnknownNote(t *testing.T) {
	cache := newTestCache(t, newMemoryStore(sampleNote("note-1", "A")), nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	err := cache.Update(sampleNote("ghost", "Ghost")).Wait(context.Background())
	if !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCacheWritesForSameNoteApplyInIssueOrder(t *testing.T) {
	note := sampleNote("note-1", "v0")
	store := newMemoryStore(note)
	var once sync.Once
	store.beforePut = func(written Note) {
		// The first write is the slowest; a later write must still land last.
		if written.Title == "v1" {
			once.Do(func() { time.Sleep(50 * time.Millisecond) })
		}
	}
	cache := newTestCache(t, store, nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	for _, title := range []string{"v1", "v2", "v3"} {
		next := note
		next.Title = title
		cache.Update(next)
	}
	if err := cache.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	var order []string
	for _, call := range store.callLog() {
		if call.operation == "put" {
			order = append(order, call.note.Title)
		}
	}
	if len(order) != 3 || order[0] != "v1" || order[1] != "v2" || order[2] != "v3" {
		t.Fatalf("writes applied out of order: %v", order)
	}
	if stored, _ := store.record("note-1"); stored.Title != "v3" {
		t.Fatalf("expected final write to win, got %q", stored.Title)
	}
}

func TestCacheRemoveAfterPendingUpdate(t *testing.T) {
	note := sampleNote("note-1", "Draft")
	store := newMemoryStore(note)
	release := make(chan struct{})
	store.beforePut = func(Note) { <-release }
	cache := newTestCache(t, store, nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	updated := note
	updated.Title = "Edited"
	cache.Update(updated)
	removal := cache.Remove("note-1")

	if _, ok := cache.Get("note-1"); ok {
		t.Fatalf("expected note to be gone from memory immediately")
	}
	close(release)
	if err := removal.Wait(context.Background()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok := store.record("note-1"); ok {
		t.Fatalf("delete must be applied after the earlier put")
	}
}

func TestCacheRemoveUnknownNoteIsNoOp(t *testing.T) {
	cache := newTestCache(t, newMemoryStore(sampleNote("note-1", "A")), nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cache.Remove("missing").Wait(context.Background()); err != nil {
		t.Fatalf("expected no-op delete, got %v", err)
	}
	if len(cache.List()) != 1 {
		t.Fatalf("unexpected cache contents: %#v", cache.List())
	}
}

func TestCacheListReturnsCopies(t *testing.T) {
	note := sampleNote("note-1", "A")
	note.Tags = []string{"one"}
	cache := newTestCache(t, newMemoryStore(note), nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	listed := cache.List()
	listed[0].Tags[0] = "mutated"
	current, _ := cache.Get("note-1")
	if current.Tags[0] != "one" {
		t.Fatalf("callers must not mutate cached notes")
	}
}

func TestCacheWithSQLiteStoreConverges(t *testing.T) {
	store := newSQLiteStore(t)
	cache := newTestCache(t, store, nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	created, _, err := cache.Create("Optics")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	created.Content = "refraction"
	cache.Update(created)
	cache.Remove(WelcomeNoteID)
	if err := cache.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	stored, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("get all failed: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != created.ID || stored[0].Content != "refraction" {
		t.Fatalf("store did not converge with cache: %#v", stored)
	}
}

func TestCacheUpsertMergesAndOrdersByRecency(t *testing.T) {
	existing := sampleNote("note-1", "Old")
	store := newMemoryStore(existing)
	var events []ChangeEvent
	cache := newTestCache(t, store, func(event ChangeEvent) { events = append(events, event) })
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	replaced := existing
	replaced.Title = "Replaced"
	inserted := sampleNote("note-2", "Inserted")
	inserted.UpdatedAt = existing.UpdatedAt + 10
	if err := cache.Upsert([]Note{replaced, inserted}).Wait(context.Background()); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	listed := cache.List()
	if len(listed) != 2 || listed[0].ID != "note-2" || listed[1].Title != "Replaced" {
		t.Fatalf("unexpected cache contents %#v", listed)
	}
	for _, id := range []string{"note-1", "note-2"} {
		stored, ok := store.record(id)
		cached, _ := cache.Get(id)
		if !ok || stored.Title != cached.Title {
			t.Fatalf("store and cache differ for %s: %#v vs %#v", id, stored, cached)
		}
	}
	if last := events[len(events)-1]; last.Kind != ChangeReloaded {
		t.Fatalf("expected a reloaded event, got %#v", last)
	}
}

func TestCacheUpsertRejectsInvalidIDWithoutChanges(t *testing.T) {
	store := newMemoryStore(sampleNote("note-1", "A"))
	cache := newTestCache(t, store, nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	valid := sampleNote("note-2", "B")
	blank := sampleNote("  ", "Blank")
	if err := cache.Upsert([]Note{valid, blank}).Wait(context.Background()); !errors.Is(err, ErrInvalidNoteID) {
		t.Fatalf("expected invalid id error, got %v", err)
	}
	if _, ok := cache.Get("note-2"); ok {
		t.Fatalf("no note may be applied when one id is invalid")
	}
	if len(store.callLog()) != 0 {
		t.Fatalf("no store write may be issued, got %#v", store.callLog())
	}
}
