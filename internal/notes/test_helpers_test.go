package notes

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "notes.db")
	store, err := NewStore(StoreConfig{
		Open: func() (*gorm.DB, error) {
			db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
			if err != nil {
				return nil, err
			}
			if err := db.AutoMigrate(&Record{}); err != nil {
				return nil, err
			}
			return db, nil
		},
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func sampleNote(id, title string) Note {
	return Note{
		ID:          id,
		Title:       title,
		Content:     "content of " + title,
		CreatedAt:   1700000000000,
		UpdatedAt:   1700000000000,
		Tags:        []string{},
		Subject:     DefaultSubject,
		Attachments: []Attachment{},
	}
}

func fixedClock(value time.Time) func() time.Time {
	return func() time.Time {
		return value
	}
}

type sequenceIDProvider struct {
	mu    sync.Mutex
	ids   []string
	index int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index >= len(p.ids) {
		return "", errors.New("id sequence exhausted")
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

type storeCall struct {
	operation string
	note      Note
	noteID    string
}

// memoryStore is an in-process DocumentStore with hooks for ordering and failure tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]Note
	calls   []storeCall
	putErr  error
	// beforePut runs outside the lock before a put is applied.
	beforePut func(Note)
}

func newMemoryStore(seed ...Note) *memoryStore {
	store := &memoryStore{records: make(map[string]Note)}
	for _, note := range seed {
		store.records[note.ID] = note.normalized()
	}
	return store
}

func (s *memoryStore) GetAll(_ context.Context) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes := make([]Note, 0, len(s.records))
	for _, note := range s.records {
		notes = append(notes, note.Clone())
	}
	return notes, nil
}

func (s *memoryStore) Put(_ context.Context, note Note) error {
	s.mu.Lock()
	hook := s.beforePut
	putErr := s.putErr
	s.mu.Unlock()
	if hook != nil {
		hook(note)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{operation: "put", note: note.Clone(), noteID: note.ID})
	if putErr != nil {
		return putErr
	}
	s.records[note.ID] = note.normalized()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{operation: "delete", noteID: noteID})
	delete(s.records, noteID)
	return nil
}

func (s *memoryStore) record(noteID string) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.records[noteID]
	return note, ok
}

func (s *memoryStore) callLog() []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeCall(nil), s.calls...)
}
