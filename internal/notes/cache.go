package notes

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChangeKind names the in-memory transition a ChangeEvent reports.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReloaded ChangeKind = "reloaded"
)

// ChangeEvent is published after every in-memory transition.
type ChangeEvent struct {
	Kind   ChangeKind
	NoteID string
}

// NoteMigrator runs before the cache first reads from the store.
type NoteMigrator interface {
	Migrate(ctx context.Context) ([]Note, error)
}

// CacheConfig describes the dependencies of a Cache.
type CacheConfig struct {
	Store      DocumentStore
	Migrator   NoteMigrator
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Observer   func(ChangeEvent)
}

// Cache is the session's source of truth for which notes exist and what they contain.
// Mutations apply to memory synchronously and reach the store asynchronously.
type Cache struct {
	mu         sync.RWMutex
	notes      []Note
	store      DocumentStore
	migrator   NoteMigrator
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	observer   func(ChangeEvent)
	writes     *writeQueue
}

// NewCache constructs an empty cache; call Load before serving reads.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opCacheNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opCacheNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Cache{
		notes:      []Note{},
		store:      cfg.Store,
		migrator:   cfg.Migrator,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		observer:   cfg.Observer,
		writes:     newWriteQueue(),
	}, nil
}

// Load migrates legacy data, reads the store, and seeds the welcome note into an empty vault.
func (c *Cache) Load(ctx context.Context) error {
	if c.migrator != nil {
		if _, err := c.migrator.Migrate(ctx); err != nil {
			c.logger.Warn("legacy migration failed", zap.String("operation", opCacheLoad), zap.Error(err))
		}
	}

	stored, err := c.store.GetAll(ctx)
	if err != nil {
		return err
	}

	if len(stored) == 0 {
		welcome := NewWelcomeNote(c.clock())
		if err := c.store.Put(ctx, welcome); err != nil {
			return err
		}
		stored = []Note{welcome}
	}

	sortByRecency(stored)
	c.mu.Lock()
	c.notes = stored
	c.mu.Unlock()
	c.publish(ChangeEvent{Kind: ChangeReloaded})
	return nil
}

// List returns a copy of every note in display order.
func (c *Cache) List() []Note {
	c.mu.RLock()
	defer c.mu.RUnlock()
	listed := make([]Note, 0, len(c.notes))
	for _, note := range c.notes {
		listed = append(listed, note.Clone())
	}
	return listed
}

// Get returns the note with the given id.
func (c *Cache) Get(noteID string) (Note, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index := c.indexOf(noteID)
	if index < 0 {
		return Note{}, false
	}
	return c.notes[index].Clone(), true
}

// Search filters the working set by query.
func (c *Cache) Search(query string) []Note {
	return Filter(c.List(), query)
}

// GroupBySubject groups the working set for the sidebar.
func (c *Cache) GroupBySubject() []SubjectGroup {
	return GroupBySubject(c.List())
}

// Create builds a fresh empty note and adds it.
func (c *Cache) Create(title string) (Note, *Pending, error) {
	noteID, err := c.idProvider.NewID()
	if err != nil {
		logError(c.logger, opCacheCreate, "id_generation_failed", err)
		return Note{}, nil, newServiceError(opCacheCreate, "id_generation_failed", err)
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	stamp := c.clock().UnixMilli()
	note := Note{
		ID:          noteID,
		Title:       title,
		Content:     "",
		CreatedAt:   stamp,
		UpdatedAt:   stamp,
		Tags:        []string{},
		Subject:     DefaultSubject,
		Attachments: []Attachment{},
	}
	return note, c.Add(note), nil
}

// Add prepends note and persists it right away; creation is never debounced.
func (c *Cache) Add(note Note) *Pending {
	note = note.normalized()
	if _, err := NewNoteID(note.ID); err != nil {
		return CompletedPending(newServiceError(opCachePersist, reasonInvalidID, err))
	}

	c.mu.Lock()
	if index := c.indexOf(note.ID); index >= 0 {
		c.notes = slices.Delete(c.notes, index, index+1)
	}
	c.notes = slices.Insert(c.notes, 0, note.Clone())
	c.mu.Unlock()

	c.publish(ChangeEvent{Kind: ChangeCreated, NoteID: note.ID})
	return c.persist(note)
}

// Update replaces the in-memory note with the same id before the store write completes.
// A failed write is logged and reported through the Pending; memory is not rolled back.
func (c *Cache) Update(note Note) *Pending {
	note = note.normalized()

	c.mu.Lock()
	index := c.indexOf(note.ID)
	if index < 0 {
		c.mu.Unlock()
		return CompletedPending(newServiceError(opCachePersist, "note_not_found", ErrNoteNotFound))
	}
	c.notes[index] = note.Clone()
	c.mu.Unlock()

	c.publish(ChangeEvent{Kind: ChangeUpdated, NoteID: note.ID})
	return c.persist(note)
}

// Remove drops the note from memory, then deletes it from the store.
func (c *Cache) Remove(noteID string) *Pending {
	validID, err := NewNoteID(noteID)
	if err != nil {
		return CompletedPending(newServiceError(opCachePersist, reasonInvalidID, err))
	}

	c.mu.Lock()
	if index := c.indexOf(validID.String()); index >= 0 {
		c.notes = slices.Delete(c.notes, index, index+1)
	}
	c.mu.Unlock()

	c.publish(ChangeEvent{Kind: ChangeDeleted, NoteID: validID.String()})
	return c.writes.enqueue(validID.String(), func() error {
		err := c.store.Delete(context.Background(), validID.String())
		if err != nil {
			logError(c.logger, opCachePersist, "background_delete_failed", err, zap.String(fieldNoteID, validID.String()))
		}
		return err
	})
}

// Upsert replaces or inserts every note in memory, restores display order, and queues one
// store write per note behind any write already queued for the same id. Nothing changes
// when an id is invalid. The Pending resolves once every write has finished.
func (c *Cache) Upsert(list []Note) *Pending {
	normalized := make([]Note, 0, len(list))
	for _, note := range list {
		note = note.normalized()
		if _, err := NewNoteID(note.ID); err != nil {
			return CompletedPending(newServiceError(opCachePersist, reasonInvalidID, err))
		}
		normalized = append(normalized, note)
	}

	c.mu.Lock()
	for _, note := range normalized {
		if index := c.indexOf(note.ID); index >= 0 {
			c.notes[index] = note.Clone()
		} else {
			c.notes = append(c.notes, note.Clone())
		}
	}
	sortByRecency(c.notes)
	c.mu.Unlock()
	c.publish(ChangeEvent{Kind: ChangeReloaded})

	writes := make([]*Pending, 0, len(normalized))
	for _, note := range normalized {
		writes = append(writes, c.persist(note))
	}
	combined := newPending()
	go func() {
		var errs []error
		for _, write := range writes {
			<-write.Done()
			errs = append(errs, write.Err())
		}
		combined.resolve(errors.Join(errs...))
	}()
	return combined
}

// Drain waits until every issued write has completed.
func (c *Cache) Drain(ctx context.Context) error {
	return c.writes.drain(ctx)
}

// Close drains outstanding writes; the cache must not be used afterwards.
func (c *Cache) Close(ctx context.Context) error {
	return c.Drain(ctx)
}

func (c *Cache) persist(note Note) *Pending {
	snapshot := note.Clone()
	return c.writes.enqueue(snapshot.ID, func() error {
		err := c.store.Put(context.Background(), snapshot)
		if err != nil {
			logError(c.logger, opCachePersist, "background_put_failed", err, zap.String(fieldNoteID, snapshot.ID))
		}
		return err
	})
}

func (c *Cache) publish(event ChangeEvent) {
	if c.observer != nil {
		c.observer(event)
	}
}

func (c *Cache) indexOf(noteID string) int {
	return slices.IndexFunc(c.notes, func(note Note) bool {
		return note.ID == noteID
	})
}

func sortByRecency(notes []Note) {
	slices.SortStableFunc(notes, func(left, right Note) int {
		switch {
		case left.UpdatedAt > right.UpdatedAt:
			return -1
		case left.UpdatedAt < right.UpdatedAt:
			return 1
		default:
			return 0
		}
	})
}
