// Package editor buffers edits to the open note and writes them back after a quiet period.
//
// A Session is a small state machine:
//
//	Idle ──Edit──▶ PendingWrite(deadline) ──Edit──▶ PendingWrite(deadline') ──timer──▶ Idle
//
// Opening a different note, or closing the session, discards any buffer the timer has not
// committed yet. Edits made less than one quiet period before switching notes are lost;
// call Flush first when that matters.
package editor

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
)

// DefaultQuietPeriod is how long edits must pause before they are written.
const DefaultQuietPeriod = 1500 * time.Millisecond

// State is the debounce state of a session.
type State string

const (
	StateIdle         State = "idle"
	StatePendingWrite State = "pending_write"
)

var (
	// ErrNoOpenNote indicates an edit arrived while no note is open.
	ErrNoOpenNote = errors.New("editor: no note open")
	errMissingCache = errors.New("editor: note cache is required")
)

// NoteCache is the slice of notes.Cache a session reads from and writes through.
type NoteCache interface {
	Get(noteID string) (notes.Note, bool)
	Update(note notes.Note) *notes.Pending
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClockScheduler struct{}

func (wallClockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config describes the dependencies of a Session.
type Config struct {
	Cache       NoteCache
	QuietPeriod time.Duration
	Clock       func() time.Time
	Scheduler   Scheduler
	Logger      *zap.Logger
}

// Edit is a partial change to the buffered fields; nil fields are left alone.
type Edit struct {
	Title       *string
	Content     *string
	Attachments *[]notes.Attachment
}

// Snapshot describes a session at one point in time.
type Snapshot struct {
	NoteID      string             `json:"note_id"`
	State       State              `json:"state"`
	Deadline    *time.Time         `json:"deadline,omitempty"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	Attachments []notes.Attachment `json:"attachments"`
	Dirty       bool               `json:"dirty"`
}

// Session is the editing session for the currently open note.
type Session struct {
	mu          sync.Mutex
	cache       NoteCache
	quietPeriod time.Duration
	clock       func() time.Time
	scheduler   Scheduler
	logger      *zap.Logger

	noteID      string
	persisted   notes.Note
	title       string
	content     string
	attachments []notes.Attachment

	state      State
	deadline   time.Time
	timer      Timer
	generation uint64
}

// New constructs a Session with no note open.
func New(cfg Config) (*Session, error) {
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	quietPeriod := cfg.QuietPeriod
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = wallClockScheduler{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cache:       cfg.Cache,
		quietPeriod: quietPeriod,
		clock:       clock,
		scheduler:   scheduler,
		logger:      logger,
		state:       StateIdle,
	}, nil
}

// Open loads the note into the buffer. Opening another note discards uncommitted edits;
// re-opening the current note keeps them.
func (s *Session) Open(noteID string) error {
	note, ok := s.cache.Get(noteID)
	if !ok {
		return notes.ErrNoteNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteID == note.ID {
		return nil
	}
	s.discardLocked()
	s.noteID = note.ID
	s.persisted = note.Clone()
	s.title = note.Title
	s.content = note.Content
	s.attachments = slices.Clone(note.Attachments)
	return nil
}

// Close discards uncommitted edits and leaves no note open.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
	s.noteID = ""
	s.persisted = notes.Note{}
	s.title = ""
	s.content = ""
	s.attachments = nil
}

// Apply buffers a partial edit and restarts the quiet period.
func (s *Session) Apply(edit Edit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteID == "" {
		return ErrNoOpenNote
	}
	if edit.Title != nil {
		s.title = *edit.Title
	}
	if edit.Content != nil {
		s.content = *edit.Content
	}
	if edit.Attachments != nil {
		s.attachments = slices.Clone(*edit.Attachments)
	}
	s.scheduleLocked()
	return nil
}

// SetTitle buffers a new title.
func (s *Session) SetTitle(title string) error {
	return s.Apply(Edit{Title: &title})
}

// SetContent buffers a new body.
func (s *Session) SetContent(content string) error {
	return s.Apply(Edit{Content: &content})
}

// AppendContent appends text to the buffered body.
func (s *Session) AppendContent(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteID == "" {
		return ErrNoOpenNote
	}
	s.content += text
	s.scheduleLocked()
	return nil
}

// AddAttachment appends an attachment to the buffer.
func (s *Session) AddAttachment(attachment notes.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteID == "" {
		return ErrNoOpenNote
	}
	s.attachments = append(slices.Clone(s.attachments), attachment)
	s.scheduleLocked()
	return nil
}

// RemoveAttachment drops the attachment with the given id from the buffer.
func (s *Session) RemoveAttachment(attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteID == "" {
		return ErrNoOpenNote
	}
	s.attachments = slices.DeleteFunc(slices.Clone(s.attachments), func(attachment notes.Attachment) bool {
		return attachment.ID == attachmentID
	})
	s.scheduleLocked()
	return nil
}

// Flush commits the buffer now. The returned Pending is nil when nothing needed writing.
func (s *Session) Flush() (*notes.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteID == "" {
		return nil, ErrNoOpenNote
	}
	return s.commitLocked(), nil
}

// Snapshot reports the current state and buffer.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := Snapshot{
		NoteID:      s.noteID,
		State:       s.state,
		Title:       s.title,
		Content:     s.content,
		Attachments: slices.Clone(s.attachments),
		Dirty:       s.noteID != "" && s.dirtyLocked(),
	}
	if s.state == StatePendingWrite {
		deadline := s.deadline
		snapshot.Deadline = &deadline
	}
	return snapshot
}

func (s *Session) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	generation := s.generation
	s.state = StatePendingWrite
	s.deadline = s.clock().Add(s.quietPeriod)
	s.timer = s.scheduler.AfterFunc(s.quietPeriod, func() {
		s.fire(generation)
	})
}

// fire runs when a timer elapses; callbacks from superseded timers are ignored.
func (s *Session) fire(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || s.state != StatePendingWrite {
		return
	}
	s.commitLocked()
}

func (s *Session) commitLocked() *notes.Pending {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	s.state = StateIdle
	s.deadline = time.Time{}

	if !s.dirtyLocked() {
		return nil
	}

	base, ok := s.cache.Get(s.noteID)
	if !ok {
		s.logger.Warn("open note disappeared before commit, dropping edits", zap.String("note_id", s.noteID))
		return nil
	}
	base.Title = s.title
	base.Content = s.content
	base.Attachments = slices.Clone(s.attachments)
	record := base.Touch(s.clock())

	pending := s.cache.Update(record)
	s.persisted = record.Clone()
	return pending
}

func (s *Session) discardLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == StatePendingWrite && s.dirtyLocked() {
		s.logger.Info("discarding uncommitted edits", zap.String("note_id", s.noteID))
	}
	s.generation++
	s.state = StateIdle
	s.deadline = time.Time{}
}

func (s *Session) dirtyLocked() bool {
	if s.title != s.persisted.Title || s.content != s.persisted.Content {
		return true
	}
	return !cmp.Equal(s.attachments, s.persisted.Attachments, cmpopts.EquateEmpty())
}
