package notes

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// AttachmentType enumerates the kinds of payload a note can embed.
type AttachmentType string

const (
	// AttachmentTypeImage marks an embedded image.
	AttachmentTypeImage AttachmentType = "image"
	// AttachmentTypePDF marks an embedded PDF document.
	AttachmentTypePDF AttachmentType = "pdf"
	// AttachmentTypeFile marks any other embedded file.
	AttachmentTypeFile AttachmentType = "file"
)

const (
	// DefaultSubject is the sentinel subject for unclassified notes.
	DefaultSubject = "General"
	// DefaultTitle is assigned to freshly created notes.
	DefaultTitle = "Untitled Note"
	// WelcomeNoteID identifies the note seeded into an empty vault.
	WelcomeNoteID = "welcome"
	// WelcomeNoteTitle is the title of the seeded note.
	WelcomeNoteTitle = "Welcome to MindVault"

	maxIdentifierLength = 190
)

// Subjects lists the closed set of subjects in sidebar order.
var Subjects = []string{
	"History",
	"Civics",
	"Physics",
	"Physics: Numericals",
	"Biology",
	"Chemistry",
	"Maths",
	"Computer Applications",
	"Hindi",
	"English Literature",
	DefaultSubject,
}

// WelcomeNoteContent is the markdown body of the seeded note.
const WelcomeNoteContent = `# Welcome to MindVault

This is your new study notes hub.

## Features
- **Markdown Support**: Write in standard markdown.
- **AI Powered**: Use the "Study Assistant" to summarize, quiz, or ask "Teach Me" to chat about your notes.
- **Smart Organize**: Automatically categorizes your notes into subjects like Physics, History, etc., and renames them to Chapter names.
- **Attachments**: Upload images and PDFs to keep them next to your notes.

## Shortcuts
- Use the sidebar to navigate.
- Click "Edit" to modify this note.
`

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrNoteNotFound indicates that no note with the requested identifier exists.
	ErrNoteNotFound = errors.New("notes: note not found")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// Attachment is a binary payload embedded in a note. It has no lifecycle of its own.
type Attachment struct {
	ID   string         `json:"id"`
	Type AttachmentType `json:"type"`
	Name string         `json:"name"`
	Data string         `json:"data"`
}

// Note is the persisted study note. Timestamps are unix milliseconds.
type Note struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	CreatedAt   int64        `json:"createdAt"`
	UpdatedAt   int64        `json:"updatedAt"`
	Tags        []string     `json:"tags"`
	Subject     string       `json:"subject,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SubjectOrDefault treats a missing subject as DefaultSubject.
func (n Note) SubjectOrDefault() string {
	subject := strings.TrimSpace(n.Subject)
	if subject == "" {
		return DefaultSubject
	}
	return subject
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (n Note) Clone() Note {
	clone := n
	clone.Tags = slices.Clone(n.Tags)
	clone.Attachments = slices.Clone(n.Attachments)
	return clone
}

// Touch stamps UpdatedAt with now while keeping UpdatedAt >= CreatedAt.
func (n Note) Touch(now time.Time) Note {
	touched := n.Clone()
	stamp := now.UnixMilli()
	if stamp < touched.UpdatedAt {
		stamp = touched.UpdatedAt
	}
	if stamp < touched.CreatedAt {
		stamp = touched.CreatedAt
	}
	touched.UpdatedAt = stamp
	return touched
}

// normalized fills defaults so stored records are always complete.
func (n Note) normalized() Note {
	normalized := n.Clone()
	normalized.ID = strings.TrimSpace(normalized.ID)
	if normalized.Tags == nil {
		normalized.Tags = []string{}
	}
	if normalized.Attachments == nil {
		normalized.Attachments = []Attachment{}
	}
	if normalized.UpdatedAt < normalized.CreatedAt {
		normalized.UpdatedAt = normalized.CreatedAt
	}
	return normalized
}

// NewWelcomeNote builds the note seeded into an empty vault.
func NewWelcomeNote(now time.Time) Note {
	stamp := now.UnixMilli()
	return Note{
		ID:          WelcomeNoteID,
		Title:       WelcomeNoteTitle,
		Content:     WelcomeNoteContent,
		CreatedAt:   stamp,
		UpdatedAt:   stamp,
		Tags:        []string{"guide", "welcome"},
		Subject:     DefaultSubject,
		Attachments: []Attachment{},
	}
}
