// Package backup exports the vault to a JSON file and imports such files back.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

// ErrImportFormat indicates that an import file is not a non-empty array of notes.
var ErrImportFormat = errors.New("invalid format")

var errMissingCache = errors.New("backup: note cache is required")

const fileNameLayout = "2006-01-02"

// NoteCache is the part of notes.Cache that export reads and import writes through.
type NoteCache interface {
	List() []notes.Note
	Upsert(list []notes.Note) *notes.Pending
}

// Config describes a Service.
type Config struct {
	Cache  NoteCache
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service runs exports and imports.
type Service struct {
	cache  NoteCache
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cache: cfg.Cache, clock: clock, logger: logger}, nil
}

// FileName is the default export file name for the given day.
func FileName(now time.Time) string {
	return fmt.Sprintf("mindvault_backup_%s.json", now.Format(fileNameLayout))
}

// DefaultFileName is FileName for today.
func (s *Service) DefaultFileName() string {
	return FileName(s.clock())
}

// Export writes notes as a two-space indented JSON array.
func Export(list []notes.Note, w io.Writer) error {
	if list == nil {
		list = []notes.Note{}
	}
	payload, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode notes: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("backup: write export: %w", err)
	}
	return nil
}

// WriteTo exports the cached notes to w and returns how many were written.
func (s *Service) WriteTo(w io.Writer) (int, error) {
	list := s.cache.List()
	if err := Export(list, w); err != nil {
		return 0, err
	}
	return len(list), nil
}

// ExportFile exports the cached notes to path, replacing any existing file atomically.
func (s *Service) ExportFile(path string) (int, error) {
	var buffer bytes.Buffer
	count, err := s.WriteTo(&buffer)
	if err != nil {
		return 0, err
	}
	if err := atomic.WriteFile(path, &buffer); err != nil {
		s.logger.Error("export write failed", zap.String("path", path), zap.Error(err))
		return 0, fmt.Errorf("backup: write %s: %w", path, err)
	}
	s.logger.Info("notes exported", zap.String("path", path), zap.Int("count", count))
	return count, nil
}

// ParseImport validates an import payload without touching storage.
func ParseImport(data []byte) ([]notes.Note, error) {
	standardized, err := hujson.Standardize(bytes.Clone(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(standardized, &elements); err != nil {
		return nil, fmt.Errorf("%w: not an array", ErrImportFormat)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrImportFormat)
	}

	imported := make([]notes.Note, 0, len(elements))
	for index, element := range elements {
		var note notes.Note
		if err := json.Unmarshal(element, &note); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrImportFormat, index, err)
		}
		if strings.TrimSpace(note.ID) == "" {
			return nil, fmt.Errorf("%w: element %d has no id", ErrImportFormat, index)
		}
		if _, err := notes.NewNoteID(note.ID); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrImportFormat, index, err)
		}
		imported = append(imported, note)
	}
	return imported, nil
}

// Import validates data, then upserts every note through the cache so each store write
// queues behind writes already pending for the same id. Nothing is written when validation fails.
func (s *Service) Import(ctx context.Context, data []byte) (int, error) {
	imported, err := ParseImport(data)
	if err != nil {
		s.logger.Warn("import rejected", zap.Error(err))
		return 0, err
	}

	if err := s.cache.Upsert(imported).Wait(ctx); err != nil {
		s.logger.Error("import write failed", zap.Int("count", len(imported)), zap.Error(err))
		return 0, err
	}
	s.logger.Info("notes imported", zap.Int("count", len(imported)))
	return len(imported), nil
}
