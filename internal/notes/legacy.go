package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

// LegacyStorageKey is the flat key the previous release kept its notes blob under.
const LegacyStorageKey = "mindvault_notes_v2"

// LegacySource yields the raw legacy notes blob. found is false when there is nothing to migrate.
type LegacySource interface {
	LoadLegacy(ctx context.Context) (blob string, found bool, err error)
}

// FileLegacySource reads a flat key/value dump (a JSON object of string values) from disk.
type FileLegacySource struct {
	Path string
	Key  string
}

// LoadLegacy reads the configured key from the dump. A missing file is not an error.
func (source FileLegacySource) LoadLegacy(_ context.Context) (string, bool, error) {
	path := strings.TrimSpace(source.Path)
	if path == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMigrationParse, err)
	}
	var entries map[string]string
	if err := json.Unmarshal(standardized, &entries); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMigrationParse, err)
	}

	key := source.Key
	if key == "" {
		key = LegacyStorageKey
	}
	blob, ok := entries[key]
	if !ok || strings.TrimSpace(blob) == "" {
		return "", false, nil
	}
	return blob, true, nil
}

// StaticLegacySource serves an in-memory blob.
type StaticLegacySource string

// LoadLegacy returns the blob when non-empty.
func (source StaticLegacySource) LoadLegacy(_ context.Context) (string, bool, error) {
	if strings.TrimSpace(string(source)) == "" {
		return "", false, nil
	}
	return string(source), true, nil
}

// MigratorConfig describes the dependencies of a Migrator.
type MigratorConfig struct {
	Store  DocumentStore
	Source LegacySource
	Logger *zap.Logger
}

// Migrator copies legacy notes into the document store exactly once.
type Migrator struct {
	store  DocumentStore
	source LegacySource
	logger *zap.Logger
}

// NewMigrator constructs a Migrator. A nil source disables migration.
func NewMigrator(cfg MigratorConfig) (*Migrator, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opMigrate, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Migrator{
		store:  cfg.Store,
		source: cfg.Source,
		logger: logger,
	}, nil
}

// Migrate transfers legacy notes when the store is empty and returns the resulting notes.
// A non-empty store always wins. Malformed legacy data is logged and yields no notes.
func (m *Migrator) Migrate(ctx context.Context) ([]Note, error) {
	existing, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	if m.source == nil {
		return []Note{}, nil
	}

	blob, found, err := m.source.LoadLegacy(ctx)
	if err != nil {
		m.logger.Warn("legacy notes unreadable, skipping migration",
			zap.String("operation", opMigrate),
			zap.Error(err))
		return []Note{}, nil
	}
	if !found {
		return []Note{}, nil
	}

	legacyNotes, err := ParseLegacyNotes(blob)
	if err != nil {
		m.logger.Warn("legacy notes malformed, skipping migration",
			zap.String("operation", opMigrate),
			zap.Error(err))
		return []Note{}, nil
	}

	migrated := make([]Note, 0, len(legacyNotes))
	for _, note := range legacyNotes {
		if strings.TrimSpace(note.ID) == "" {
			m.logger.Warn("legacy note without id skipped", zap.String("title", note.Title))
			continue
		}
		if err := m.store.Put(ctx, note); err != nil {
			logError(m.logger, opMigrate, reasonWrite, err, zap.String(fieldNoteID, note.ID))
			return migrated, err
		}
		migrated = append(migrated, note.normalized())
	}

	m.logger.Info("legacy notes migrated", zap.Int("count", len(migrated)))
	return migrated, nil
}

// ParseLegacyNotes decodes a JSON array of notes, tolerating JSONC syntax.
func ParseLegacyNotes(blob string) ([]Note, error) {
	standardized, err := hujson.Standardize([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationParse, err)
	}
	var parsed []Note
	if err := json.Unmarshal(standardized, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationParse, err)
	}
	return parsed, nil
}
