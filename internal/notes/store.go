package notes

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const fieldNoteID = "note_id"

// Record is the persisted row backing a note. The full note lives in PayloadJSON.
type Record struct {
	NoteID          string `gorm:"column:note_id;primaryKey;size:190;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null;index:idx_notes_updated"`
	Subject         string `gorm:"column:subject;size:190;not null;default:''"`
	PayloadJSON     string `gorm:"column:payload_json;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "notes"
}

// DocumentStore is the durable keyed storage the cache and migrator write through.
type DocumentStore interface {
	GetAll(ctx context.Context) ([]Note, error)
	Put(ctx context.Context, note Note) error
	Delete(ctx context.Context, noteID string) error
}

// Opener opens the embedded database, creating its schema when absent.
type Opener func() (*gorm.DB, error)

// StoreConfig describes the dependencies of a Store. Database takes precedence over Open.
type StoreConfig struct {
	Database *gorm.DB
	Open     Opener
	Logger   *zap.Logger
}

// Store persists notes in the embedded SQLite database.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	open   Opener
	logger *zap.Logger
}

// NewStore constructs a Store. The database is opened lazily on first use.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil && cfg.Open == nil {
		return nil, newServiceError(opStoreOpen, "missing_opener", errMissingOpener)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:     cfg.Database,
		open:   cfg.Open,
		logger: logger,
	}, nil
}

// handle returns the shared database handle, opening it on first use.
// A failed open is not remembered so the next operation retries.
func (s *Store) handle() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	db, err := s.open()
	if err != nil {
		logError(s.logger, opStoreOpen, reasonOpen, err)
		return nil, newStorageError(opStoreOpen, reasonOpen, err)
	}
	s.db = db
	return db, nil
}

// GetAll returns every stored note ordered by most recent update.
func (s *Store) GetAll(ctx context.Context) ([]Note, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := db.WithContext(ctx).Order("updated_at_ms DESC").Find(&records).Error; err != nil {
		logError(s.logger, opStoreGetAll, reasonQuery, err)
		return nil, newStorageError(opStoreGetAll, reasonQuery, err)
	}

	notes := make([]Note, 0, len(records))
	for _, record := range records {
		note, decodeErr := decodeRecord(record)
		if decodeErr != nil {
			logError(s.logger, opStoreGetAll, reasonDecode, decodeErr, zap.String(fieldNoteID, record.NoteID))
			return nil, newStorageError(opStoreGetAll, reasonDecode, decodeErr)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// Count reports how many notes are stored.
func (s *Store) Count(ctx context.Context) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var total int64
	if err := db.WithContext(ctx).Model(&Record{}).Count(&total).Error; err != nil {
		logError(s.logger, opStoreGetAll, reasonQuery, err)
		return 0, newStorageError(opStoreGetAll, reasonQuery, err)
	}
	return total, nil
}

// Put inserts the note or replaces the stored record with the same id wholesale.
func (s *Store) Put(ctx context.Context, note Note) error {
	noteID, err := NewNoteID(note.ID)
	if err != nil {
		return newServiceError(opStorePut, reasonInvalidID, err)
	}
	record, err := encodeRecord(note)
	if err != nil {
		logError(s.logger, opStorePut, reasonEncode, err, zap.String(fieldNoteID, noteID.String()))
		return newServiceError(opStorePut, reasonEncode, err)
	}

	db, err := s.handle()
	if err != nil {
		return err
	}

	txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: fieldNoteID}},
			UpdateAll: true,
		}).Create(&record).Error
	})
	if txErr != nil {
		logError(s.logger, opStorePut, reasonWrite, txErr, zap.String(fieldNoteID, noteID.String()))
		return newStorageError(opStorePut, reasonWrite, txErr)
	}
	return nil
}

// Delete removes the note if present. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, rawNoteID string) error {
	noteID, err := NewNoteID(rawNoteID)
	if err != nil {
		return newServiceError(opStoreDelete, reasonInvalidID, err)
	}

	db, err := s.handle()
	if err != nil {
		return err
	}

	txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where(fieldNoteID+" = ?", noteID.String()).Delete(&Record{}).Error
	})
	if txErr != nil {
		logError(s.logger, opStoreDelete, reasonWrite, txErr, zap.String(fieldNoteID, noteID.String()))
		return newStorageError(opStoreDelete, reasonWrite, txErr)
	}
	return nil
}

func encodeRecord(note Note) (Record, error) {
	normalized := note.normalized()
	payload, err := json.Marshal(normalized)
	if err != nil {
		return Record{}, err
	}
	return Record{
		NoteID:          normalized.ID,
		CreatedAtMillis: normalized.CreatedAt,
		UpdatedAtMillis: normalized.UpdatedAt,
		Subject:         normalized.Subject,
		PayloadJSON:     string(payload),
	}, nil
}

func decodeRecord(record Record) (Note, error) {
	var note Note
	if err := json.Unmarshal([]byte(record.PayloadJSON), &note); err != nil {
		return Note{}, err
	}
	note.ID = record.NoteID
	return note.normalized(), nil
}

// EncodeRecord exposes the row encoding to schema migrations.
func EncodeRecord(note Note) (Record, error) {
	return encodeRecord(note)
}

// DecodeRecord exposes the row decoding to schema migrations.
func DecodeRecord(record Record) (Note, error) {
	return decodeRecord(record)
}
